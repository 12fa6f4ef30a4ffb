package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rjboer/GoSpectrum/internal/profiles"
	"github.com/rjboer/GoSpectrum/internal/spectrum"
	"github.com/rjboer/GoSpectrum/internal/telemetry"
)

// Router is satisfied by *http.ServeMux and *telemetry.WebServer.
type Router interface {
	HandleFunc(pattern string, h func(http.ResponseWriter, *http.Request))
}

// RegisterRoutes mounts the scanner API on r.
func (s *Scanner) RegisterRoutes(r Router) {
	r.HandleFunc("GET /api/status", s.handleStatus)
	r.HandleFunc("GET /api/profiles", s.handleProfiles)
	r.HandleFunc("GET /api/profiles/{id}", s.handleProfile)
	r.HandleFunc("POST /api/profiles", s.handleCreateProfile)
	r.HandleFunc("GET /api/scan/{id}", s.handleScan)
	r.HandleFunc("GET /api/signals", s.handleSignals)
	r.HandleFunc("GET /api/signals/stats", s.handleSignalStats)
	r.HandleFunc("GET /api/signals/tracks", s.handleTracks)
	r.HandleFunc("GET /api/fft/latest", s.handleLatestFrame)
	r.HandleFunc("POST /api/fft/clear", s.handleClear)
	r.HandleFunc("GET /api/config", s.handleGetConfig)
	r.HandleFunc("POST /api/config", s.handleSetConfig)
}

func (s *Scanner) handleStatus(w http.ResponseWriter, _ *http.Request) {
	telemetry.WriteJSON(w, http.StatusOK, s.Status())
}

func (s *Scanner) handleProfiles(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]profiles.Profile)
	for _, p := range s.registry.All() {
		out[p.ID] = p
	}
	telemetry.WriteJSON(w, http.StatusOK, out)
}

func (s *Scanner) handleProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, ok := s.registry.Get(id)
	if !ok {
		telemetry.WriteError(w, http.StatusNotFound, fmt.Errorf("%w: %s", profiles.ErrUnknownProfile, id))
		return
	}
	telemetry.WriteJSON(w, http.StatusOK, p)
}

type createProfileRequest struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Ranges      []profiles.Range `json:"ranges"`
	StepHz      float64          `json:"step_hz"`
	Description string           `json:"description"`
}

func (s *Scanner) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		telemetry.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid profile payload: %w", err))
		return
	}
	p := profiles.CreateCustomProfile(req.Name, req.Ranges, req.StepHz, req.Description)
	if v := profiles.Validate(p); !v.Valid {
		telemetry.WriteJSON(w, http.StatusBadRequest, v)
		return
	}
	if err := s.registry.Register(req.ID, p); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, profiles.ErrDuplicateProfile) {
			status = http.StatusConflict
		}
		telemetry.WriteError(w, status, err)
		return
	}
	created, _ := s.registry.Get(req.ID)
	telemetry.WriteJSON(w, http.StatusCreated, created)
}

func (s *Scanner) handleScan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.Scan(id)
	if err != nil {
		if errors.Is(err, profiles.ErrUnknownProfile) {
			telemetry.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid profile: %s", id))
			return
		}
		telemetry.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	telemetry.WriteJSON(w, http.StatusOK, res)
}

func (s *Scanner) handleSignals(w http.ResponseWriter, r *http.Request) {
	var threshold *float64
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			telemetry.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid threshold %q", raw))
			return
		}
		threshold = &v
	}
	res, err := s.Signals(threshold)
	if err != nil {
		telemetry.WriteError(w, http.StatusBadRequest, err)
		return
	}
	telemetry.WriteJSON(w, http.StatusOK, res)
}

func (s *Scanner) handleSignalStats(w http.ResponseWriter, _ *http.Request) {
	telemetry.WriteJSON(w, http.StatusOK, s.DetectionStats())
}

func (s *Scanner) handleTracks(w http.ResponseWriter, _ *http.Request) {
	tracks := s.Tracks()
	telemetry.WriteJSON(w, http.StatusOK, map[string]any{
		"tracks": tracks,
		"count":  len(tracks),
	})
}

// handleLatestFrame serves the newest raw frame as JSON, or packed when
// format=packed.
func (s *Scanner) handleLatestFrame(w http.ResponseWriter, r *http.Request) {
	f, ok := s.LatestFrame()
	if r.URL.Query().Get("format") == "packed" {
		if !ok {
			http.Error(w, "no frame available", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(spectrum.Pack(f))
		return
	}
	if !ok {
		telemetry.WriteJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "No FFT data available",
			"data":    nil,
		})
		return
	}
	telemetry.WriteJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"data":        f,
		"buffer_size": s.BufferSize(),
	})
}

func (s *Scanner) handleClear(w http.ResponseWriter, _ *http.Request) {
	n := s.ClearBuffer()
	telemetry.WriteJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "FFT buffer cleared successfully",
		"previous_size": n,
	})
}

func (s *Scanner) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	telemetry.WriteJSON(w, http.StatusOK, s.Settings())
}

func (s *Scanner) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var patch SettingsPatch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		telemetry.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Invalid configuration",
			"errors":  []fieldError{{Message: err.Error()}},
		})
		return
	}
	settings, err := s.ApplySettings(patch)
	if err != nil {
		telemetry.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Invalid configuration",
			"errors":  fieldErrors(err),
		})
		return
	}
	telemetry.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Configuration updated successfully",
		"config":  settings,
	})
}
