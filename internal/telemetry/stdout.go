package telemetry

import (
	"github.com/rjboer/GoSpectrum/internal/logging"
)

// StdoutReporter logs detections and connection changes. Frame events are
// only logged at debug level.
type StdoutReporter struct {
	logger logging.Logger
}

// NewStdoutReporter builds a stdout reporter with the provided logger.
func NewStdoutReporter(logger logging.Logger) StdoutReporter {
	return StdoutReporter{logger: logging.OrDefault(logger).With(logging.F("subsystem", "telemetry"))}
}

func (r StdoutReporter) Report(ev Event) {
	switch ev.Type {
	case EventSignals:
		r.logger.Info("signals detected",
			logging.F("source", ev.Source),
			logging.F("profile", ev.Profile),
			logging.F("count", len(ev.Signals)),
		)
		for _, s := range ev.Signals {
			r.logger.Info("signal",
				logging.F("id", s.ID),
				logging.F("frequency_mhz", s.FrequencyHz/1e6),
				logging.F("power_dbm", s.PowerDBm),
				logging.F("bandwidth_khz", s.BandwidthHz/1e3),
				logging.F("snr_db", s.SNRDB),
				logging.F("confidence", s.Confidence),
			)
		}
	case EventStatus:
		fields := []logging.Field{{Key: "message", Value: ev.Message}}
		if ev.Connected != nil {
			fields = append(fields, logging.Field{Key: "connected", Value: *ev.Connected})
		}
		r.logger.Info("upstream status", fields...)
	case EventConfig:
		if ev.Config != nil {
			r.logger.Info("receiver config",
				logging.F("fft_size", ev.Config.FFTSize),
				logging.F("center_freq_hz", ev.Config.CenterFreqHz),
				logging.F("sample_rate_hz", ev.Config.SampleRateHz),
			)
		}
	case EventError:
		r.logger.Warn("upstream error", logging.F("message", ev.Message))
	case EventFrame:
		if ev.Stats != nil {
			r.logger.Debug("frame processed",
				logging.F("peak_dbm", ev.Stats.Peak),
				logging.F("noise_floor_dbm", ev.Stats.NoiseFloor),
			)
		}
	}
}
