package main

import (
	"context"
	"errors"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"

	"github.com/rjboer/GoSpectrum/internal/connectionmgr"
	"github.com/rjboer/GoSpectrum/internal/detect"
	"github.com/rjboer/GoSpectrum/internal/dsp"
	"github.com/rjboer/GoSpectrum/internal/logging"
	"github.com/rjboer/GoSpectrum/internal/spectrum"
)

func main() {
	url := pflag.StringP("url", "u", connectionmgr.DefaultURL, "OpenWebRX websocket URL")
	frames := pflag.IntP("frames", "n", 10, "Stop after this many frames")
	timeout := pflag.Duration("timeout", 30*time.Second, "Give up after this long")
	threshold := pflag.Float64("threshold", detect.DefaultThresholdDBm, "Detection threshold in dBm")
	minSNR := pflag.Float64("min-snr", detect.DefaultMinSNRDB, "Minimum SNR in dB")
	packOut := pflag.String("pack-out", "", "Write the last frame, packed and gzip compressed, to this file")
	verbose := pflag.BoolP("verbose", "v", false, "Log connection manager debug output")
	pflag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("====================================================")
	log.Println(" OpenWebRX FFT Probe")
	log.Println("====================================================")

	det, err := detect.New(detect.Config{ThresholdDBm: *threshold, MinSNRDB: *minSNR})
	if err != nil {
		log.Fatalf("detector: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var received atomic.Int64
	var last spectrum.Frame
	handler := connectionmgr.HandlerFuncs{
		Connect:    func() { log.Println("[INFO] handshake complete, streaming") },
		Disconnect: func() { log.Println("[INFO] session ended") },
		ConfigFunc: func(c connectionmgr.Config) {
			log.Printf("[CONFIG] fft_size=%d center=%.0f Hz samp_rate=%.0f Hz compression=%q",
				c.FFTSize, c.CenterFreqHz, c.SampleRateHz, c.FFTCompression)
		},
		Frame: func(f spectrum.Frame) {
			n := received.Add(1)
			st := dsp.ComputeStats(f.Data)
			log.Printf("[FRAME %d] bins=%d peak=%.1f dBm @ %.3f MHz floor=%.1f dBm",
				n, f.FFTSize, st.Peak, f.BinFrequencyHz(st.PeakBin)/1e6, st.NoiseFloor)
			for _, s := range det.Detect(f, nil) {
				log.Printf("    signal %.4f MHz  %.1f dBm  snr %.1f dB  bw %.1f kHz",
					s.FrequencyHz/1e6, s.PowerDBm, s.SNRDB, s.BandwidthHz/1e3)
			}
			last = f
			if int(n) >= *frames {
				cancel()
			}
		},
		Error: func(err error) { log.Printf("[WARN] %v", err) },
	}

	level := logging.Warn
	if *verbose {
		level = logging.Debug
	}
	m := connectionmgr.New(*url, handler,
		connectionmgr.WithLogger(logging.New(level, logging.Text, os.Stderr)),
		connectionmgr.WithReconnectPolicy(connectionmgr.ReconnectPolicy{Delay: 2 * time.Second, MaxAttempts: 3}),
	)

	log.Printf("[STEP 1] Connecting to %s ...", *url)
	err = m.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Fatalf("run: %v", err)
	}

	got := received.Load()
	if got == 0 {
		log.Fatalf("no frames received within %s", *timeout)
	}
	if *packOut != "" {
		buf, err := spectrum.PackWith(last, spectrum.CompressionGzip)
		if err != nil {
			log.Fatalf("pack: %v", err)
		}
		if err := os.WriteFile(*packOut, buf, 0o644); err != nil {
			log.Fatalf("write %s: %v", *packOut, err)
		}
		log.Printf("[INFO] wrote %s (%d bytes)", *packOut, len(buf))
	}

	log.Println("====================================================")
	log.Printf(" Probe completed: %d frame(s)", got)
	log.Println("====================================================")
}
