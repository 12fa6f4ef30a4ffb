package connectionmgr

import (
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// greetingPrefix starts the server's reply to the client hello.
	greetingPrefix = "CLIENT DE SERVER"

	// msgTypeFFT tags a binary message carrying a waterfall payload.
	msgTypeFFT byte = 1
)

// Config is the receiver state announced in a "config" message. Each
// message replaces the previous Config entirely.
type Config struct {
	FFTSize        int     `json:"fft_size"`
	CenterFreqHz   float64 `json:"center_freq"`
	SampleRateHz   float64 `json:"samp_rate"`
	FFTCompression string  `json:"fft_compression"`
}

// textKind classifies an inbound text message.
type textKind int

const (
	textIgnored textKind = iota
	textGreeting
	textConfig
)

// parseText routes a text message. Non-JSON text and JSON of any type other
// than "config" are ignored; a ProtocolError is returned only to say why.
func parseText(msg string) (textKind, Config, error) {
	if strings.HasPrefix(msg, greetingPrefix) {
		return textGreeting, Config{}, nil
	}
	if !gjson.Valid(msg) {
		return textIgnored, Config{}, &ProtocolError{Reason: "text message is not JSON"}
	}
	res := gjson.Parse(msg)
	if !res.IsObject() {
		return textIgnored, Config{}, &ProtocolError{Reason: "JSON message is not an object"}
	}
	if res.Get("type").String() != "config" {
		return textIgnored, Config{}, nil
	}

	value := res.Get("value")
	if value.Exists() && !value.IsObject() {
		return textIgnored, Config{}, &ProtocolError{Reason: "config value is not an object"}
	}
	cfg := Config{
		FFTSize:        int(value.Get("fft_size").Int()),
		CenterFreqHz:   value.Get("center_freq").Float(),
		SampleRateHz:   value.Get("samp_rate").Float(),
		FFTCompression: value.Get("fft_compression").String(),
	}
	if cfg.FFTCompression == "" {
		cfg.FFTCompression = "none"
	}
	return textConfig, cfg, nil
}

// splitBinary separates the message-type tag from the payload.
func splitBinary(msg []byte) (byte, []byte, bool) {
	if len(msg) < 1 {
		return 0, nil, false
	}
	return msg[0], msg[1:], true
}
