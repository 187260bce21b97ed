package transfer

import (
	"encoding/json"
	"strings"
)

// logLine is one JSON log record emitted by the engine. Anything that does
// not decode as this shape is treated as garbled output.
type logLine struct {
	Level string        `json:"level"`
	Msg   string        `json:"msg"`
	Stats *statsPayload `json:"stats"`
}

type statsPayload struct {
	Bytes     int64   `json:"bytes"`
	Transfers int64   `json:"transfers"`
	Checks    int64   `json:"checks"`
	Deletes   int64   `json:"deletes"`
	Errors    int64   `json:"errors"`
	Speed     float64 `json:"speed"`
}

// accumulator folds engine log lines into transfer totals. Stats lines are
// cumulative, so the latest one wins.
type accumulator struct {
	filesTransferred int64
	filesChecked     int64
	filesDeleted     int64
	bytesTransferred int64
	speedBytesPerSec float64
	errorCount       int
	errorSample      []string
}

const accumulatorErrorSampleLimit = 10

// consume parses one log line. Garbled lines count as errors but never
// abort the transfer.
func (a *accumulator) consume(raw string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return
	}

	var line logLine
	if err := json.Unmarshal([]byte(trimmed), &line); err != nil {
		a.recordError("unparseable engine output: " + truncate(trimmed, 200))
		return
	}

	if line.Stats != nil {
		a.filesTransferred = line.Stats.Transfers
		a.filesChecked = line.Stats.Checks
		a.filesDeleted = line.Stats.Deletes
		a.bytesTransferred = line.Stats.Bytes
		a.speedBytesPerSec = line.Stats.Speed
	}
	if strings.EqualFold(line.Level, "error") {
		a.recordError(line.Msg)
	}
}

func (a *accumulator) recordError(msg string) {
	a.errorCount++
	if msg != "" && len(a.errorSample) < accumulatorErrorSampleLimit {
		a.errorSample = append(a.errorSample, msg)
	}
}

// rateMbps converts the engine's bytes-per-second speed to megabytes per
// second for the audit trail.
func (a *accumulator) rateMbps() float64 {
	return a.speedBytesPerSec / (1024 * 1024)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
