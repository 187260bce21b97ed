package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// normalizeCron accepts the standard five-field form and tolerates a legacy
// six-field form by dropping the leading seconds column.
func normalizeCron(expr string) (string, error) {
	fields := strings.Fields(expr)
	switch len(fields) {
	case 5:
		return strings.Join(fields, " "), nil
	case 6:
		return strings.Join(fields[1:], " "), nil
	default:
		return "", fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
}

func parseCron(expr string) (cron.Schedule, error) {
	normalized, err := normalizeCron(expr)
	if err != nil {
		return nil, err
	}
	return cron.ParseStandard(normalized)
}

// cronNext computes the fire time after the reference instant.
func cronNext(expr string, after time.Time) (time.Time, error) {
	schedule, err := parseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(after), nil
}
