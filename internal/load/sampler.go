// Package load samples the system load average.
package load

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// DefaultLoadAvgPath is the Linux load average file.
const DefaultLoadAvgPath = "/proc/loadavg"

var errUnexpectedFormat = errors.New("unexpected loadavg format")

// Sampler reads the 5-minute load average from a /proc/loadavg style file.
type Sampler struct {
	// path is the loadavg file location.
	path string
}

// NewSampler returns a sampler for path, or DefaultLoadAvgPath when empty.
func NewSampler(path string) *Sampler {
	if path == "" {
		path = DefaultLoadAvgPath
	}

	return &Sampler{path: path}
}

// CurrentLoad returns the 5-minute load average rounded to two decimals.
func (s *Sampler) CurrentLoad(_ context.Context) (float64, error) {
	contents, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.path, err)
	}

	// Fields: 1m 5m 15m running/total last_pid.
	fields := strings.Fields(string(contents))
	if len(fields) < 3 {
		return 0, fmt.Errorf("%s: %w", s.path, errUnexpectedFormat)
	}

	load5, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, fmt.Errorf("parse 5-minute load: %w", err)
	}

	return math.Round(load5*100) / 100, nil
}
