// Package capacity converts between human-readable capacity strings such as
// "32GB" and the normalized megabyte integers stored in the database.
package capacity

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Megabyte multipliers per unit.
const (
	MB int64 = 1
	GB int64 = 1024 * MB
	TB int64 = 1024 * GB
)

var (
	// looseRe matches the first "<integer><unit>" anywhere in the input.
	looseRe = regexp.MustCompile(`(?i)(\d+)\s*(MB|GB|TB)`)
	// strictRe requires the whole (trimmed) input to be "<integer><unit>".
	strictRe = regexp.MustCompile(`(?i)^(\d+)\s*(MB|GB|TB)$`)
)

// ErrMalformed is returned by ParseStrict for input it cannot read.
type ErrMalformed struct {
	Input string
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("capacity: malformed value %q (want <integer><MB|GB|TB>)", e.Input)
}

// Parse reads a capacity string into megabytes. Absent or malformed input
// yields zero.
func Parse(s string) int64 {
	m := looseRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	mb, ok := toMB(m[1], m[2])
	if !ok {
		return 0
	}
	return mb
}

// ParseStrict reads a capacity string into megabytes. Empty input returns
// nil; anything that is not exactly "<integer><unit>" is an error.
func ParseStrict(s string) (*int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, nil
	}
	m := strictRe.FindStringSubmatch(trimmed)
	if m == nil {
		return nil, &ErrMalformed{Input: s}
	}
	mb, ok := toMB(m[1], m[2])
	if !ok {
		return nil, &ErrMalformed{Input: s}
	}
	return &mb, nil
}

func toMB(digits, unit string) (int64, bool) {
	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	mult := MB
	switch strings.ToUpper(unit) {
	case "TB":
		mult = TB
	case "GB":
		mult = GB
	}
	if value > math.MaxInt64/mult {
		return 0, false
	}
	return value * mult, true
}

// Format renders megabytes exactly, in the largest unit that divides evenly.
func Format(mb int64) string {
	switch {
	case mb != 0 && mb%TB == 0:
		return fmt.Sprintf("%dTB", mb/TB)
	case mb%GB == 0:
		return fmt.Sprintf("%dGB", mb/GB)
	default:
		return fmt.Sprintf("%dMB", mb)
	}
}

// FormatPtr is Format for nullable columns.
func FormatPtr(mb *int64) *string {
	if mb == nil {
		return nil
	}
	s := Format(*mb)
	return &s
}

// Display renders an aggregate with one decimal, in GB below 1024GB and TB above.
func Display(mb int64) string {
	gb := float64(mb) / float64(GB)
	if gb >= 1024 {
		return fmt.Sprintf("%.1fTB", gb/1024)
	}
	return fmt.Sprintf("%.1fGB", gb)
}
