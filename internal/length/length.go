// Package length flags functions whose line span exceeds a threshold.
package length

import (
	"fmt"
	"strings"

	"github.com/phobologic/codelens/internal/model"
)

// Mode selects how a function's length is measured.
type Mode string

const (
	// ModeSpan measures the definition from its def line to its last line.
	ModeSpan Mode = "span"
	// ModeBody measures from the first to the last body statement line.
	ModeBody Mode = "body"
)

// ParseMode converts a string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSpan:
		return ModeSpan, nil
	case ModeBody:
		return ModeBody, nil
	default:
		return "", fmt.Errorf("unknown length mode %q (want span or body)", s)
	}
}

// Measure returns the length of r under mode.
func Measure(r model.FunctionRecord, mode Mode) int {
	if mode == ModeBody {
		return r.BodyLength()
	}
	return r.Length()
}

// FindLongFunctions returns the records longer than threshold, in catalog
// order. It only reads the records. A negative threshold is treated as 0.
func FindLongFunctions(records []model.FunctionRecord, threshold int, mode Mode) []model.LongFunction {
	if threshold < 0 {
		threshold = 0
	}
	long := make([]model.LongFunction, 0)
	for i := range records {
		n := Measure(records[i], mode)
		if n > threshold {
			long = append(long, model.LongFunction{Name: records[i].Name, Length: n, StartLine: records[i].StartLine})
		}
	}
	return long
}
