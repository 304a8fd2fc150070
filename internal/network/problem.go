package network

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidProblemSize is returned when a problem has no usable values.
// Use errors.Is(err, ErrInvalidProblemSize) to check for this error.
var ErrInvalidProblemSize = errors.New("invalid problem size")

// SeriesName names a standard component series
type SeriesName string

const (
	// SeriesInt assigns value i the magnitude i+1
	SeriesInt SeriesName = "INT"
	// SeriesE12 assigns E12 preferred numbers over ascending decades
	SeriesE12 SeriesName = "E12"
)

var e12 = [...]float64{1.0, 1.2, 1.5, 1.8, 2.2, 2.7, 3.3, 3.9, 4.7, 5.6, 6.8, 8.2}

// ParseSeries converts a user supplied series name
func ParseSeries(s string) (SeriesName, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(SeriesInt):
		return SeriesInt, nil
	case string(SeriesE12):
		return SeriesE12, nil
	default:
		return "", fmt.Errorf("unknown series %q (want INT or E12)", s)
	}
}

// Magnitude returns the resistance of value i in the series
func (s SeriesName) Magnitude(i Value) float64 {
	switch s {
	case SeriesE12:
		decade := math.Pow(10, float64(i/len(e12)))
		// Round away float noise so 3.3*100 prints as 330
		return math.Round(e12[i%len(e12)]*decade*1e6) / 1e6
	default:
		return float64(i + 1)
	}
}

// Problem is an immutable synthesis target: N resistors drawn from a series
// and the resistance the finished network should approximate.
type Problem struct {
	Series     SeriesName `json:"series"`
	Magnitudes []float64  `json:"magnitudes"`
	Target     float64    `json:"target"`
}

// NewProblem creates a problem using the first n values of series
func NewProblem(n int, series SeriesName, target float64) (*Problem, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: need at least one value, got %d", ErrInvalidProblemSize, n)
	}
	if series != SeriesInt && series != SeriesE12 {
		return nil, fmt.Errorf("unknown series %q", series)
	}
	if target <= 0 || math.IsInf(target, 0) || math.IsNaN(target) {
		return nil, fmt.Errorf("target must be positive and finite, got %v", target)
	}

	magnitudes := make([]float64, n)
	for i := range magnitudes {
		magnitudes[i] = series.Magnitude(i)
	}

	return &Problem{
		Series:     series,
		Magnitudes: magnitudes,
		Target:     target,
	}, nil
}

// Size returns N, the number of available values
func (p *Problem) Size() int {
	if p == nil {
		return 0
	}
	return len(p.Magnitudes)
}

// Magnitude returns the resistance of value v
func (p *Problem) Magnitude(v Value) float64 {
	return p.Magnitudes[v]
}
