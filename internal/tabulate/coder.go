package tabulate

import (
	"fmt"

	"github.com/cwbudde/resistornet/internal/network"
)

// Mask is the compact lookup key of a value subset
type Mask uint64

// Coder maps a set of values to its lookup key. Encode must be deterministic
// and injective over every subset the table covers.
type Coder interface {
	Encode(values []network.Value) Mask
}

// MaxBitCoderValues is the largest problem size a BitCoder can encode
const MaxBitCoderValues = 64

// BitCoder sets bit v of the mask for every value v
type BitCoder struct{}

// Encode implements Coder
func (BitCoder) Encode(values []network.Value) Mask {
	var m Mask
	for _, v := range values {
		m |= 1 << uint(v)
	}
	return m
}

// Check rejects problem sizes the coder cannot represent
func (BitCoder) Check(n int) error {
	if n <= 0 || n > MaxBitCoderValues {
		return fmt.Errorf("%w: bit coder supports 1..%d values, got %d",
			network.ErrInvalidProblemSize, MaxBitCoderValues, n)
	}
	return nil
}

// Values decodes a mask produced by BitCoder back into ascending values
func (m Mask) Values() []network.Value {
	var out []network.Value
	for v := 0; m != 0; v++ {
		if m&1 == 1 {
			out = append(out, v)
		}
		m >>= 1
	}
	return out
}

// sizeChecker is implemented by coders with a bounded domain
type sizeChecker interface {
	Check(n int) error
}
