// Package tabulate precomputes every series-parallel network over small value
// subsets and searches those tables during refinement. A network's total
// resistance never decreases when the resistance of one of its sub-networks
// grows, and options are sorted by resistance, so the searches walk the
// options in resistance order towards the target and only pay a full cost
// evaluation on the candidates around the crossing point.
package tabulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/resistornet/internal/network"
)

// ErrPrecomputationMissing is returned when a subset has no lookup-table
// entry, which means the expansion group size exceeds what was tabulated.
var ErrPrecomputationMissing = errors.New("precomputation missing")

// MissingEntryError identifies the subset that had no entry
type MissingEntryError struct {
	Mask   Mask
	Values []network.Value
}

func (e *MissingEntryError) Error() string {
	return fmt.Sprintf("precomputation missing for mask %#x (values %v)", uint64(e.Mask), e.Values)
}

func (e *MissingEntryError) Unwrap() error {
	return ErrPrecomputationMissing
}

// Option is one precomputed candidate sub-network for a value subset.
// Entries are ordered by Resistance, ascending.
type Option struct {
	Resistance float64       `json:"resistance"`
	Network    *network.Node `json:"network"`
}

// GroupSizeLimit is the largest group size a Table accepts. The number of
// candidate networks per subset grows factorially with its size.
const GroupSizeLimit = 6

// dedupTolerance is the relative distance below which two resistances are
// considered the same option.
const dedupTolerance = 1e-12

// Table is the subset tabulator. After Tabulate returns, the table is
// read-only and may be shared between solvers running concurrently.
type Table struct {
	mu        sync.Mutex
	m         int
	coder     Coder
	evaluator network.Evaluator

	problem *network.Problem
	entries map[Mask][]Option
	options int
}

// New creates a table covering subsets of up to m values
func New(m int, coder Coder, evaluator network.Evaluator) *Table {
	if coder == nil {
		coder = BitCoder{}
	}
	if evaluator == nil {
		evaluator = network.RelativeError{}
	}
	return &Table{
		m:         m,
		coder:     coder,
		evaluator: evaluator,
	}
}

// MaxGroupSize returns m, the largest exactly tabulated subset size
func (t *Table) MaxGroupSize() int {
	return t.m
}

// Coder returns the coder used to key the table
func (t *Table) Coder() Coder {
	return t.coder
}

// Entries returns the number of tabulated subsets
func (t *Table) Entries() int {
	return len(t.entries)
}

// Options returns the total number of candidate sub-networks
func (t *Table) Options() int {
	return t.options
}

// SubsetCount returns the number of subsets of 1..m out of n values, the
// number of entries Tabulate creates.
func SubsetCount(n, m int) float64 {
	if m > n {
		m = n
	}
	total, choose := 0.0, 1.0
	for k := 1; k <= m; k++ {
		choose = choose * float64(n-k+1) / float64(k)
		total += choose
	}
	return total
}

// Tabulate fills the lookup table for every subset of 1..m values of p.
// Calling it again for the same problem is a no-op. Cancelling ctx stops the
// enumeration and leaves the table empty.
func (t *Table) Tabulate(ctx context.Context, p *network.Problem) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.problem == p && t.entries != nil {
		return nil
	}
	if t.m < 1 || t.m > GroupSizeLimit {
		return fmt.Errorf("group size must be between 1 and %d, got %d", GroupSizeLimit, t.m)
	}
	n := p.Size()
	if n == 0 {
		return fmt.Errorf("%w: problem has no values", network.ErrInvalidProblemSize)
	}
	if c, ok := t.coder.(sizeChecker); ok {
		if err := c.Check(n); err != nil {
			return err
		}
	}

	start := time.Now()
	t.entries = make(map[Mask][]Option)
	t.options = 0
	t.problem = nil

	maxSize := t.m
	if maxSize > n {
		maxSize = n
	}

	done := ctx.Done()
	stopped := false
	subset := make([]network.Value, 0, maxSize)
	for size := 1; size <= maxSize && !stopped; size++ {
		var walk func(next int)
		walk = func(next int) {
			if stopped {
				return
			}
			if len(subset) == size {
				select {
				case <-done:
					stopped = true
					return
				default:
				}
				opts := t.build(p, subset)
				t.entries[t.coder.Encode(subset)] = opts
				t.options += len(opts)
				return
			}
			for v := next; v <= n-(size-len(subset)); v++ {
				subset = append(subset, v)
				walk(v + 1)
				subset = subset[:len(subset)-1]
			}
		}
		walk(0)
	}
	if stopped {
		t.entries = nil
		t.options = 0
		return fmt.Errorf("tabulation interrupted: %w", ctx.Err())
	}

	t.problem = p
	slog.Info("Tabulated subsets",
		"values", n,
		"max_group_size", t.m,
		"subsets", len(t.entries),
		"options", t.options,
		"elapsed", time.Since(start),
	)
	return nil
}

// build enumerates the series-parallel networks over subset. Every such
// network is a series or parallel join of two networks over a split of the
// subset, so smaller subsets are read back from the table.
func (t *Table) build(p *network.Problem, subset []network.Value) []Option {
	if len(subset) == 1 {
		v := subset[0]
		return []Option{{Resistance: p.Magnitude(v), Network: network.NewComponent(v)}}
	}

	var raw []Option
	rest := subset[1:]
	splits := 1 << uint(len(rest))
	left := make([]network.Value, 0, len(subset))
	right := make([]network.Value, 0, len(subset))

	// subset[0] always goes left so each split is visited once; the last
	// bit pattern would leave the right side empty.
	for bits := 0; bits < splits-1; bits++ {
		left = append(left[:0], subset[0])
		right = right[:0]
		for i, v := range rest {
			if bits&(1<<uint(i)) != 0 {
				left = append(left, v)
			} else {
				right = append(right, v)
			}
		}

		lopts := t.entries[t.coder.Encode(left)]
		ropts := t.entries[t.coder.Encode(right)]
		for _, a := range lopts {
			for _, b := range ropts {
				for _, op := range [...]network.Op{network.Series, network.Parallel} {
					raw = append(raw, Option{
						Resistance: network.Combine(op, a.Resistance, b.Resistance),
						Network:    network.NewCombination(op, a.Network, b.Network),
					})
				}
			}
		}
	}

	sort.SliceStable(raw, func(i, j int) bool {
		return raw[i].Resistance < raw[j].Resistance
	})

	opts := raw[:0]
	for _, o := range raw {
		if len(opts) > 0 {
			last := opts[len(opts)-1].Resistance
			if math.Abs(o.Resistance-last) <= dedupTolerance*math.Max(math.Abs(last), 1) {
				continue
			}
		}
		opts = append(opts, o)
	}
	return append([]Option(nil), opts...)
}

// Lookup returns the ordered candidates for mask
func (t *Table) Lookup(mask Mask) ([]Option, bool) {
	opts, ok := t.entries[mask]
	if !ok || len(opts) == 0 {
		return nil, false
	}
	return opts, true
}

func (t *Table) entry(values []network.Value) ([]Option, error) {
	mask := t.coder.Encode(values)
	opts, ok := t.Lookup(mask)
	if !ok {
		return nil, &MissingEntryError{Mask: mask, Values: append([]network.Value(nil), values...)}
	}
	return opts, nil
}
