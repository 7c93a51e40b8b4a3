// Package certnum provides certificate number and range value types.
// Numbers render as fixed-width, zero-padded strings; a number that does
// not fit the width is an error, never a truncation.
package certnum

import (
	"fmt"
	"strconv"
	"strings"
)

// Width is the fixed render width of a certificate number.
const Width = 4

// Max is the largest number representable at the fixed width.
const Max = 9999

// Number is a single certificate number.
type Number int

// Valid reports whether the number fits the fixed render width.
func (n Number) Valid() error {
	if n < 0 {
		return fmt.Errorf("certificate number %d is negative", int(n))
	}
	if n > Max {
		return fmt.Errorf("certificate number %d exceeds width %d", int(n), Width)
	}
	return nil
}

// String renders the number zero-padded to Width.
// Callers must have validated the number; String never truncates, so an
// out-of-range value renders wider than Width and is visibly wrong.
func (n Number) String() string {
	return fmt.Sprintf("%0*d", Width, int(n))
}

// Format renders the number, rejecting values outside the fixed width.
func Format(n Number) (string, error) {
	if err := n.Valid(); err != nil {
		return "", err
	}
	return n.String(), nil
}

// Parse reads a zero-padded number string.
func Parse(s string) (Number, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse certificate number %q: %w", s, err)
	}
	n := Number(v)
	if err := n.Valid(); err != nil {
		return 0, err
	}
	return n, nil
}

// Range is a contiguous block of certificate numbers [Start, Start+Quantity).
type Range struct {
	Start    int
	Quantity int
}

// NewRange validates the block boundaries, including that the last number
// still fits the render width.
func NewRange(start, quantity int) (Range, error) {
	if start < 0 {
		return Range{}, fmt.Errorf("range start %d is negative", start)
	}
	if quantity < 0 {
		return Range{}, fmt.Errorf("range quantity %d is negative", quantity)
	}
	if quantity > 0 {
		if err := Number(start + quantity - 1).Valid(); err != nil {
			return Range{}, err
		}
	}
	return Range{Start: start, Quantity: quantity}, nil
}

// IsEmpty reports a zero-length range.
func (r Range) IsEmpty() bool {
	return r.Quantity == 0
}

// End returns the exclusive upper bound.
func (r Range) End() int {
	return r.Start + r.Quantity
}

// Numbers expands the range in ascending order.
func (r Range) Numbers() []Number {
	nums := make([]Number, 0, r.Quantity)
	for i := r.Start; i < r.End(); i++ {
		nums = append(nums, Number(i))
	}
	return nums
}

// Strings renders the range in ascending order.
func (r Range) Strings() []string {
	out := make([]string, 0, r.Quantity)
	for _, n := range r.Numbers() {
		out = append(out, n.String())
	}
	return out
}

// JoinRecord renders numbers as the persisted order-record format:
// a comma-joined list of padded numbers ("0000, 0001, 0002").
func JoinRecord(nums []Number) string {
	parts := make([]string, 0, len(nums))
	for _, n := range nums {
		parts = append(parts, n.String())
	}
	return strings.Join(parts, ", ")
}

// ParseRecord reads a persisted order record back into numbers.
func ParseRecord(record string) ([]Number, error) {
	record = strings.TrimSpace(record)
	if record == "" {
		return nil, nil
	}
	parts := strings.Split(record, ",")
	nums := make([]Number, 0, len(parts))
	for _, p := range parts {
		n, err := Parse(p)
		if err != nil {
			return nil, err
		}
		nums = append(nums, n)
	}
	return nums, nil
}
