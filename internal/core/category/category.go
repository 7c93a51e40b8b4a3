// Package category defines certificate categories and the mapping from
// product variations to categories. The mapping is explicit configuration:
// a variation without an entry has no category, there is no default.
package category

import (
	"encoding/json"
	"fmt"

	"certflow/internal/core/id"
)

// Category identifies a certificate class. Each category has its own
// numbering sequence and file namespace.
type Category string

const (
	FiveYear Category = "5-year"
	TenYear  Category = "10-year"
)

// All returns the known categories.
func All() []Category {
	return []Category{FiveYear, TenYear}
}

// Valid reports whether the category is a known enum value.
func (c Category) Valid() error {
	switch c {
	case FiveYear, TenYear:
		return nil
	}
	return fmt.Errorf("unknown certificate category %q", string(c))
}

// RecordKey returns the order-metadata key under which this category's
// certificate numbers are persisted.
func (c Category) RecordKey() string {
	switch c {
	case FiveYear:
		return "_cert_numbers_5"
	case TenYear:
		return "_cert_numbers_10"
	}
	return ""
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}

// VariationMap maps product variation identifiers to categories.
// It replaces the hard-coded variation ID literals of earlier site builds
// with injectable configuration.
type VariationMap map[id.ID]Category

// CategoryFor resolves a variation to its category.
func (m VariationMap) CategoryFor(variationID id.ID) (Category, error) {
	c, ok := m[variationID]
	if !ok {
		return "", fmt.Errorf("variation %s has no certificate category", variationID)
	}
	return c, nil
}

// ParseVariationMap reads a JSON object of variation-id -> category name.
// Every category value must be a known enum value.
func ParseVariationMap(raw string) (VariationMap, error) {
	var decoded map[string]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("parse variation map: %w", err)
	}

	m := make(VariationMap, len(decoded))
	for k, v := range decoded {
		vid, err := id.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("variation map key %q: %w", k, err)
		}
		cat := Category(v)
		if err := cat.Valid(); err != nil {
			return nil, fmt.Errorf("variation map value for %s: %w", k, err)
		}
		m[vid] = cat
	}
	return m, nil
}
