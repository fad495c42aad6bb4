// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package indexrange parses OPC UA index ranges and applies them to values
// of arbitrary shape.
//
// An index range such as "1:2,0:1" addresses a sub-region of an array,
// string or byte string, one comma separated token per dimension with the
// outermost dimension first. Read clamps a high bound that runs past the end
// of the value; Write rejects it, so a write never silently drops elements.
package indexrange

import (
	"strconv"
	"strings"

	opcua "github.com/edgeo-scada/opcua-typesys"
)

// Separators of the textual form.
const (
	DimensionSeparator = ","
	BoundsSeparator    = ":"
)

// Bounds is an inclusive range of indices along one dimension.
type Bounds struct {
	Low  int
	High int
}

// NewBounds returns the bounds [low, high]. Negative values and low > high
// fail with BadIndexRangeInvalid.
func NewBounds(low, high int) (Bounds, error) {
	if low < 0 || high < 0 || low > high {
		return Bounds{}, opcua.NewStatusError(opcua.StatusBadIndexRangeInvalid, "bounds %d:%d", low, high)
	}
	return Bounds{Low: low, High: high}, nil
}

// Len returns the number of indices the bounds cover.
func (b Bounds) Len() int {
	return b.High - b.Low + 1
}

// Contains reports whether i lies within the bounds.
func (b Bounds) Contains(i int) bool {
	return i >= b.Low && i <= b.High
}

// String returns the bounds in index range notation.
func (b Bounds) String() string {
	if b.Low == b.High {
		return strconv.Itoa(b.Low)
	}
	return strconv.Itoa(b.Low) + BoundsSeparator + strconv.Itoa(b.High)
}

// IndexRange is a parsed index range. Bounds holds one entry per addressed
// dimension, outermost first.
type IndexRange struct {
	Bounds []Bounds
	Text   string
}

// Parse parses the textual form of an index range.
//
// Each dimension is either a single index "N" or a range "N1:N2" with
// N1 < N2. An empty string, an empty token, a negative or non-numeric
// index, a reversed range and a range with equal ends all fail with
// BadIndexRangeInvalid.
func Parse(text string) (*IndexRange, error) {
	if text == "" {
		return nil, opcua.NewStatusError(opcua.StatusBadIndexRangeInvalid, "empty index range")
	}

	tokens := strings.Split(text, DimensionSeparator)
	bounds := make([]Bounds, len(tokens))
	for i, tok := range tokens {
		b, err := parseBounds(tok)
		if err != nil {
			return nil, opcua.NewStatusError(opcua.StatusBadIndexRangeInvalid, "%q: dimension %d: %v", text, i+1, err)
		}
		bounds[i] = b
	}
	return &IndexRange{Bounds: bounds, Text: text}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string) *IndexRange {
	r, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return r
}

func parseBounds(tok string) (Bounds, error) {
	parts := strings.Split(tok, BoundsSeparator)
	switch len(parts) {
	case 1:
		n, err := parseIndex(parts[0])
		if err != nil {
			return Bounds{}, err
		}
		return Bounds{Low: n, High: n}, nil
	case 2:
		low, err := parseIndex(parts[0])
		if err != nil {
			return Bounds{}, err
		}
		high, err := parseIndex(parts[1])
		if err != nil {
			return Bounds{}, err
		}
		if low == high {
			return Bounds{}, strconv.ErrSyntax
		}
		return NewBounds(low, high)
	default:
		return Bounds{}, strconv.ErrSyntax
	}
}

// parseIndex accepts decimal digits only; signs and whitespace are rejected.
func parseIndex(s string) (int, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// New builds an index range from bounds, validating each of them.
func New(bounds ...Bounds) (*IndexRange, error) {
	if len(bounds) == 0 {
		return nil, opcua.NewStatusError(opcua.StatusBadIndexRangeInvalid, "no dimensions")
	}
	tokens := make([]string, len(bounds))
	for i, b := range bounds {
		if _, err := NewBounds(b.Low, b.High); err != nil {
			return nil, err
		}
		tokens[i] = b.String()
	}
	return &IndexRange{
		Bounds: append([]Bounds(nil), bounds...),
		Text:   strings.Join(tokens, DimensionSeparator),
	}, nil
}

// Dimensions returns the number of dimensions the range addresses.
func (r *IndexRange) Dimensions() int {
	return len(r.Bounds)
}

// String returns the text the range was parsed from.
func (r *IndexRange) String() string {
	return r.Text
}
