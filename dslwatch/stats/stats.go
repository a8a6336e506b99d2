// CLAUDE:SUMMARY Declarative regex extraction of DSL line metrics into a Snapshot.
// Package stats turns the raw DSL driver dump into a structured snapshot.
//
// Extraction is declarative: each Definition pairs a metric key with a
// regular expression and a Shape. A definition that does not match is simply
// absent from the Snapshot; partial results are valid.
package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Shape describes how many captures a Definition yields.
type Shape int

const (
	Single Shape = iota // one trimmed textual capture
	Dual                // two numeric captures: downstream, upstream
)

func (s Shape) String() string {
	switch s {
	case Single:
		return "single"
	case Dual:
		return "dual"
	}
	return fmt.Sprintf("shape(%d)", int(s))
}

// Metric keys of the default definition set.
const (
	KeyUptime    = "uptime"
	KeyFECErrors = "fecErrors"
	KeyCRCErrors = "crcErrors"
)

// Definition is one extraction rule. Immutable once built.
type Definition struct {
	Key     string
	Pattern *regexp.Regexp
	Shape   Shape
}

// Pair holds a downstream/upstream measurement. A component that failed to
// parse is NaN.
type Pair struct {
	Downstream float64 `json:"downstream"`
	Upstream   float64 `json:"upstream"`
}

// MarshalJSON encodes NaN components as null; encoding/json rejects NaN.
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Downstream *float64 `json:"downstream"`
		Upstream   *float64 `json:"upstream"`
	}{finite(p.Downstream), finite(p.Upstream)})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Value is either a Single text or a Dual pair, selected by Shape.
type Value struct {
	Shape Shape
	Text  string
	Pair  Pair
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.Shape == Dual {
		return json.Marshal(v.Pair)
	}
	return json.Marshal(v.Text)
}

// Snapshot maps metric keys to extracted values. A fresh Snapshot is built
// per poll; callers never mutate one in place.
type Snapshot map[string]Value

// Has reports whether key was extracted.
func (s Snapshot) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Text returns the Single value for key.
func (s Snapshot) Text(key string) (string, bool) {
	v, ok := s[key]
	if !ok || v.Shape != Single {
		return "", false
	}
	return v.Text, true
}

// Pair returns the Dual value for key.
func (s Snapshot) Pair(key string) (Pair, bool) {
	v, ok := s[key]
	if !ok || v.Shape != Dual {
		return Pair{}, false
	}
	return v.Pair, true
}

// Extract applies every definition to the full text. It never fails: a
// definition without a match leaves its key out of the result.
func Extract(text string, defs []Definition) Snapshot {
	snap := make(Snapshot, len(defs))
	for _, def := range defs {
		m := def.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		switch def.Shape {
		case Single:
			if len(m) < 2 {
				continue
			}
			snap[def.Key] = Value{Shape: Single, Text: strings.TrimSpace(m[1])}
		case Dual:
			if len(m) < 3 {
				continue
			}
			snap[def.Key] = Value{Shape: Dual, Pair: Pair{
				Downstream: parseFloat(m[1]),
				Upstream:   parseFloat(m[2]),
			}}
		}
	}
	return snap
}

var leadingNumber = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`)

// parseFloat reads the longest decimal prefix of s, so "1.2.3" is 1.2 and
// "12..5" is 12. No numeric prefix is NaN.
func parseFloat(s string) float64 {
	num := leadingNumber.FindString(strings.TrimSpace(s))
	if num == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// Validate checks that every key appears at most once and that each pattern
// has enough capture groups for its shape.
func Validate(defs []Definition) error {
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if d.Key == "" {
			return fmt.Errorf("stats: definition with empty key")
		}
		if seen[d.Key] {
			return fmt.Errorf("stats: duplicate definition key %q", d.Key)
		}
		seen[d.Key] = true
		if d.Pattern == nil {
			return fmt.Errorf("stats: definition %q has no pattern", d.Key)
		}
		want := 1
		if d.Shape == Dual {
			want = 2
		}
		if got := d.Pattern.NumSubexp(); got < want {
			return fmt.Errorf("stats: definition %q (%s) needs %d groups, pattern has %d",
				d.Key, d.Shape, want, got)
		}
	}
	return nil
}

var defaultDefinitions = []Definition{
	{Key: KeyUptime, Pattern: regexp.MustCompile(`Uptime:\s+(.+)`), Shape: Single},
	{Key: KeyFECErrors, Pattern: regexp.MustCompile(`FEC errors fast:\s+([\d.]+)\s+([\d.]+)`), Shape: Dual},
	{Key: KeyCRCErrors, Pattern: regexp.MustCompile(`CRC errors fast:\s+([\d.]+)\s+([\d.]+)`), Shape: Dual},
}

func init() {
	if err := Validate(defaultDefinitions); err != nil {
		panic(err)
	}
}

// DefaultDefinitions returns the uptime, FEC and CRC definitions. The slice
// is a copy; the compiled patterns are shared and safe for concurrent use.
func DefaultDefinitions() []Definition {
	out := make([]Definition, len(defaultDefinitions))
	copy(out, defaultDefinitions)
	return out
}
