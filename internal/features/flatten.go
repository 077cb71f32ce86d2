package features

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Kind tags what a flattened JSON leaf turned into.
type Kind int

const (
	// Dropped leaves contribute nothing.
	Dropped Kind = iota
	// Numeric leaves are numbers or booleans copied through.
	Numeric
	// Count leaves are lists reduced to their length.
	Count
	// Textual leaves are sentiment-like strings awaiting a qualitative score.
	Textual
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Count:
		return "count"
	case Textual:
		return "textual"
	default:
		return "dropped"
	}
}

// FlattenedFeature is one leaf of a free-form JSON document.
type FlattenedFeature struct {
	Name  string
	Kind  Kind
	Value float64
	Text  string
}

var sentimentWords = []string{
	"positive", "negative", "neutral", "bullish", "bearish", "optimistic", "pessimistic",
	"enthusiastic", "skeptical", "hostile", "supportive", "mixed",
}

func looksLikeSentiment(s string) bool {
	lowered := strings.ToLower(s)
	for _, w := range sentimentWords {
		if strings.Contains(lowered, w) {
			return true
		}
	}
	return false
}

// Flatten walks a JSON document and classifies every leaf. Nested keys are joined with "_" under prefix.
// Unknown shapes are Dropped; only undecodable input is an error.
func Flatten(prefix string, raw []byte) ([]FlattenedFeature, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("features: flatten %s: %w", prefix, err)
	}
	var out []FlattenedFeature
	flattenValue(sanitizeName(prefix), doc, &out)
	return out, nil
}

func flattenValue(name string, v any, out *[]FlattenedFeature) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenValue(joinName(name, sanitizeName(k)), val[k], out)
		}
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			*out = append(*out, FlattenedFeature{Name: name, Kind: Dropped})
			return
		}
		*out = append(*out, FlattenedFeature{Name: name, Kind: Numeric, Value: f})
	case bool:
		f := 0.0
		if val {
			f = 1
		}
		*out = append(*out, FlattenedFeature{Name: name, Kind: Numeric, Value: f})
	case []any:
		*out = append(*out, FlattenedFeature{Name: name + "_count", Kind: Count, Value: float64(len(val))})
	case string:
		if looksLikeSentiment(val) {
			*out = append(*out, FlattenedFeature{Name: name, Kind: Textual, Text: val})
			return
		}
		*out = append(*out, FlattenedFeature{Name: name, Kind: Dropped})
	default:
		*out = append(*out, FlattenedFeature{Name: name, Kind: Dropped})
	}
}

func joinName(prefix, key string) string {
	if prefix == "" {
		return key
	}
	if key == "" {
		return prefix
	}
	return prefix + "_" + key
}

func sanitizeName(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
