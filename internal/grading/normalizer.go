package grading

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Normalize turns a stored reference answer of unknown shape into an ordered
// list of candidate strings. It never fails: malformed input degrades to the
// best candidate list it can find, and an absent reference yields an empty list.
//
// Casing is preserved; comparison helpers fold case themselves.
func Normalize(raw interface{}) []string {
	var candidates []string

	switch value := raw.(type) {
	case nil:
		return []string{}
	case []string:
		candidates = append(candidates, value...)
	case []interface{}:
		candidates = collectCandidates(value)
	case json.RawMessage:
		return NormalizeJSON(value)
	default:
		text, ok := scalarString(value)
		if !ok {
			return []string{}
		}
		candidates = []string{text}
	}

	candidates = compact(candidates)
	for {
		unwrapped, ok := unwrapBracketJSON(candidates)
		if !ok {
			return candidates
		}
		candidates = compact(unwrapped)
	}
}

// NormalizeJSON normalizes a reference answer persisted as a JSON document.
// Bytes that are not valid JSON are treated as a literal string.
func NormalizeJSON(data []byte) []string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []string{}
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var raw interface{}
	if err := decoder.Decode(&raw); err != nil {
		return Normalize(string(trimmed))
	}

	return Normalize(raw)
}

// unwrapBracketJSON handles the legacy double encoding where a whole list was
// stored as a single JSON string, e.g. ["[\"cat\",\"dog\"]"]. It reports
// false when there is nothing to unwrap.
func unwrapBracketJSON(candidates []string) ([]string, bool) {
	if len(candidates) != 1 {
		return candidates, false
	}

	only := strings.TrimSpace(candidates[0])
	if !strings.HasPrefix(only, "[") || !strings.HasSuffix(only, "]") {
		return candidates, false
	}

	decoder := json.NewDecoder(strings.NewReader(only))
	decoder.UseNumber()

	var parsed []interface{}
	if err := decoder.Decode(&parsed); err != nil {
		return candidates, false
	}

	return collectCandidates(parsed), true
}

// collectCandidates keeps the scalar items of a list. Nested lists and
// objects are not answers and are dropped.
func collectCandidates(values []interface{}) []string {
	out := make([]string, 0, len(values))
	for _, item := range values {
		if text, ok := scalarString(item); ok {
			out = append(out, text)
		}
	}
	return out
}

func compact(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		out = append(out, candidate)
	}
	return out
}

// canonical is the comparison form shared by every matcher.
func canonical(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
