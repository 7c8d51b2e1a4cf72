package grading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AnswerKind tags the shape of a submitted answer.
type AnswerKind int

const (
	// KindScalar is a single string (or number/bool coerced to a string).
	KindScalar AnswerKind = iota
	// KindList is an ordered list of strings, e.g. multi-blank answers.
	KindList
	// KindAudio is a recorded spoken response.
	KindAudio
)

func (k AnswerKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// AudioBlob is a recorded response as uploaded by the client.
type AudioBlob struct {
	Data     []byte
	MimeType string
	FileName string
}

// SubmittedAnswer is resolved once at the boundary so scoring never has to
// type-switch on raw payloads.
type SubmittedAnswer struct {
	Kind  AnswerKind
	Text  string
	Items []string
	Audio *AudioBlob
}

// TextAnswer builds a scalar answer.
func TextAnswer(text string) SubmittedAnswer {
	return SubmittedAnswer{Kind: KindScalar, Text: text}
}

// ListAnswer builds a list answer.
func ListAnswer(items ...string) SubmittedAnswer {
	return SubmittedAnswer{Kind: KindList, Items: append([]string(nil), items...)}
}

// AudioAnswer builds an audio answer.
func AudioAnswer(blob AudioBlob) SubmittedAnswer {
	return SubmittedAnswer{Kind: KindAudio, Audio: &blob}
}

// IsAudio reports whether the answer still needs transcription.
func (a SubmittedAnswer) IsAudio() bool {
	return a.Kind == KindAudio
}

// ComparisonText reduces the answer to the single string used for matching.
// List items are joined with one space; audio answers have no text until transcribed.
func (a SubmittedAnswer) ComparisonText() string {
	switch a.Kind {
	case KindList:
		return strings.Join(a.Items, " ")
	case KindAudio:
		return ""
	default:
		return a.Text
	}
}

// IsEmpty reports whether the answer carries nothing to grade.
func (a SubmittedAnswer) IsEmpty() bool {
	if a.Kind == KindAudio {
		return a.Audio == nil || len(a.Audio.Data) == 0
	}
	return strings.TrimSpace(a.ComparisonText()) == ""
}

// UnmarshalJSON accepts a string, number, bool or array of those.
func (a *SubmittedAnswer) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*a = TextAnswer("")
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var raw interface{}
	if err := decoder.Decode(&raw); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}

	switch value := raw.(type) {
	case []interface{}:
		items := make([]string, 0, len(value))
		for _, item := range value {
			if text, ok := scalarString(item); ok {
				items = append(items, text)
			}
		}
		*a = ListAnswer(items...)
	default:
		text, ok := scalarString(value)
		if !ok {
			return fmt.Errorf("answer must be a string or list of strings")
		}
		*a = TextAnswer(text)
	}

	return nil
}

// MarshalJSON renders the comparison text; audio payloads are never echoed back.
func (a SubmittedAnswer) MarshalJSON() ([]byte, error) {
	if a.Kind == KindList {
		return json.Marshal(a.Items)
	}
	return json.Marshal(a.ComparisonText())
}

func scalarString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}
