package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseExaminerResponse(t *testing.T) {
	result, err := parseExaminerResponse(`{"score": 0.72, "feedback": " Good range of vocabulary. "}`)
	require.NoError(t, err)
	require.Equal(t, 72, result.Score)
	require.Equal(t, "Good range of vocabulary.", result.Feedback)

	result, err = parseExaminerResponse(`{"score": 140, "feedback": "ok"}`)
	require.NoError(t, err)
	require.Equal(t, 100, result.Score)

	_, err = parseExaminerResponse("not json")
	require.Error(t, err)
}

func TestOpenAIExaminerExamine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"score\":65,\"feedback\":\"Mostly accurate.\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	examiner, err := NewOpenAIExaminer(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	result, err := examiner.Examine(context.Background(), ExaminerInput{
		Module:       "speaking",
		QuestionType: "spoken",
		References:   []string{"A cat sat on a mat"},
		Answer:       "the cat sat on the mat",
	})
	require.NoError(t, err)
	require.Equal(t, 65, result.Score)
	require.Equal(t, "Mostly accurate.", result.Feedback)
}

func TestOpenAIExaminerRequiresKey(t *testing.T) {
	_, err := NewOpenAIExaminer(OpenAIConfig{})
	require.Error(t, err)
}
