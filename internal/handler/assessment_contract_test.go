package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assess-api/internal/models"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()

	schemaPath, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)

	schema, err := jsonschema.NewCompiler().Compile("file://" + filepath.ToSlash(schemaPath))
	require.NoError(t, err)
	return schema
}

func validateBody(t *testing.T, schema *jsonschema.Schema, resp *http.Response) {
	t.Helper()

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

func TestAssessmentContract(t *testing.T) {
	recordSchema := compileSchema(t, "answer_record.schema.json")
	summarySchema := compileSchema(t, "summary.schema.json")

	a := setupAssessmentApp(t, models.ModuleWriting, nil)
	q := a.addQuestion(t, "free-text", `["I like tea", "I enjoy tea"]`)

	payload, err := json.Marshal(map[string]string{"question_id": fmt.Sprint(q.ID), "answer": "I like green tea"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, a.sectionPath("/answers"), bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	validateBody(t, recordSchema, resp)

	resp, err = a.app.Test(httptest.NewRequest(http.MethodGet, a.sectionPath("/summary"), nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	validateBody(t, summarySchema, resp)
}
