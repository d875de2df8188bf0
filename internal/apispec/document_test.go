package apispec_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/zapscan/internal/apispec"
	"github.com/raysh454/zapscan/internal/testutil"
)

const petsJSON = `{
  "openapi": "3.0.0",
  "paths": {
    "/users": {
      "parameters": [{"name": "tenant", "in": "header"}],
      "get": {"parameters": [{"name": "limit", "in": "query"}]},
      "post": {}
    },
    "/ping": {"get": {}}
  }
}`

// ─── Parse / ExtractEndpoints ──────────────────────────────────────────

func TestExtractEndpoints_SourceOrderAndSkipsNonMethods(t *testing.T) {
	t.Parallel()
	doc, err := apispec.Parse([]byte(petsJSON))
	require.NoError(t, err)
	assert.Equal(t, "3.0.0", doc.Version)

	eps := apispec.ExtractEndpoints(doc, &testutil.DummyLogger{})

	require.Len(t, eps, 3)
	assert.Equal(t, "/users", eps[0].Path)
	assert.Equal(t, "GET", eps[0].Method)
	assert.Equal(t, "/users", eps[1].Path)
	assert.Equal(t, "POST", eps[1].Method)
	assert.Equal(t, "/ping", eps[2].Path)
	assert.Equal(t, "GET", eps[2].Method)

	require.Len(t, eps[0].Parameters, 1)
	assert.Equal(t, "limit", eps[0].Parameters[0].Name)
	assert.Equal(t, "query", eps[0].Parameters[0].In)
}

func TestExtractEndpoints_YAMLKeepsOrder(t *testing.T) {
	t.Parallel()
	data := []byte(`
swagger: "2.0"
paths:
  /zeta:
    delete:
      responses:
        204:
          description: gone
  /alpha:
    get: {}
    patch:
      parameters:
        - name: id
          in: path
          required: true
`)
	doc, err := apispec.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "2.0", doc.Version)

	eps := apispec.ExtractEndpoints(doc, &testutil.DummyLogger{})
	require.Len(t, eps, 3)
	assert.Equal(t, []string{"DELETE /zeta", "GET /alpha", "PATCH /alpha"},
		[]string{eps[0].Method + " " + eps[0].Path, eps[1].Method + " " + eps[1].Path, eps[2].Method + " " + eps[2].Path})
	require.Len(t, eps[2].Parameters, 1)
	assert.True(t, eps[2].Parameters[0].Required)
}

func TestExtractEndpoints_SkipsMalformedWithWarning(t *testing.T) {
	t.Parallel()
	doc, err := apispec.Parse([]byte(`{"paths": {"/bad": [1, 2], "/ok": {"get": {}, "put": [{}]}}}`))
	require.NoError(t, err)
	logger := &testutil.DummyLogger{}

	eps := apispec.ExtractEndpoints(doc, logger)

	require.Len(t, eps, 1)
	assert.Equal(t, "/ok", eps[0].Path)
	assert.Equal(t, 1, logger.WarnCount("malformed path item"))
	assert.Equal(t, 1, logger.WarnCount("malformed operation"))
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()
	cases := map[string]error{
		"":                     apispec.ErrInvalidSpec,
		`[1,2,3]`:              apispec.ErrInvalidSpec,
		`{"openapi": "3.0.0"}`: apispec.ErrInvalidSpec,
		`{"paths": "nope"}`:    apispec.ErrInvalidSpec,
		`{"paths": {}}`:        apispec.ErrNoPaths,
		"key: [unterminated":   apispec.ErrInvalidSpec,
	}
	for in, want := range cases {
		_, err := apispec.Parse([]byte(in))
		assert.True(t, errors.Is(err, want), "input %q: got %v", in, err)
	}
}

// ─── Normalize ─────────────────────────────────────────────────────────

func TestNormalize_CollapsesArrays(t *testing.T) {
	t.Parallel()
	out, err := apispec.Normalize([]byte(`{
	  "paths": {
	    "/a": [{"get": {"summary": "first"}}, {"post": {}}],
	    "/b": [],
	    "/c": "junk",
	    "/d": {"get": [{"summary": "op"}]}
	  }
	}`))
	require.NoError(t, err)

	var doc struct {
		Paths map[string]map[string]map[string]interface{} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, "first", doc.Paths["/a"]["get"]["summary"])
	assert.NotContains(t, doc.Paths["/a"], "post")
	assert.Empty(t, doc.Paths["/b"])
	assert.Empty(t, doc.Paths["/c"])
	assert.Equal(t, "op", doc.Paths["/d"]["get"]["summary"])
}

func TestNormalize_AcceptsYAML(t *testing.T) {
	t.Parallel()
	out, err := apispec.Normalize([]byte("openapi: 3.0.0\npaths:\n  /x:\n    get: {}\n"))
	require.NoError(t, err)
	assert.True(t, json.Valid(out))
	assert.Contains(t, string(out), `"/x"`)
}
