package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loomworks/loom/recipe"
	"github.com/loomworks/loom/types"
)

func TestDispatcher_BuiltinKinds(t *testing.T) {
	d := NewDispatcher(&scriptedService{}, zap.NewNop())

	for _, cfg := range []recipe.ExecutorConfig{
		{"type": "template", "template": "{{x}}"},
		{"type": "expression", "expression": "x + 1"},
		{"type": "http", "url": "http://example.test/{{x}}"},
		{"type": "llm-agent", "userPrompt": "{{x}}"},
		{"type": "media"},
	} {
		exec, err := d.Dispatch(cfg)
		require.NoError(t, err, cfg.Kind())
		assert.NotNil(t, exec, cfg.Kind())
	}
}

func TestDispatcher_UnknownKind(t *testing.T) {
	d := NewDispatcher(nil, zap.NewNop())
	_, err := d.Dispatch(recipe.ExecutorConfig{"type": "teleport"})
	assert.True(t, types.IsCode(err, types.ErrUnknownExecutor))
}

func TestDispatcher_CustomKind(t *testing.T) {
	d := NewDispatcher(nil, zap.NewNop())
	d.RegisterCustom("reverse", func(cfg recipe.ExecutorConfig) (Executor, error) {
		return func(_ context.Context, ec Context) Result {
			s := stringify(ec.Inputs["text"])
			runes := []rune(s)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return Ok(string(runes))
		}, nil
	})

	exec, err := d.Dispatch(recipe.ExecutorConfig{"type": "reverse"})
	require.NoError(t, err)

	res := exec(context.Background(), Context{Inputs: map[string]any{"text": "loom"}})
	require.True(t, res.Success)
	assert.Equal(t, "mool", res.Data)
}

func TestDispatcher_ExpressionExecutor(t *testing.T) {
	d := NewDispatcher(nil, zap.NewNop())
	exec, err := d.Dispatch(recipe.ExecutorConfig{
		"type":       "expression",
		"expression": "width * height / 1000000",
	})
	require.NoError(t, err)

	res := exec(context.Background(), Context{Inputs: map[string]any{
		"width":  2000.0,
		"height": 1500.0,
	}})
	require.True(t, res.Success)
	assert.Equal(t, 3.0, res.Data)
}

func TestDispatcher_ExpressionSyntaxErrorAtDispatch(t *testing.T) {
	d := NewDispatcher(nil, zap.NewNop())
	_, err := d.Dispatch(recipe.ExecutorConfig{
		"type":       "expression",
		"expression": `"unterminated`,
	})
	assert.True(t, types.IsCode(err, types.ErrManifestInvalid))
}

func TestHTTPExecutor_JSONRoundTrip(t *testing.T) {
	var gotPath, gotHeader string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Api-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"echo": gotBody["q"], "n": 7})
	}))
	defer srv.Close()

	d := NewDispatcher(nil, zap.NewNop())
	exec, err := d.Dispatch(recipe.ExecutorConfig{
		"type":    "http",
		"url":     srv.URL + "/search/{{topic}}",
		"headers": map[string]any{"X-Api-Key": "{{apiKey}}"},
		"body":    map[string]any{"q": "{{topic}}", "limit": 5.0},
	})
	require.NoError(t, err)

	res := exec(context.Background(), Context{Inputs: map[string]any{
		"topic":  "lighthouses",
		"apiKey": "k-123",
	}})
	require.True(t, res.Success, "%v", res.Err)

	assert.Equal(t, "/search/lighthouses", gotPath)
	assert.Equal(t, "k-123", gotHeader)
	assert.Equal(t, "lighthouses", gotBody["q"])
	assert.Equal(t, 5.0, gotBody["limit"])

	data := res.Data.(map[string]any)
	assert.Equal(t, "lighthouses", data["echo"])
	assert.Equal(t, 7.0, data["n"])
}

func TestHTTPExecutor_TextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte("plain text reply"))
	}))
	defer srv.Close()

	d := NewDispatcher(nil, zap.NewNop())
	exec, err := d.Dispatch(recipe.ExecutorConfig{"type": "http", "url": srv.URL})
	require.NoError(t, err)

	res := exec(context.Background(), Context{Inputs: map[string]any{}})
	require.True(t, res.Success)
	assert.Equal(t, "plain text reply", res.Data)
}

func TestHTTPExecutor_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	d := NewDispatcher(nil, zap.NewNop())
	exec, err := d.Dispatch(recipe.ExecutorConfig{"type": "http", "url": srv.URL})
	require.NoError(t, err)

	res := exec(context.Background(), Context{Inputs: map[string]any{}})
	require.False(t, res.Success)
	assert.True(t, types.IsCode(res.Err, types.ErrExecutorFailed))
}
