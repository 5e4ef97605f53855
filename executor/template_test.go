package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/recipe"
	"github.com/loomworks/loom/types"
)

func TestTemplateExecutor(t *testing.T) {
	exec, err := newTemplateExecutor(recipe.ExecutorConfig{
		"type":     "template",
		"template": "Write a {{style}} story about {{subject.name}}.",
	})
	require.NoError(t, err)

	res := exec(context.Background(), Context{Inputs: map[string]any{
		"style":   "short",
		"subject": map[string]any{"name": "a lighthouse keeper"},
	}})
	require.True(t, res.Success)
	assert.Equal(t, "Write a short story about a lighthouse keeper.", res.Data)
}

func TestTemplateExecutor_MissingKeysBecomeEmpty(t *testing.T) {
	exec, err := newTemplateExecutor(recipe.ExecutorConfig{
		"type":     "template",
		"template": "[{{gone}}]",
	})
	require.NoError(t, err)

	res := exec(context.Background(), Context{Inputs: map[string]any{}})
	require.True(t, res.Success)
	assert.Equal(t, "[]", res.Data)
}

func TestTemplateExecutor_NoTemplate(t *testing.T) {
	_, err := newTemplateExecutor(recipe.ExecutorConfig{"type": "template"})
	assert.True(t, types.IsCode(err, types.ErrManifestInvalid))
}

func TestInterpolate_NonStringValues(t *testing.T) {
	out := interpolate("n={{n}} ok={{ok}} list={{list}}", map[string]any{
		"n":    2.5,
		"ok":   true,
		"list": []any{1.0, 2.0},
	})
	assert.Equal(t, "n=2.5 ok=true list=[1,2]", out)
}
