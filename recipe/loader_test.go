package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loomworks/loom/types"
)

const legacyManifest = `
id: summarize
name: Summarize
category: text
icon: scroll
mixins: [model-options]
input:
  - key: text
    type: text
    required: true
    connection: {}
  - key: temperature
    type: number
    default: 0.2
executor:
  type: llm-agent
  systemPrompt: You summarize documents.
  userPrompt: "Summarize: {{text}}"
output:
  kind: text
  name: Summary
`

const mixinManifest = `
kind: mixin
id: model-options
fields:
  - key: model
    type: text
    default: gpt-4o-mini
  - key: temperature
    type: number
    default: 0.7
`

const modernManifest = `
id: translate
name: Translate
category: text
input:
  - key: text
    type: text
    required: true
model:
  provider: openai
  name: gpt-4o
prompt:
  system: You are a translator.
  user: "Translate to French: {{text}}"
output:
  kind: text
`

func writeManifest(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoader_LegacyDialectMergesMixins(t *testing.T) {
	dir := t.TempDir()
	// Recipe sorts before the mixin on disk; LoadDir must still resolve it.
	writeManifest(t, dir, "summarize.yaml", legacyManifest)
	writeManifest(t, dir, "zz-mixin.yaml", mixinManifest)

	l := NewLoader(zap.NewNop())
	defs, err := l.LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	def := defs[0]

	assert.Equal(t, "summarize", def.ID)
	assert.Equal(t, "llm-agent", def.Executor.Kind())

	// Mixin fields come first, in mixin order.
	require.Len(t, def.Inputs, 3)
	assert.Equal(t, "model", def.Inputs[0].Key)
	assert.Equal(t, "temperature", def.Inputs[1].Key)
	assert.Equal(t, "text", def.Inputs[2].Key)

	// The recipe's own temperature overrides the mixin's default.
	temp, ok := def.FieldByKey("temperature")
	require.True(t, ok)
	assert.Equal(t, 0.2, temp.Default)

	text, ok := def.FieldByKey("text")
	require.True(t, ok)
	assert.True(t, text.Required)
	assert.NotNil(t, text.Connection)
}

func TestLoader_ModernDialectSynthesizesExecutor(t *testing.T) {
	l := NewLoader(zap.NewNop())
	def, err := l.LoadBytes([]byte(modernManifest), "yaml")
	require.NoError(t, err)

	assert.Equal(t, "translate", def.ID)
	assert.Equal(t, "llm-agent", def.Executor.Kind())
	assert.Equal(t, "You are a translator.", def.Executor.String("systemPrompt"))
	assert.Equal(t, "Translate to French: {{text}}", def.Executor.String("userPrompt"))

	model := def.Executor.Map("model")
	require.NotNil(t, model)
	assert.Equal(t, "openai", model["provider"])

	require.NotNil(t, def.Output)
	assert.Equal(t, "text", def.Output.Kind)
}

func TestLoader_MixedDialectRejected(t *testing.T) {
	l := NewLoader(zap.NewNop())
	_, err := l.LoadBytes([]byte(`
id: bad
name: Bad
mixins: [model-options]
model: {provider: openai}
`), "yaml")
	assert.True(t, types.IsCode(err, types.ErrManifestInvalid))
}

func TestLoader_JSONManifest(t *testing.T) {
	l := NewLoader(zap.NewNop())
	def, err := l.LoadBytes([]byte(`{
		"id": "upper",
		"name": "Uppercase",
		"input": [{"key": "text", "type": "text", "required": true}],
		"executor": {"type": "template", "template": "{{text}}"}
	}`), "json")
	require.NoError(t, err)
	assert.Equal(t, "template", def.Executor.Kind())
}

func TestLoader_DirSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "mixin.yaml", mixinManifest)
	writeManifest(t, dir, "good.yaml", modernManifest)
	writeManifest(t, dir, "broken.yaml", ": definitely not yaml: [")
	writeManifest(t, dir, "incomplete.yaml", "id: no-name\nexecutor: {type: template}\n")
	writeManifest(t, dir, "notes.txt", "ignored")

	l := NewLoader(zap.NewNop())
	defs, err := l.LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "translate", defs[0].ID)
}

func TestLoader_UnknownMixinSkipped(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "orphan.yaml", `
id: orphan
name: Orphan
mixins: [missing-group]
executor: {type: template, template: hi}
`)
	l := NewLoader(zap.NewNop())
	defs, err := l.LoadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestLoader_MissingDir(t *testing.T) {
	l := NewLoader(zap.NewNop())
	_, err := l.LoadDir(filepath.Join(t.TempDir(), "nope"))
	assert.True(t, types.IsCode(err, types.ErrManifestInvalid))
}
