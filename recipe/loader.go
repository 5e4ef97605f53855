package recipe

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/loomworks/loom/types"
)

// manifestKindMixin marks a file that only contributes a reusable field
// group for the legacy dialect.
const manifestKindMixin = "mixin"

// rawManifest is the union of both manifest dialects as read from disk.
type rawManifest struct {
	Kind     string         `yaml:"kind,omitempty" json:"kind,omitempty"`
	ID       string         `yaml:"id" json:"id"`
	Name     string         `yaml:"name" json:"name"`
	Category string         `yaml:"category,omitempty" json:"category,omitempty"`
	Icon     string         `yaml:"icon,omitempty" json:"icon,omitempty"`
	Mixins   []string       `yaml:"mixins,omitempty" json:"mixins,omitempty"`
	Fields   []Field        `yaml:"fields,omitempty" json:"fields,omitempty"`
	Input    []Field        `yaml:"input,omitempty" json:"input,omitempty"`
	Executor ExecutorConfig `yaml:"executor,omitempty" json:"executor,omitempty"`
	Output   *OutputSpec    `yaml:"output,omitempty" json:"output,omitempty"`

	// Modern dialect only.
	Model  map[string]any `yaml:"model,omitempty" json:"model,omitempty"`
	Prompt *promptBlock   `yaml:"prompt,omitempty" json:"prompt,omitempty"`
}

type promptBlock struct {
	System string `yaml:"system,omitempty" json:"system,omitempty"`
	User   string `yaml:"user,omitempty" json:"user,omitempty"`
}

// Loader parses recipe manifests from files or raw bytes. Format is
// auto-detected from the file extension (.yaml, .yml, .json). Mixin files
// seen by the loader are remembered, so legacy recipes can reference them
// across files within the same loader instance.
type Loader struct {
	mu     sync.Mutex
	mixins map[string][]Field
	logger *zap.Logger
}

// NewLoader creates a Loader with an empty mixin table.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		mixins: make(map[string][]Field),
		logger: logger.With(zap.String("component", "recipe_loader")),
	}
}

// LoadDir scans a directory for manifest files and resolves every recipe it
// finds. Mixin files are processed first so ordering on disk does not matter.
// A malformed manifest is logged and skipped; it never aborts the scan.
func (l *Loader) LoadDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, types.NewError(types.ErrManifestInvalid, "read manifest directory").WithCause(err)
	}

	type pending struct {
		path string
		raw  *rawManifest
	}
	var recipes []pending

	for _, entry := range entries {
		if entry.IsDir() || detectFormat(entry.Name()) == "" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := l.readRaw(path)
		if err != nil {
			l.logger.Warn("skipping manifest", zap.String("path", path), zap.Error(err))
			continue
		}
		if raw.Kind == manifestKindMixin {
			if err := l.registerMixin(raw); err != nil {
				l.logger.Warn("skipping mixin", zap.String("path", path), zap.Error(err))
			}
			continue
		}
		recipes = append(recipes, pending{path: path, raw: raw})
	}

	defs := make([]Definition, 0, len(recipes))
	for _, p := range recipes {
		def, err := l.resolve(p.raw)
		if err != nil {
			l.logger.Warn("skipping manifest", zap.String("path", p.path), zap.Error(err))
			continue
		}
		defs = append(defs, *def)
	}
	return defs, nil
}

// LoadFile parses and resolves a single manifest file. Legacy mixin
// references resolve against mixins this loader has already seen.
func (l *Loader) LoadFile(path string) (*Definition, error) {
	raw, err := l.readRaw(path)
	if err != nil {
		return nil, err
	}
	if raw.Kind == manifestKindMixin {
		if err := l.registerMixin(raw); err != nil {
			return nil, err
		}
		return nil, types.Errorf(types.ErrManifestInvalid, "%s is a mixin, not a recipe", path)
	}
	return l.resolve(raw)
}

// LoadBytes parses and resolves raw manifest bytes. format must be "yaml"
// or "json".
func (l *Loader) LoadBytes(data []byte, format string) (*Definition, error) {
	raw, err := parseRaw(data, format)
	if err != nil {
		return nil, err
	}
	return l.resolve(raw)
}

func (l *Loader) readRaw(path string) (*rawManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrManifestInvalid, "read manifest file").WithCause(err)
	}
	format := detectFormat(path)
	if format == "" {
		return nil, types.Errorf(types.ErrManifestInvalid, "unsupported manifest extension %q", filepath.Ext(path))
	}
	return parseRaw(data, format)
}

func parseRaw(data []byte, format string) (*rawManifest, error) {
	var raw rawManifest
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, types.NewError(types.ErrManifestInvalid, "parse YAML manifest").WithCause(err)
		}
	case "json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, types.NewError(types.ErrManifestInvalid, "parse JSON manifest").WithCause(err)
		}
	default:
		return nil, types.Errorf(types.ErrManifestInvalid, "unsupported manifest format %q", format)
	}
	return &raw, nil
}

func (l *Loader) registerMixin(raw *rawManifest) error {
	if raw.ID == "" {
		return types.NewError(types.ErrManifestInvalid, "mixin is missing an id")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mixins[raw.ID] = raw.Fields
	return nil
}

// resolve normalizes either dialect into a validated Definition.
func (l *Loader) resolve(raw *rawManifest) (*Definition, error) {
	def := Definition{
		ID:       raw.ID,
		Name:     raw.Name,
		Category: raw.Category,
		Icon:     raw.Icon,
		Output:   raw.Output,
	}

	modern := raw.Model != nil || raw.Prompt != nil
	switch {
	case modern && len(raw.Mixins) > 0:
		return nil, types.Errorf(types.ErrManifestInvalid, "recipe %q mixes dialects: model/prompt block with mixins", raw.ID)
	case modern && raw.Executor != nil:
		return nil, types.Errorf(types.ErrManifestInvalid, "recipe %q mixes dialects: model/prompt block with an executor block", raw.ID)
	case modern:
		def.Inputs = raw.Input
		def.Executor = modernExecutor(raw)
	default:
		inputs, err := l.composeInputs(raw)
		if err != nil {
			return nil, err
		}
		def.Inputs = inputs
		def.Executor = raw.Executor
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// composeInputs merges the legacy dialect's mixin field groups, in listed
// order, with the recipe's own fields overriding last.
func (l *Loader) composeInputs(raw *rawManifest) ([]Field, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var fields []Field
	for _, name := range raw.Mixins {
		group, ok := l.mixins[name]
		if !ok {
			return nil, types.Errorf(types.ErrManifestInvalid, "recipe %q references unknown mixin %q", raw.ID, name)
		}
		fields = mergeFields(fields, group)
	}
	return mergeFields(fields, raw.Input), nil
}

// modernExecutor lowers the self-contained model/prompt block onto the
// llm-agent executor.
func modernExecutor(raw *rawManifest) ExecutorConfig {
	cfg := ExecutorConfig{"type": "llm-agent"}
	if raw.Model != nil {
		cfg["model"] = raw.Model
	}
	if raw.Prompt != nil {
		if raw.Prompt.System != "" {
			cfg["systemPrompt"] = raw.Prompt.System
		}
		if raw.Prompt.User != "" {
			cfg["userPrompt"] = raw.Prompt.User
		}
	}
	return cfg
}

// detectFormat returns "yaml" or "json" based on file extension, or "" if
// unknown.
func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return ""
	}
}
