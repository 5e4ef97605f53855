package executor

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/loomworks/loom/llm"
	"github.com/loomworks/loom/recipe"
	"github.com/loomworks/loom/types"
)

// newAgentExecutor builds the llm-agent executor: prompt templates are
// interpolated against the inputs, the model execution service is invoked,
// and the reply is optionally parsed as JSON.
//
// Options: systemPrompt, userPrompt (interpolated templates), model
// ({provider, name, ...}), responseFormat ("text" or "json"), spawnNodes
// (bool: emit one created node per element of an array result).
func newAgentExecutor(cfg recipe.ExecutorConfig, service llm.Service, logger *zap.Logger) (Executor, error) {
	if service == nil {
		return nil, types.NewError(types.ErrManifestInvalid, "llm-agent executor requires a model execution service")
	}
	systemPrompt := cfg.String("systemPrompt")
	userPrompt := cfg.String("userPrompt")
	if systemPrompt == "" && userPrompt == "" {
		return nil, types.NewError(types.ErrManifestInvalid, "llm-agent executor declares no prompt")
	}
	wantJSON := cfg.String("responseFormat") == "json"
	spawn, _ := cfg["spawnNodes"].(bool)
	modelBlock := cfg.Map("model")
	log := logger.With(zap.String("executor", "llm-agent"))

	return func(ctx context.Context, ec Context) Result {
		req := llm.Request{
			Config:      resolveModel(modelBlock, ec.ModelConfig),
			Prompt:      buildPrompt(systemPrompt, userPrompt, ec),
			Credentials: ec.Credentials,
		}

		resp, err := service.Execute(ctx, req)
		if err != nil {
			return Fail(err)
		}
		if resp.Type != llm.ResponseText {
			return Fail(types.Errorf(types.ErrResponseParse, "expected a text response, got %q", resp.Type))
		}

		if !wantJSON {
			return Ok(resp.Text)
		}

		parsed, err := parseModelJSON(resp.Text)
		if err != nil {
			log.Warn("model reply is not valid JSON", zap.Error(err))
			return Fail(types.NewError(types.ErrResponseParse, "model reply is not valid JSON").WithCause(err))
		}

		result := Ok(parsed)
		if spawn {
			if items, ok := parsed.([]any); ok {
				result.CreateNodes = nodesFromItems(items, ec.Recipe)
			}
		}
		return result
	}, nil
}

// resolveModel merges the manifest's model block with a per-run override.
func resolveModel(block map[string]any, override *llm.ModelConfig) llm.ModelConfig {
	if override != nil {
		return *override
	}
	cfg := llm.ModelConfig{}
	if block == nil {
		return cfg
	}
	cfg.Provider, _ = block["provider"].(string)
	if name, ok := block["name"].(string); ok {
		cfg.Model = name
	} else if name, ok := block["model"].(string); ok {
		cfg.Model = name
	}
	if opts, ok := block["options"].(map[string]any); ok {
		cfg.Options = opts
	}
	return cfg
}

// buildPrompt interpolates the prompt templates and folds in any prior
// conversation, newest last.
func buildPrompt(systemPrompt, userPrompt string, ec Context) string {
	var parts []string
	if systemPrompt != "" {
		parts = append(parts, interpolate(systemPrompt, ec.Inputs))
	}
	for _, msg := range ec.ChatContext {
		parts = append(parts, msg.Role+": "+msg.Content)
	}
	if userPrompt != "" {
		parts = append(parts, interpolate(userPrompt, ec.Inputs))
	}
	return strings.Join(parts, "\n\n")
}

// parseModelJSON parses a model reply as JSON. Code fences are stripped
// first. If parsing fails and the payload looks like a truncated array, the
// repair pass trims everything after the last complete object and closes
// the array before retrying.
func parseModelJSON(text string) (any, error) {
	cleaned := stripCodeFence(text)

	var parsed any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err == nil {
		return parsed, nil
	} else if repaired, ok := repairTruncatedArray(cleaned); ok {
		if err := json.Unmarshal([]byte(repaired), &parsed); err == nil {
			return parsed, nil
		}
		return nil, err
	} else {
		return nil, err
	}
}

// stripCodeFence removes a surrounding ```json ... ``` fence if present.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// repairTruncatedArray recovers an array cut off mid-element: locate the
// last complete '}', drop the trailing partial content, and close the
// bracket. A trailing partial object is discarded by construction.
func repairTruncatedArray(text string) (string, bool) {
	if !strings.HasPrefix(text, "[") || strings.HasSuffix(text, "]") {
		return "", false
	}
	last := strings.LastIndex(text, "}")
	if last < 0 {
		return "", false
	}
	return text[:last+1] + "]", true
}

// nodesFromItems turns an array result into node creation requests, one per
// element. The node kind and config come from the recipe's output template;
// a field schema is inferred from the first element when the template does
// not declare one.
func nodesFromItems(items []any, def recipe.Definition) []NodeSpec {
	if len(items) == 0 {
		return nil
	}

	kind := "record"
	var config map[string]any
	if def.Output != nil {
		if def.Output.Kind != "" {
			kind = def.Output.Kind
		}
		config = def.Output.Config
	}
	if _, declared := config["fields"]; !declared {
		if inferred := inferFields(items[0]); inferred != nil {
			merged := make(map[string]any, len(config)+1)
			for k, v := range config {
				merged[k] = v
			}
			merged["fields"] = inferred
			config = merged
		}
	}

	specs := make([]NodeSpec, 0, len(items))
	for i, item := range items {
		specs = append(specs, NodeSpec{
			Kind:     kind,
			Data:     item,
			Config:   config,
			Position: &types.Position{X: 0, Y: float64(i) * 120},
		})
	}
	return specs
}

// inferFields derives a field schema from a record-shaped element: one
// descriptor per key, in sorted order, typed by the value's JSON shape.
func inferFields(first any) []map[string]any {
	record, ok := first.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, map[string]any{"key": k, "type": jsonShape(record[k])})
	}
	return fields
}

func jsonShape(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case float64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return "text"
	}
}
