package executor

import (
	"context"

	"go.uber.org/zap"

	"github.com/loomworks/loom/llm"
	"github.com/loomworks/loom/recipe"
	"github.com/loomworks/loom/types"
)

// newMediaExecutor builds the media executor: it resolves a model/provider
// pair from the inputs, invokes the model execution service for image or
// video generation, and normalizes the reply into a gallery-shaped payload.
//
// Inputs: prompt (required), negativePrompt, images, model (string or
// {provider, name} map). The manifest's model block supplies defaults.
func newMediaExecutor(cfg recipe.ExecutorConfig, service llm.Service, logger *zap.Logger) (Executor, error) {
	if service == nil {
		return nil, types.NewError(types.ErrManifestInvalid, "media executor requires a model execution service")
	}
	modelBlock := cfg.Map("model")
	log := logger.With(zap.String("executor", "media"))

	return func(ctx context.Context, ec Context) Result {
		prompt := stringify(ec.Inputs["prompt"])
		if prompt == "" {
			return Fail(types.NewError(types.ErrMissingInput, "media generation needs a prompt"))
		}

		req := llm.Request{
			Config:         mediaModel(modelBlock, ec),
			Prompt:         prompt,
			NegativePrompt: stringify(ec.Inputs["negativePrompt"]),
			Images:         stringSlice(ec.Inputs["images"]),
			Credentials:    ec.Credentials,
		}

		resp, err := service.Execute(ctx, req)
		if err != nil {
			return Fail(err)
		}
		if resp.Type != llm.ResponseImages && resp.Type != llm.ResponseVideo {
			return Fail(types.Errorf(types.ErrResponseParse, "expected a media response, got %q", resp.Type))
		}

		log.Debug("media generated",
			zap.String("type", resp.Type),
			zap.Int("assets", len(resp.Assets)))
		return Ok(galleryPayload(resp))
	}, nil
}

// mediaModel resolves provider and model: per-run override first, then the
// node's input values, then the manifest defaults.
func mediaModel(block map[string]any, ec Context) llm.ModelConfig {
	if ec.ModelConfig != nil {
		return *ec.ModelConfig
	}
	cfg := resolveModel(block, nil)
	switch m := ec.Inputs["model"].(type) {
	case string:
		if m != "" {
			cfg.Model = m
		}
	case map[string]any:
		if name, ok := m["name"].(string); ok && name != "" {
			cfg.Model = name
		}
		if provider, ok := m["provider"].(string); ok && provider != "" {
			cfg.Provider = provider
		}
	}
	if provider, ok := ec.Inputs["provider"].(string); ok && provider != "" {
		cfg.Provider = provider
	}
	return cfg
}

// galleryPayload normalizes a media response into the shape gallery nodes
// store: a list of items plus the media type.
func galleryPayload(resp *llm.Response) map[string]any {
	items := make([]any, 0, len(resp.Assets))
	for _, a := range resp.Assets {
		item := map[string]any{"url": a.URL}
		if a.MimeType != "" {
			item["mimeType"] = a.MimeType
		}
		if a.Width > 0 {
			item["width"] = a.Width
		}
		if a.Height > 0 {
			item["height"] = a.Height
		}
		items = append(items, item)
	}
	return map[string]any{
		"mediaType": resp.Type,
		"items":     items,
	}
}

func stringSlice(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	default:
		return nil
	}
}
