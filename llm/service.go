package llm

import "context"

// Response payload types.
const (
	ResponseText   = "text"
	ResponseImages = "images"
	ResponseVideo  = "video"
)

// ModelConfig selects the provider and model for one request, plus
// provider-specific tuning options.
type ModelConfig struct {
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Options  map[string]any `json:"options,omitempty"`
}

// Credentials carries the secret material a provider call needs. It is
// supplied by configuration outside the execution core and never persisted
// alongside project state.
type Credentials struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// Request is one model execution call.
type Request struct {
	Config         ModelConfig `json:"config"`
	Prompt         string      `json:"prompt,omitempty"`
	NegativePrompt string      `json:"negativePrompt,omitempty"`
	// Images holds input image references for image-to-image or vision
	// requests.
	Images      []string    `json:"images,omitempty"`
	Credentials Credentials `json:"-"`
}

// Response is the normalized result of a model execution call.
type Response struct {
	// Type is one of ResponseText, ResponseImages, ResponseVideo.
	Type string `json:"type"`
	// Text carries the generated text when Type is ResponseText.
	Text string `json:"text,omitempty"`
	// Assets carries generated media references when Type is
	// ResponseImages or ResponseVideo.
	Assets []MediaAsset `json:"assets,omitempty"`
	// Raw preserves the provider's unparsed payload for diagnostics.
	Raw map[string]any `json:"raw,omitempty"`
}

// MediaAsset is one generated image or video reference.
type MediaAsset struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// Service executes model requests. Implementations own timeouts, retries,
// and provider routing; callers treat a returned error as terminal for the
// current run.
type Service interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}
