package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/loomworks/loom/internal/metrics"
	"github.com/loomworks/loom/types"
)

// HTTPConfig configures the JSON-over-HTTP service client.
type HTTPConfig struct {
	// BaseURL is the service endpoint. A request's Credentials.BaseURL
	// overrides it per call.
	BaseURL string

	// Timeout is the HTTP client timeout. Defaults to 120s if zero;
	// media generation calls are slow.
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing calls. Zero disables
	// throttling.
	RequestsPerSecond float64

	// Burst is the limiter burst size. Defaults to 1 when throttling is
	// enabled.
	Burst int
}

// HTTPService calls a model execution endpoint over JSON HTTP.
type HTTPService struct {
	cfg       HTTPConfig
	client    *http.Client
	limiter   *rate.Limiter
	collector *metrics.Collector
	logger    *zap.Logger
}

// ServiceOption customizes an HTTPService.
type ServiceOption func(*HTTPService)

// WithServiceMetrics records per-provider call counts and durations.
func WithServiceMetrics(c *metrics.Collector) ServiceOption {
	return func(s *HTTPService) { s.collector = c }
}

// NewHTTPService creates an HTTP-backed model execution client.
func NewHTTPService(cfg HTTPConfig, logger *zap.Logger, opts ...ServiceOption) *HTTPService {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	s := &HTTPService{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger.With(zap.String("component", "llm_http")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// wireResponse is the service's envelope: a success flag with either a data
// payload or an error message.
type wireResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Execute sends the request and normalizes the reply.
func (s *HTTPService) Execute(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	out, err := s.execute(ctx, req)
	if s.collector != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.collector.RecordServiceCall(req.Config.Provider, status, time.Since(start))
	}
	return out, err
}

func (s *HTTPService) execute(ctx context.Context, req Request) (*Response, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrServiceFailed, "rate limit wait aborted").WithCause(err)
		}
	}

	endpoint := s.cfg.BaseURL
	if req.Credentials.BaseURL != "" {
		endpoint = req.Credentials.BaseURL
	}
	if endpoint == "" {
		return nil, types.NewError(types.ErrServiceFailed, "no service endpoint configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewError(types.ErrServiceFailed, "encode request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrServiceFailed, "build request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Credentials.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Credentials.APIKey)
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrServiceFailed, "service call failed").WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrServiceFailed, "read response").WithCause(err)
	}

	s.logger.Debug("model execution call",
		zap.String("provider", req.Config.Provider),
		zap.String("model", req.Config.Model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, types.Errorf(types.ErrServiceFailed, "service returned HTTP %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var envelope wireResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, types.NewError(types.ErrResponseParse, "decode service envelope").WithCause(err)
	}
	if !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = "service reported failure without a message"
		}
		return nil, types.NewError(types.ErrServiceFailed, msg)
	}

	var out Response
	if err := json.Unmarshal(envelope.Data, &out); err != nil {
		return nil, types.NewError(types.ErrResponseParse, "decode service payload").WithCause(err)
	}
	if out.Type == "" {
		return nil, types.NewError(types.ErrResponseParse, "service payload has no type")
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:n], len(s))
}
