package executor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loomworks/loom/llm"
	"github.com/loomworks/loom/recipe"
	"github.com/loomworks/loom/types"
)

// Context carries everything one execution needs: the resolved inputs, the
// node being executed, and the service plumbing the executor may call out
// through.
type Context struct {
	// Inputs are the fully resolved field values, keyed by field key.
	Inputs map[string]any
	// NodeID is the node the run was invoked on.
	NodeID string
	// Node is a snapshot of that node.
	Node types.Node
	// Recipe is the resolved definition being executed.
	Recipe recipe.Definition
	// ChatContext is optional prior conversation, newest last.
	ChatContext []ChatMessage
	// ModelConfig overrides the manifest's model block when set.
	ModelConfig *llm.ModelConfig
	// Credentials for the model execution service.
	Credentials llm.Credentials
}

// ChatMessage is one turn of prior conversation passed to an LLM executor.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NodeSpec asks the engine to create a downstream node from a result.
type NodeSpec struct {
	// Kind of the node to create.
	Kind string
	// Data becomes the created asset's value.
	Data any
	// Config is passed through to the created asset's config.
	Config map[string]any
	// Position offset relative to the executed node, in creation order.
	Position *types.Position
}

// Result is the discriminated outcome of one execution. Failure travels in
// Err rather than panicking or aborting the engine.
type Result struct {
	Success     bool
	Data        any
	Err         error
	CreateNodes []NodeSpec
}

// Ok builds a successful result.
func Ok(data any) Result {
	return Result{Success: true, Data: data}
}

// Fail builds a failed result.
func Fail(err error) Result {
	return Result{Err: err}
}

// Executor performs one unit of recipe work.
type Executor func(ctx context.Context, ec Context) Result

// Factory builds a custom executor from its manifest configuration.
type Factory func(cfg recipe.ExecutorConfig) (Executor, error)

// Dispatcher resolves a declared executor configuration into a callable
// Executor. Built-in kinds are always available; custom kinds must be
// registered first.
type Dispatcher struct {
	mu      sync.RWMutex
	service llm.Service
	client  *http.Client
	custom  map[string]Factory
	logger  *zap.Logger
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHTTPClient sets the client used by http executors.
func WithHTTPClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = client }
}

// NewDispatcher creates a Dispatcher backed by the given model execution
// service.
func NewDispatcher(service llm.Service, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		service: service,
		client:  &http.Client{Timeout: 60 * time.Second},
		custom:  make(map[string]Factory),
		logger:  logger.With(zap.String("component", "executor")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterCustom makes a custom executor kind available to Dispatch.
func (d *Dispatcher) RegisterCustom(kind string, factory Factory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.custom[kind] = factory
}

// Dispatch builds the executor declared by cfg.
func (d *Dispatcher) Dispatch(cfg recipe.ExecutorConfig) (Executor, error) {
	switch kind := cfg.Kind(); kind {
	case "template":
		return newTemplateExecutor(cfg)
	case "expression":
		return newExpressionExecutor(cfg)
	case "http":
		return newHTTPExecutor(cfg, d.client)
	case "llm-agent":
		return newAgentExecutor(cfg, d.service, d.logger)
	case "media":
		return newMediaExecutor(cfg, d.service, d.logger)
	default:
		d.mu.RLock()
		factory, ok := d.custom[kind]
		d.mu.RUnlock()
		if !ok {
			return nil, types.Errorf(types.ErrUnknownExecutor, "unknown executor type %q", kind)
		}
		return factory(cfg)
	}
}
