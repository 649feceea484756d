package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Mux routes chat requests to registered providers by model name.
// It implements Client itself, so callers hold a single client even
// when the lite and pro tiers live on different providers.
type Mux struct {
	mu        sync.RWMutex
	providers map[string]Client
	routes    map[string]string // model -> provider name
	fallback  string
	logger    *slog.Logger
}

// NewMux creates an empty router. The first registered provider becomes
// the fallback for unrouted models.
func NewMux(logger *slog.Logger) *Mux {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mux{
		providers: make(map[string]Client),
		routes:    make(map[string]string),
		logger:    logger,
	}
}

// Register adds a named provider. The first registration sets the fallback.
func (m *Mux) Register(name string, c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.providers) == 0 {
		m.fallback = name
	}
	m.providers[name] = c
}

// Route pins a model name to a provider. Unrouted models go to the fallback.
func (m *Mux) Route(model, provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[model] = provider
}

// clientFor resolves the provider serving the given model.
func (m *Mux) clientFor(model string) (Client, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, ok := m.routes[model]
	if !ok {
		name = m.fallback
	}
	c, ok := m.providers[name]
	if !ok {
		return nil, "", fmt.Errorf("llm: no provider registered for model %q", model)
	}
	return c, name, nil
}

// Chat implements the Client interface by delegating to the provider
// routed for the model.
func (m *Mux) Chat(ctx context.Context, model string, messages []Message, tools []Tool, choice ToolChoice, opts Options) (*ChatResponse, error) {
	c, name, err := m.clientFor(model)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("routing chat request", "model", model, "provider", name)
	return c.Chat(ctx, model, messages, tools, choice, opts)
}

// Ping implements the Client interface. All registered providers are
// checked; the first failure is returned.
func (m *Mux) Ping(ctx context.Context) error {
	m.mu.RLock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		m.mu.RLock()
		c := m.providers[name]
		m.mu.RUnlock()
		if err := c.Ping(ctx); err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
	}
	return nil
}
