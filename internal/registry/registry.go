// ABOUTME: Read-mostly registry mapping tool names to schemas and handlers.
// ABOUTME: Populated once at startup; lookups are safe from any session.

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrToolAlreadyRegistered indicates a duplicate tool name at registration.
var ErrToolAlreadyRegistered = errors.New("tool already registered")

// ErrUnknownTool indicates a lookup for a name that was never registered.
var ErrUnknownTool = errors.New("unknown tool")

// Handler executes one tool call. Args arrive as the raw JSON object from
// the request frame; the handler returns its JSON payload or a typed error.
type Handler func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Definition describes a tool's name, purpose, and argument shape. The
// input schema is kept as raw JSON Schema, matching what the wire carries.
type Definition struct {
	Name         string
	Description  string
	InputSchema  json.RawMessage
	RequiredArgs []string
}

// Entry is one registered tool. Handler is nil on the agent side, where
// the registry only validates names before submission.
type Entry struct {
	Definition
	Handler Handler
}

// Registry is the process-wide tool table. Registration happens during
// startup, before any session is accepted; afterwards it is read-only.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register adds a tool with its handler. Fails if the name is taken.
func (r *Registry) Register(def Definition, handler Handler) error {
	if def.Name == "" {
		return fmt.Errorf("registering tool: empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, def.Name)
	}
	r.entries[def.Name] = &Entry{Definition: def, Handler: handler}
	return nil
}

// RegisterDefinition adds a descriptor-only entry with no handler. The
// agent side uses this to validate tool names before submission.
func (r *Registry) RegisterDefinition(def Definition) error {
	return r.Register(def, nil)
}

// Resolve returns the entry for a tool name, or ErrUnknownTool.
func (r *Registry) Resolve(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return entry, nil
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns all registered definitions, sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.entries))
	for _, e := range r.entries {
		defs = append(defs, e.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
