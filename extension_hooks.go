package resultlink

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-resultlink/events"
)

// SinkPack is a named group of event sinks mounted by Setup in addition to
// the default log and persistence sinks.
type SinkPack struct {
	Name  string
	Sinks []events.Sink
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	sinkPacks map[string]SinkPack
	bundles   map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		sinkPacks: map[string]SinkPack{},
		bundles:   map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterSinkPack(pack SinkPack) error {
	if h == nil {
		return fmt.Errorf("resultlink: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("resultlink: sink pack name is required")
	}
	if len(pack.Sinks) == 0 {
		return fmt.Errorf("resultlink: sink pack %q has no sinks", name)
	}
	for _, sink := range pack.Sinks {
		if sink == nil {
			return fmt.Errorf("resultlink: sink pack %q contains nil sink", name)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.sinkPacks[name]; exists {
		return fmt.Errorf("resultlink: sink pack %q already registered", name)
	}
	h.sinkPacks[name] = SinkPack{
		Name:  name,
		Sinks: append([]events.Sink(nil), pack.Sinks...),
	}
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(name string, factory CommandQueryBundleFactory) error {
	if h == nil {
		return fmt.Errorf("resultlink: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("resultlink: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("resultlink: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("resultlink: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// Sinks flattens every registered pack in pack name order.
func (h *ExtensionHooks) Sinks() []events.Sink {
	var out []events.Sink
	for _, pack := range h.SinkPacks() {
		out = append(out, pack.Sinks...)
	}
	return out
}

func (h *ExtensionHooks) SinkPacks() []SinkPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.sinkPacks))
	for name := range h.sinkPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]SinkPack, 0, len(names))
	for _, name := range names {
		pack := h.sinkPacks[name]
		out = append(out, SinkPack{
			Name:  pack.Name,
			Sinks: append([]events.Sink(nil), pack.Sinks...),
		})
	}
	return out
}

func (h *ExtensionHooks) BuildCommandQueryBundles(service CommandQueryService) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("resultlink: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		names = append(names, name)
		factories[name] = factory
	}
	h.mu.RUnlock()
	sort.Strings(names)

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, fmt.Errorf("resultlink: build bundle %q: %w", name, err)
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
