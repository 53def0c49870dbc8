// Package registry maps connector-type tags to the descriptors that know
// how to validate their parameters and construct adapter instances. It is
// the single extension point for adding backends: a new backend means one
// adapter package and one registration call, with no changes to the broker
// or the vault.
package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/connectorhq/meridian/pkg/connector/core"
	"github.com/connectorhq/meridian/pkg/logger"
	"github.com/connectorhq/meridian/pkg/meridianerrors"
)

// Descriptor is a registry entry mapping a connector-type tag to the
// parameter schema it expects and a factory producing a Connector instance.
type Descriptor struct {
	// Tag uniquely identifies the connector type (e.g. "postgresql")
	Tag string `json:"tag"`
	// Name is the human-readable connector name
	Name string `json:"name"`
	// Description explains what the connector reaches
	Description string `json:"description"`
	// Version of the adapter implementation
	Version string `json:"version"`
	// Schema declares the parameter fields the adapter expects
	Schema []core.ParameterSpec `json:"schema"`
	// Factory constructs an adapter from decrypted parameters
	Factory core.Factory `json:"-"`
}

// ValidateParams checks a parameter set against the descriptor schema:
// every required field present and non-empty, no fields outside the schema.
// Errors reference field names only, never values.
func (d *Descriptor) ValidateParams(params core.Parameters) error {
	known := make(map[string]bool, len(d.Schema))
	for _, spec := range d.Schema {
		known[spec.Name] = true
		if spec.Required && params[spec.Name] == "" {
			return meridianerrors.Newf(meridianerrors.ErrorTypeSchemaMismatch,
				"connector %s: missing required field %s", d.Tag, spec.Name).
				WithDetail("field", spec.Name)
		}
	}
	for name := range params {
		if !known[name] {
			return meridianerrors.Newf(meridianerrors.ErrorTypeSchemaMismatch,
				"connector %s: unexpected field %s", d.Tag, name).
				WithDetail("field", name)
		}
	}
	return nil
}

// ApplyDefaults returns a copy of params with schema defaults filled in for
// absent optional fields.
func (d *Descriptor) ApplyDefaults(params core.Parameters) core.Parameters {
	out := params.Clone()
	for _, spec := range d.Schema {
		if spec.Default != "" && out[spec.Name] == "" {
			out[spec.Name] = spec.Default
		}
	}
	return out
}

// Registry manages connector descriptor registration and resolution.
// Registration happens at process startup from adapter init functions;
// after that the registry is read-only and safe for concurrent use.
type Registry struct {
	descriptors map[string]*Descriptor
	mu          sync.RWMutex
	logger      *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]*Descriptor),
		logger:      logger.Get().With(zap.String("component", "connector_registry")),
	}
}

// Register adds a descriptor. Re-registering an existing tag is an error,
// preventing silent override of a backend implementation.
func (r *Registry) Register(desc *Descriptor) error {
	if desc == nil || desc.Tag == "" {
		return meridianerrors.New(meridianerrors.ErrorTypeConfig, "descriptor must have a tag")
	}
	if desc.Factory == nil {
		return meridianerrors.Newf(meridianerrors.ErrorTypeConfig,
			"descriptor %s must have a factory", desc.Tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[desc.Tag]; exists {
		return meridianerrors.Newf(meridianerrors.ErrorTypeConflict,
			"connector %s already registered", desc.Tag)
	}

	r.descriptors[desc.Tag] = desc
	r.logger.Info("connector registered", zap.String("tag", desc.Tag))
	return nil
}

// Resolve returns the descriptor for a tag. Unknown tags are a hard error,
// never silently ignored.
func (r *Registry) Resolve(tag string) (*Descriptor, error) {
	r.mu.RLock()
	desc, exists := r.descriptors[tag]
	r.mu.RUnlock()

	if !exists {
		return nil, meridianerrors.Newf(meridianerrors.ErrorTypeUnknownConnector,
			"connector %s not registered", tag)
	}
	return desc, nil
}

// Has checks whether a tag is registered.
func (r *Registry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.descriptors[tag]
	return exists
}

// List returns all registered descriptors sorted by tag.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]*Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		descs = append(descs, d)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Tag < descs[j].Tag })
	return descs
}

// Tags returns the registered connector tags sorted alphabetically.
func (r *Registry) Tags() []string {
	descs := r.List()
	tags := make([]string, len(descs))
	for i, d := range descs {
		tags[i] = d.Tag
	}
	return tags
}

// Clear removes all registered descriptors (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors = make(map[string]*Descriptor)
}

// Global registry functions

// Register adds a descriptor to the global registry
func Register(desc *Descriptor) error {
	return globalRegistry.Register(desc)
}

// MustRegister registers a descriptor and panics on failure. Intended for
// adapter init functions, where a duplicate tag is a programming error.
func MustRegister(desc *Descriptor) {
	if err := globalRegistry.Register(desc); err != nil {
		panic(err)
	}
}

// Resolve returns a descriptor from the global registry
func Resolve(tag string) (*Descriptor, error) {
	return globalRegistry.Resolve(tag)
}

// Has checks the global registry for a tag
func Has(tag string) bool {
	return globalRegistry.Has(tag)
}

// List returns all descriptors from the global registry
func List() []*Descriptor {
	return globalRegistry.List()
}

// Tags returns registered tags from the global registry
func Tags() []string {
	return globalRegistry.Tags()
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}
