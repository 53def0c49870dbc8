// Package core defines the capability contract every backend adapter
// implements and the uniform result shapes returned to callers. The rest of
// the system stays backend-agnostic: the broker drives any data source
// through this interface alone.
package core

import (
	"context"
	"time"
)

// Parameters is a backend-specific mapping of field name to value (host,
// port, credential, sheet id, token, ...). Parameters exist only transiently
// in memory between vault decrypt and connector close; they are never
// persisted in plaintext and must never cross a logging or error-formatting
// boundary.
type Parameters map[string]string

// Clone returns an independent copy of the parameter set.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// FieldNames returns the parameter field names. Safe to log; values are not.
func (p Parameters) FieldNames() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	return names
}

// Connector is the capability interface implemented once per backend
// family. Implementations own backend-specific error translation: every
// underlying failure is mapped into the uniform error taxonomy before it
// crosses back over this boundary, and no diagnostic may carry raw driver
// text containing secrets.
type Connector interface {
	// Metadata
	Name() string
	Type() string
	Version() string

	// Connect establishes a short-lived handle to the backend. It does not
	// retry; retry policy belongs to the broker.
	Connect(ctx context.Context) error

	// Ping issues the cheapest possible round trip to confirm reachability
	// and authentication, not data correctness.
	Ping(ctx context.Context) error

	// FetchMetadata enumerates addressable sub-resources (tables, sheets,
	// collections) and their fields, mapped into the uniform Metadata shape.
	FetchMetadata(ctx context.Context) (*Metadata, error)

	// Close releases any transient resource. Idempotent, and safe to call
	// even if Connect partially failed.
	Close(ctx context.Context) error
}

// TestResult is the uniform outcome of a connection test.
type TestResult struct {
	Success  bool          `json:"success"`
	Latency  time.Duration `json:"latency"`
	Attempts int           `json:"attempts"`
	Message  string        `json:"message"`
}

// Metadata is the normalized description of a data source's addressable
// structure, independent of backend.
type Metadata struct {
	SourceType string                 `json:"source_type"`
	Name       string                 `json:"name"`
	Version    string                 `json:"version,omitempty"`
	Resources  []Resource             `json:"resources"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

// ResourceKind classifies an addressable sub-resource.
type ResourceKind string

const (
	ResourceKindTable      ResourceKind = "table"
	ResourceKindSheet      ResourceKind = "sheet"
	ResourceKindCollection ResourceKind = "collection"
	ResourceKindKeyspace   ResourceKind = "keyspace"
)

// Resource describes one addressable sub-resource of a data source.
type Resource struct {
	Name     string       `json:"name"`
	Kind     ResourceKind `json:"kind"`
	Fields   []Field      `json:"fields"`
	RowCount int64        `json:"row_count,omitempty"`
}

// Field represents a field in a resource
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Nullable bool      `json:"nullable"`
	Primary  bool      `json:"primary,omitempty"`
}

// FieldType represents the normalized data type of a field
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInt       FieldType = "int"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBool      FieldType = "bool"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeDate      FieldType = "date"
	FieldTypeTime      FieldType = "time"
	FieldTypeJSON      FieldType = "json"
	FieldTypeBinary    FieldType = "binary"
)

// ParameterSpec declares one field of a connector's parameter schema. The
// vault validates decrypted parameter sets against these specs, and Secret
// marks fields whose values must never appear in any response or log.
type ParameterSpec struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Secret      bool   `json:"secret"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// Factory constructs a Connector from decrypted parameters.
type Factory func(params Parameters) (Connector, error)
