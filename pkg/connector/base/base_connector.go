// Package base provides the foundational BaseConnector that all Meridian
// adapters embed. It carries the adapter's identity and a component-tagged
// structured logger so adapter implementations stay focused on backend
// specifics.
//
// All adapters should embed BaseConnector:
//
//	type PostgresConnector struct {
//	    *base.BaseConnector
//	    // backend-specific fields
//	}
//
//	func New(params core.Parameters) (core.Connector, error) {
//	    return &PostgresConnector{
//	        BaseConnector: base.NewBaseConnector("postgresql", "1.0.0"),
//	    }, nil
//	}
package base

import (
	"go.uber.org/zap"

	"github.com/connectorhq/meridian/pkg/logger"
)

// BaseConnector provides common identity and logging for adapters.
type BaseConnector struct {
	name    string // Connector tag
	version string // Adapter version
	logger  *zap.Logger
}

// NewBaseConnector creates a new base connector with the specified tag and
// version. Called by adapter implementations during construction.
func NewBaseConnector(name, version string) *BaseConnector {
	return &BaseConnector{
		name:    name,
		version: version,
		logger:  logger.Get().With(zap.String("connector", name)),
	}
}

// Name returns the connector tag.
func (bc *BaseConnector) Name() string { return bc.name }

// Type returns the connector tag; adapters represent one backend family
// each, so tag and type coincide.
func (bc *BaseConnector) Type() string { return bc.name }

// Version returns the adapter version.
func (bc *BaseConnector) Version() string { return bc.version }

// Logger returns the adapter's structured logger. Decrypted parameter
// values must never be passed to it.
func (bc *BaseConnector) Logger() *zap.Logger { return bc.logger }
