// Package meridian provides a connection broker for heterogeneous data
// sources. It stores connection credentials encrypted at rest and brokers
// test and metadata operations against the backends behind them through a
// uniform connector interface.
//
// # Architecture
//
// Meridian is organized around three boundaries:
//
// 1. The secret cipher and credential vault: connection parameters are
// validated against the connector's declared schema, serialized
// deterministically, and sealed with AES-256-GCM. Plaintext parameters
// exist only transiently in memory between decrypt and connector close;
// they never reach storage, logs, or error messages.
//
// 2. The connector registry and contract: each backend family implements
// one adapter (connect, ping, fetch metadata, close) and registers a
// descriptor mapping its type tag to a parameter schema and factory.
// Adding a backend means one adapter package and one registration call.
//
// 3. The broker: drives every operation through a fixed state machine
// (decrypt, resolve, connect, execute, close) with per-attempt deadlines
// and bounded retry for transient failures. Failures surface as structured
// errors carrying a stable kind tag.
//
// # Quick Start
//
// Register a connection and test it:
//
//	import (
//	    "context"
//	    "github.com/connectorhq/meridian/pkg/broker"
//	    "github.com/connectorhq/meridian/pkg/config"
//	    "github.com/connectorhq/meridian/pkg/connector/core"
//	    "github.com/connectorhq/meridian/pkg/connector/registry"
//	    "github.com/connectorhq/meridian/pkg/secret"
//	    "github.com/connectorhq/meridian/pkg/store"
//	    "github.com/connectorhq/meridian/pkg/vault"
//
//	    _ "github.com/connectorhq/meridian/pkg/connector/backends/postgres"
//	)
//
//	cfg := config.NewBrokerConfig()
//	key, _ := secret.LoadKey(cfg.Security)
//	cipher, _ := secret.NewCipher(key, cfg.Security.KeyVersion)
//
//	reg := registry.GetRegistry()
//	b := broker.New(store.NewMemoryStore(), vault.New(cipher, reg), reg, cfg)
//
//	id, _ := b.RegisterConnection(context.Background(), "postgresql", "primary",
//	    core.Parameters{
//	        "host": "db.internal", "user": "app",
//	        "password": "...", "database": "appdb",
//	    })
//	result, _ := b.TestConnection(context.Background(), id)
//
// # Key Packages
//
//	pkg/secret          - AES-256-GCM cipher and key derivation
//	pkg/vault           - Parameter serialization and encryption
//	pkg/connector       - Connector contract, registry, and backend adapters
//	pkg/broker          - Connection orchestrator with retry and timeouts
//	pkg/store           - Connection record persistence (memory, PostgreSQL)
//	pkg/config          - Unified broker configuration
//	pkg/meridianerrors  - Structured error handling with stable kind tags
//	pkg/logger          - Structured logging
//	pkg/metrics         - Prometheus operation metrics
//
// # Connectors
//
// Available backend adapters:
//   - PostgreSQL
//   - MySQL
//   - MongoDB
//   - Redis
//   - Google Sheets
//
// # Configuration
//
// Meridian uses a unified configuration system:
//
//	type BrokerConfig struct {
//	    Timeouts      TimeoutConfig       // Connection, operation deadlines
//	    Reliability   ReliabilityConfig   // Retry attempts, backoff
//	    Security      SecurityConfig      // Cipher key material source
//	    Observability ObservabilityConfig // Metrics, logging
//	}
//
// Environment variables are supported in YAML files with ${VAR_NAME}
// syntax. The cipher key is derived from a secret provided via environment
// variable or file; it never appears in configuration.
package meridian
