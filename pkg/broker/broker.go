// Package broker implements the connection orchestrator: the use-case layer
// that drives test and metadata operations against stored connection
// records.
//
// Each invocation walks a fixed state machine:
//
//	Decrypting → Resolving → Connecting → Executing → Closing → Done
//
// terminal on success or on the first failing state. Decrypt failures are
// never retried; connect and execute failures are retried with bounded
// exponential backoff, but only for transient error kinds. Close runs on
// every exit path of every attempt so no handle leaks, and every attempt is
// bounded by a deadline so a hung backend cannot block the caller.
//
// The broker serves concurrent requests for different records in parallel;
// the only shared state is the read-only registry and the cipher key
// material. Overlapping calls for the same record produce independent
// outcomes — the broker does not deduplicate in-flight requests.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/connectorhq/meridian/pkg/config"
	"github.com/connectorhq/meridian/pkg/connector/base"
	"github.com/connectorhq/meridian/pkg/connector/core"
	"github.com/connectorhq/meridian/pkg/connector/registry"
	"github.com/connectorhq/meridian/pkg/logger"
	"github.com/connectorhq/meridian/pkg/meridianerrors"
	"github.com/connectorhq/meridian/pkg/metrics"
	"github.com/connectorhq/meridian/pkg/store"
	"github.com/connectorhq/meridian/pkg/vault"
)

// closeGrace bounds the Close call on each exit path. Close must run even
// when the attempt context is already dead, so it gets its own deadline.
const closeGrace = 5 * time.Second

// Broker orchestrates connection operations over a record store, the
// credential vault, and the connector registry.
type Broker struct {
	store    store.Store
	vault    *vault.Vault
	registry *registry.Registry
	retry    *base.RetryPolicy
	cfg      *config.BrokerConfig
	logger   *zap.Logger
}

// New creates a Broker. The retry policy is derived from the reliability
// section of the configuration.
func New(st store.Store, v *vault.Vault, reg *registry.Registry, cfg *config.BrokerConfig) *Broker {
	retry := &base.RetryPolicy{
		MaxAttempts:     cfg.Reliability.RetryAttempts,
		InitialDelay:    cfg.Reliability.RetryDelay,
		MaxDelay:        cfg.Reliability.MaxRetryDelay,
		Multiplier:      cfg.Reliability.RetryMultiplier,
		RandomizeFactor: 0.25,
	}

	return &Broker{
		store:    st,
		vault:    v,
		registry: reg,
		retry:    retry,
		cfg:      cfg,
		logger:   logger.Get().With(zap.String("component", "broker")),
	}
}

// RegisterConnection encrypts the given parameters and persists a new
// connection record, returning its ID. The plaintext parameters are used
// only for schema validation and encryption; they are never stored.
func (b *Broker) RegisterConnection(ctx context.Context, tag, label string, params core.Parameters) (string, error) {
	desc, err := b.registry.Resolve(tag)
	if err != nil {
		return "", err
	}

	payload, err := b.vault.Store(tag, desc.ApplyDefaults(params))
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	record := &store.ConnectionRecord{
		ID:        uuid.NewString(),
		Tag:       tag,
		Label:     label,
		Params:    payload,
		Status:    store.StatusUnknown,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := b.store.SaveRecord(ctx, record); err != nil {
		return "", err
	}

	b.logger.Info("connection registered",
		zap.String("connection_id", record.ID),
		zap.String("connector", tag),
		zap.String("label", label))

	return record.ID, nil
}

// UpdateConnection re-encrypts the record's parameters with the supplied
// replacement set.
func (b *Broker) UpdateConnection(ctx context.Context, id string, params core.Parameters) error {
	record, err := b.store.LoadRecord(ctx, id)
	if err != nil {
		return err
	}

	desc, err := b.registry.Resolve(record.Tag)
	if err != nil {
		return err
	}

	payload, err := b.vault.Store(record.Tag, desc.ApplyDefaults(params))
	if err != nil {
		return err
	}

	record.Params = payload
	record.Status = store.StatusUnknown
	record.UpdatedAt = time.Now().UTC()

	if err := b.store.SaveRecord(ctx, record); err != nil {
		return err
	}

	b.logger.Info("connection updated",
		zap.String("connection_id", id),
		zap.String("connector", record.Tag))

	return nil
}

// DeleteConnection removes a record. The ciphertext is discarded with it;
// subsequent operations on the ID fail with a not_found error.
func (b *Broker) DeleteConnection(ctx context.Context, id string) error {
	if err := b.store.DeleteRecord(ctx, id); err != nil {
		return err
	}
	b.logger.Info("connection deleted", zap.String("connection_id", id))
	return nil
}

// GetConnection returns a stored record. Params stay encrypted in the
// returned value.
func (b *Broker) GetConnection(ctx context.Context, id string) (*store.ConnectionRecord, error) {
	return b.store.LoadRecord(ctx, id)
}

// ListConnections returns all stored records.
func (b *Broker) ListConnections(ctx context.Context) ([]*store.ConnectionRecord, error) {
	return b.store.ListRecords(ctx)
}

// TestConnection verifies reachability and authentication of the backend
// behind a stored record. It returns a uniform TestResult on success; on
// failure the error carries a stable kind tag and the record's status is
// refreshed either way.
func (b *Broker) TestConnection(ctx context.Context, id string) (*core.TestResult, error) {
	var pingLatency time.Duration

	attempts, err := b.execute(ctx, id, "test", func(ctx context.Context, conn core.Connector) error {
		started := time.Now()
		if err := conn.Ping(ctx); err != nil {
			return err
		}
		pingLatency = time.Since(started)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &core.TestResult{
		Success:  true,
		Latency:  pingLatency,
		Attempts: attempts,
		Message:  "connection successful",
	}, nil
}

// FetchMetadata retrieves the normalized structure description of the
// backend behind a stored record. Partial backend failures surface as a
// single failure for the call; there is no partial-success shape.
func (b *Broker) FetchMetadata(ctx context.Context, id string) (*core.Metadata, error) {
	var metadata *core.Metadata

	_, err := b.execute(ctx, id, "metadata", func(ctx context.Context, conn core.Connector) error {
		md, err := conn.FetchMetadata(ctx)
		if err != nil {
			return err
		}
		metadata = md
		return nil
	})
	if err != nil {
		return nil, err
	}

	return metadata, nil
}

// execute runs the per-invocation state machine and returns the number of
// attempts consumed. The op function runs in the Executing state against a
// connected adapter.
func (b *Broker) execute(ctx context.Context, id, operation string, op func(context.Context, core.Connector) error) (int, error) {
	timer := metrics.NewTimer()
	attempts := 0

	record, err := b.store.LoadRecord(ctx, id)
	if err != nil {
		return 0, err
	}

	log := b.logger.With(
		zap.String("connection_id", id),
		zap.String("connector", record.Tag),
		zap.String("operation", operation),
		zap.String("request_id", uuid.NewString()))

	// Decrypting. A decrypt failure cannot be fixed by retrying, so it
	// aborts immediately as a credential error.
	params, err := b.vault.Load(record.Params, record.Tag)
	if err != nil {
		if meridianerrors.IsType(err, meridianerrors.ErrorTypeDecryption) {
			err = meridianerrors.Wrap(err, meridianerrors.ErrorTypeCredential,
				"stored credentials could not be decrypted")
		}
		b.finish(ctx, record, operation, attempts, timer, err, log)
		return attempts, err
	}

	// Resolving.
	desc, err := b.registry.Resolve(record.Tag)
	if err != nil {
		b.finish(ctx, record, operation, attempts, timer, err, log)
		return attempts, err
	}
	params = desc.ApplyDefaults(params)

	// Connecting and Executing, with bounded retry for transient failures.
	err = b.retry.ExecuteWithCondition(ctx, func() error {
		attempts++
		return b.attempt(ctx, desc, params, op)
	}, meridianerrors.IsRetryable)

	// The retry policy wraps the final failure; unwrap back to the
	// structured error so callers see the stable kind tag. A caller
	// deadline that expires between attempts aborts the retry wait with a
	// bare context error, which is still a timeout to the caller.
	if err != nil {
		var structured *meridianerrors.Error
		switch {
		case errors.As(err, &structured):
			err = structured
		case errors.Is(err, context.DeadlineExceeded):
			err = meridianerrors.Wrap(err, meridianerrors.ErrorTypeTimeout,
				"operation exceeded its deadline")
		default:
			err = meridianerrors.Wrap(err, meridianerrors.ErrorTypeInternal, "operation failed")
		}
	}

	b.finish(ctx, record, operation, attempts, timer, err, log)
	return attempts, err
}

// attempt runs one Connecting → Executing → Closing pass. Close is invoked
// on every exit path, including after a partial connect, with its own
// deadline so a dead attempt context cannot skip cleanup.
func (b *Broker) attempt(parent context.Context, desc *registry.Descriptor, params core.Parameters, op func(context.Context, core.Connector) error) error {
	conn, err := desc.Factory(params)
	if err != nil {
		return err
	}

	attemptCtx, cancel := context.WithTimeout(parent, b.cfg.Timeouts.Operation)
	defer cancel()

	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), closeGrace)
		defer closeCancel()
		if closeErr := conn.Close(closeCtx); closeErr != nil {
			b.logger.Warn("connector close failed",
				zap.String("connector", desc.Tag), zap.Error(closeErr))
		}
	}()

	connectCtx, connectCancel := context.WithTimeout(attemptCtx, b.cfg.Timeouts.Connect)
	err = conn.Connect(connectCtx)
	connectCancel()
	if err != nil {
		return translateTimeout(connectCtx, err)
	}

	if err := op(attemptCtx, conn); err != nil {
		return translateTimeout(attemptCtx, err)
	}

	return nil
}

// translateTimeout maps a deadline expiry into the uniform timeout kind,
// which counts as transient and stays eligible for retry within the
// attempt budget.
func translateTimeout(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeTimeout,
			"operation exceeded its deadline")
	}
	return err
}

// finish refreshes the record's last-known health and records metrics. A
// status write failure is logged, not surfaced: the operation outcome is
// what the caller asked for.
func (b *Broker) finish(ctx context.Context, record *store.ConnectionRecord, operation string, attempts int, timer *metrics.Timer, opErr error, log *zap.Logger) {
	elapsed := timer.Elapsed()

	status := store.StatusHealthy
	errKind := ""
	if opErr != nil {
		status = store.StatusUnhealthy
		errKind = string(meridianerrors.TypeOf(opErr))
	}

	record.Status = status
	record.LastTestAt = time.Now().UTC()
	record.UpdatedAt = record.LastTestAt
	if err := b.store.SaveRecord(ctx, record); err != nil {
		log.Warn("failed to refresh record status", zap.Error(err))
	}

	if b.cfg.Observability.EnableMetrics {
		metrics.ObserveOperation(operation, record.Tag, attempts, elapsed, errKind)
	}

	if opErr != nil {
		log.Warn("operation failed",
			zap.Int("attempts", attempts),
			zap.Duration("elapsed", elapsed),
			zap.String("kind", errKind),
			zap.Error(opErr))
		return
	}
	log.Info("operation completed",
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", elapsed))
}
