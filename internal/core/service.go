// Package core is the application service over the field catalog, the record
// store and the condition compiler. Every operation runs in the tenant/app
// scope carried by its context and is logged, traced and measured.
package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fieldcore/internal/catalog"
	"fieldcore/internal/condition"
	"fieldcore/internal/infra/persistence/memory"
	"fieldcore/internal/records"
	"fieldcore/pkg/domain"
)

// Service exposes the scoped catalog, record and compile operations.
type Service struct {
	store     domain.PersistentStore
	catalog   *catalog.Catalog
	records   *records.Store
	logger    zerolog.Logger
	metrics   MetricsRecorder
	tracer    Tracer
	now       func() time.Time
	cacheSize int
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the operation logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics installs a metrics recorder.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the time source for audit stamps and durations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCacheSize bounds the number of cached catalog snapshots.
func WithCacheSize(size int) Option {
	return func(s *Service) { s.cacheSize = size }
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("core: store is required")
	}
	s := &Service{
		store:   store,
		logger:  zerolog.Nop(),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	cat, err := catalog.New(store, s.cacheSize, catalog.WithClock(s.now))
	if err != nil {
		return nil, err
	}
	s.catalog = cat
	s.records = records.NewStore(store, cat)
	s.records.SetClock(s.now)
	return s, nil
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(opts ...Option) (*Service, error) {
	return NewService(memory.NewStore(nil), opts...)
}

// Store returns the underlying persistent store.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Catalog returns the field catalog the service resolves names against.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// Close releases the underlying store.
func (s *Service) Close() error { return s.store.Close() }

// run executes fn as the named operation, recording its outcome.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := s.now()
	traceID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	elapsed := s.now().Sub(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	if failures, ok := s.metrics.(FailureObserver); ok && err != nil {
		failures.ObserveFailure(ctx, op, err)
	}

	scope, _ := domain.ScopeFrom(ctx)
	event := s.logger.Debug()
	if err != nil {
		event = s.logger.Warn().Err(err).Str("error_kind", ErrorKind(err))
	}
	event.Str("op", op).
		Str("tenant", scope.TenantID).
		Str("app", scope.AppCode).
		Dur("duration", elapsed).
		Str("trace_id", traceID).
		Msg(op)
	return err
}

// ResolveFieldType returns the data type of the named field.
func (s *Service) ResolveFieldType(ctx context.Context, name string) (domain.DataType, bool, error) {
	var (
		t  domain.DataType
		ok bool
	)
	err := s.run(ctx, "resolve_field_type", func(ctx context.Context) error {
		var err error
		t, ok, err = s.catalog.ResolveFieldType(ctx, name)
		return err
	})
	return t, ok, err
}

// Assemble loads one record with its field items.
func (s *Service) Assemble(ctx context.Context, id int64) (domain.StructuredRecord, bool, error) {
	var (
		rec domain.StructuredRecord
		ok  bool
	)
	err := s.run(ctx, "assemble", func(ctx context.Context) error {
		var err error
		rec, ok, err = s.records.Get(ctx, id)
		return err
	})
	return rec, ok, err
}

// AssembleMany loads the valid records among ids, newest first.
func (s *Service) AssembleMany(ctx context.Context, ids []int64) ([]domain.StructuredRecord, error) {
	var out []domain.StructuredRecord
	err := s.run(ctx, "assemble_many", func(ctx context.Context) error {
		var err error
		out, err = s.records.GetMany(ctx, ids)
		return err
	})
	return out, err
}

// CreateRecord persists a record and its field values.
func (s *Service) CreateRecord(ctx context.Context, rec domain.StructuredRecord) (domain.StructuredRecord, error) {
	var created domain.StructuredRecord
	err := s.run(ctx, "create_record", func(ctx context.Context) error {
		var err error
		created, err = s.records.Create(ctx, rec)
		return err
	})
	return created, err
}

// UpdateRecord replaces the header fields of rec and upserts its items.
func (s *Service) UpdateRecord(ctx context.Context, rec domain.StructuredRecord) (domain.StructuredRecord, error) {
	var updated domain.StructuredRecord
	err := s.run(ctx, "update_record", func(ctx context.Context) error {
		var err error
		updated, err = s.records.Update(ctx, rec)
		return err
	})
	return updated, err
}

// UpdateFields upserts the named field values of record id.
func (s *Service) UpdateFields(ctx context.Context, id int64, values map[string]any) (domain.StructuredRecord, error) {
	var updated domain.StructuredRecord
	err := s.run(ctx, "update_fields", func(ctx context.Context) error {
		var err error
		updated, err = s.records.UpdateFields(ctx, id, values)
		return err
	})
	return updated, err
}

// DeleteRecord soft deletes one record and its values.
func (s *Service) DeleteRecord(ctx context.Context, id int64) error {
	return s.run(ctx, "delete_record", func(ctx context.Context) error {
		return s.records.Delete(ctx, id)
	})
}

// DeleteRecords soft deletes every record in ids. Missing ids are ignored.
func (s *Service) DeleteRecords(ctx context.Context, ids []int64) error {
	return s.run(ctx, "delete_records", func(ctx context.Context) error {
		return s.records.DeleteMany(ctx, ids)
	})
}

// Query returns the records matching cond, newest first.
func (s *Service) Query(ctx context.Context, cond domain.Condition, page domain.Page) ([]domain.StructuredRecord, error) {
	var out []domain.StructuredRecord
	err := s.run(ctx, "query", func(ctx context.Context) error {
		var err error
		out, err = s.records.QueryRecords(ctx, cond, page)
		return err
	})
	return out, err
}

// QueryIDs returns the ids of the records matching cond, newest first.
func (s *Service) QueryIDs(ctx context.Context, cond domain.Condition, page domain.Page) ([]int64, error) {
	var ids []int64
	err := s.run(ctx, "query_ids", func(ctx context.Context) error {
		var err error
		ids, err = s.records.Query(ctx, cond, page)
		return err
	})
	return ids, err
}

// Compile translates cond into a parameterized SQL fragment for mode. Field
// types resolve against the catalog of ctx's scope.
func (s *Service) Compile(ctx context.Context, cond domain.Condition, mode condition.Mode) (string, *condition.Params, error) {
	var res condition.Result
	err := s.run(ctx, "compile", func(ctx context.Context) error {
		snap, err := s.catalog.Snapshot(ctx)
		if err != nil {
			return err
		}
		res, err = condition.New(snap, condition.Options{Mode: mode}).Compile(cond)
		if counter, ok := s.metrics.(CompileObserver); ok {
			counter.ObserveCompile(ctx, mode.String(), err == nil)
		}
		return err
	})
	if err != nil {
		return "", nil, err
	}
	return res.SQL, res.Params, nil
}

// SeedFields defines the fields read from a YAML or JSON seed document,
// skipping names that already exist.
func (s *Service) SeedFields(ctx context.Context, r io.Reader) ([]domain.FieldDefinition, error) {
	var out []domain.FieldDefinition
	err := s.run(ctx, "seed_fields", func(ctx context.Context) error {
		var err error
		out, err = s.catalog.SeedFields(ctx, r)
		return err
	})
	return out, err
}
