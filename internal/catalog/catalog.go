// Package catalog owns the per-tenant field catalog: field definitions, field
// groups and the read-through cache every other layer resolves names against.
package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"fieldcore/pkg/domain"
)

// DefaultCacheSize bounds the number of tenant/app snapshots kept in memory.
const DefaultCacheSize = 256

// Snapshot is an immutable view of one scope's valid fields and groups.
type Snapshot struct {
	scope  domain.Scope
	fields []domain.FieldDefinition
	groups []domain.FieldGroup
	byName map[string]int
	byID   map[int64]int
}

var (
	_ domain.FieldResolver = (*Snapshot)(nil)
	_ domain.FieldNamer    = (*Snapshot)(nil)
)

func newSnapshot(scope domain.Scope, fields []domain.FieldDefinition, groups []domain.FieldGroup) *Snapshot {
	s := &Snapshot{
		scope:  scope,
		fields: slices.Clone(fields),
		groups: make([]domain.FieldGroup, len(groups)),
		byName: make(map[string]int, len(fields)),
		byID:   make(map[int64]int, len(fields)),
	}
	for i, g := range groups {
		g.FieldIDs = slices.Clone(g.FieldIDs)
		s.groups[i] = g
	}
	for i, f := range s.fields {
		s.byName[strings.ToLower(f.Name)] = i
		s.byID[f.ID] = i
	}
	return s
}

// Load reads the catalog of the view's scope. It bypasses the cache, so it
// is safe to call inside a write transaction.
func Load(view domain.TransactionView) (*Snapshot, error) {
	fields, err := view.ListFields()
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	groups, err := view.ListGroups()
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return newSnapshot(view.Scope(), fields, groups), nil
}

// Scope returns the tenant/app the snapshot was loaded for.
func (s *Snapshot) Scope() domain.Scope { return s.scope }

// ResolveFieldType returns the declared type of name. The identity field
// always resolves to the identity pseudo-type.
func (s *Snapshot) ResolveFieldType(name string) (domain.DataType, bool) {
	if strings.EqualFold(name, domain.IdentityField) {
		return domain.DataTypeIdentity, true
	}
	f, ok := s.Field(name)
	if !ok {
		return domain.DataTypeUnknown, false
	}
	return f.DataType, true
}

// CanonicalFieldName returns the catalog spelling of name.
func (s *Snapshot) CanonicalFieldName(name string) (string, bool) {
	f, ok := s.Field(name)
	if !ok {
		return "", false
	}
	return f.Name, true
}

// Field looks a field up by name, ignoring case.
func (s *Snapshot) Field(name string) (domain.FieldDefinition, bool) {
	i, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return domain.FieldDefinition{}, false
	}
	return s.fields[i], true
}

// FieldByID looks a field up by id.
func (s *Snapshot) FieldByID(id int64) (domain.FieldDefinition, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.FieldDefinition{}, false
	}
	return s.fields[i], true
}

// Fields returns the valid fields ordered by sort.
func (s *Snapshot) Fields() []domain.FieldDefinition {
	return slices.Clone(s.fields)
}

// Groups returns the valid groups ordered by sort.
func (s *Snapshot) Groups() []domain.FieldGroup {
	out := make([]domain.FieldGroup, len(s.groups))
	for i, g := range s.groups {
		g.FieldIDs = slices.Clone(g.FieldIDs)
		out[i] = g
	}
	return out
}

// Catalog serves cached snapshots and the administrative catalog operations.
type Catalog struct {
	store domain.PersistentStore
	cache *lru.Cache[string, *Snapshot]
	now   func() time.Time

	// generation counts invalidations. A snapshot loaded while it moved may
	// predate a committed mutation and is returned without being cached.
	mu         sync.Mutex
	generation uint64
}

// Option customises a Catalog.
type Option func(*Catalog)

// WithClock overrides the time source used for audit stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a catalog over store with a cache of size snapshots. A
// non-positive size uses DefaultCacheSize.
func New(store domain.PersistentStore, size int, opts ...Option) (*Catalog, error) {
	if store == nil {
		return nil, fmt.Errorf("catalog: store is required")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *Snapshot](size)
	if err != nil {
		return nil, fmt.Errorf("catalog cache: %w", err)
	}
	c := &Catalog{store: store, cache: cache, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Snapshot returns the cached catalog of the scope carried by ctx, loading
// it on a miss.
func (c *Catalog) Snapshot(ctx context.Context) (*Snapshot, error) {
	scope, err := domain.ScopeFrom(ctx)
	if err != nil {
		return nil, err
	}
	if snap, ok := c.cache.Get(scope.Key()); ok {
		return snap, nil
	}
	c.mu.Lock()
	generation := c.generation
	c.mu.Unlock()

	var snap *Snapshot
	err = c.store.View(ctx, func(view domain.TransactionView) error {
		var err error
		snap, err = Load(view)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.generation == generation {
		c.cache.Add(scope.Key(), snap)
	}
	c.mu.Unlock()
	return snap, nil
}

// Invalidate drops every cached snapshot, including any being loaded
// concurrently.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.cache.Purge()
}

// Cached reports how many snapshots are currently cached.
func (c *Catalog) Cached() int {
	return c.cache.Len()
}

// ResolveFieldType resolves name against the catalog of ctx's scope.
func (c *Catalog) ResolveFieldType(ctx context.Context, name string) (domain.DataType, bool, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return domain.DataTypeUnknown, false, err
	}
	t, ok := snap.ResolveFieldType(name)
	return t, ok, nil
}

// ListFields returns the valid fields of ctx's scope ordered by sort.
func (c *Catalog) ListFields(ctx context.Context) ([]domain.FieldDefinition, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Fields(), nil
}

// ListGroups returns the valid groups of ctx's scope ordered by sort.
func (c *Catalog) ListGroups(ctx context.Context) ([]domain.FieldGroup, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Groups(), nil
}

// mutate runs fn against an editor loaded inside a write transaction and
// purges the cache once the transaction commits.
func (c *Catalog) mutate(ctx context.Context, fn func(*editor) error) error {
	actor := domain.ActorFrom(ctx)
	now := c.now().UTC()
	err := c.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		snap, err := Load(tx)
		if err != nil {
			return err
		}
		return fn(&editor{
			tx:     tx,
			actor:  actor,
			now:    now,
			fields: snap.Fields(),
			groups: snap.Groups(),
		})
	})
	if err != nil {
		return err
	}
	c.Invalidate()
	return nil
}
