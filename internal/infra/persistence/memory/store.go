// Package memory provides an in-memory implementation of the persistence
// store used for tests, the CLI's ephemeral mode and predicate-based queries.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"fieldcore/internal/condition"
	"fieldcore/internal/ids"
	"fieldcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

// scopeState holds the rows of one tenant/app.
type scopeState struct {
	fields  map[int64]domain.FieldDefinition
	groups  map[int64]domain.FieldGroup
	records map[int64]domain.Record
	values  map[int64]domain.Value
}

func newScopeState() *scopeState {
	return &scopeState{
		fields:  map[int64]domain.FieldDefinition{},
		groups:  map[int64]domain.FieldGroup{},
		records: map[int64]domain.Record{},
		values:  map[int64]domain.Value{},
	}
}

func (s *scopeState) clone() *scopeState {
	cp := newScopeState()
	for k, v := range s.fields {
		v.AdditionalInfo = slices.Clone(v.AdditionalInfo)
		cp.fields[k] = v
	}
	for k, v := range s.groups {
		v.FieldIDs = slices.Clone(v.FieldIDs)
		cp.groups[k] = v
	}
	for k, v := range s.records {
		cp.records[k] = v
	}
	for k, v := range s.values {
		cp.values[k] = cloneValue(v)
	}
	return cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneValue(v domain.Value) domain.Value {
	v.ShortString = clonePtr(v.ShortString)
	v.MediumString = clonePtr(v.MediumString)
	v.LongText = clonePtr(v.LongText)
	v.Number = clonePtr(v.Number)
	v.Bool = clonePtr(v.Bool)
	v.Timestamp = clonePtr(v.Timestamp)
	v.RefID = clonePtr(v.RefID)
	v.List = clonePtr(v.List)
	return v
}

// Snapshot is the serialisable representation of one scope's rows.
type Snapshot struct {
	Fields  []domain.FieldDefinition `json:"fields"`
	Groups  []domain.FieldGroup      `json:"groups"`
	Records []domain.Record          `json:"records"`
	Values  []domain.Value           `json:"values"`
}

// Store provides an in-memory transactional store partitioned by scope.
type Store struct {
	mu     sync.RWMutex
	scopes map[domain.Scope]*scopeState
	ids    *ids.Generator
	nowFn  func() time.Time
}

// NewStore constructs an empty in-memory store. A nil generator uses node 0.
func NewStore(gen *ids.Generator) *Store {
	if gen == nil {
		gen = ids.MustNew(0)
	}
	return &Store{
		scopes: map[domain.Scope]*scopeState{},
		ids:    gen,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// ExportState clones the rows of scope for external persistence.
func (s *Store) ExportState(scope domain.Scope) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.scopes[scope]
	if !ok {
		return Snapshot{}
	}
	st = st.clone()
	var snap Snapshot
	for _, id := range sortedKeys(st.fields) {
		snap.Fields = append(snap.Fields, st.fields[id])
	}
	for _, id := range sortedKeys(st.groups) {
		snap.Groups = append(snap.Groups, st.groups[id])
	}
	for _, id := range sortedKeys(st.records) {
		snap.Records = append(snap.Records, st.records[id])
	}
	for _, id := range sortedKeys(st.values) {
		snap.Values = append(snap.Values, st.values[id])
	}
	return snap
}

// ImportState replaces the rows of scope with the snapshot.
func (s *Store) ImportState(scope domain.Scope, snap Snapshot) {
	st := newScopeState()
	for _, f := range snap.Fields {
		f.Scope = scope
		st.fields[f.ID] = f
	}
	for _, g := range snap.Groups {
		g.Scope = scope
		st.groups[g.ID] = g
	}
	for _, r := range snap.Records {
		r.Scope = scope
		st.records[r.ID] = r
	}
	for _, v := range snap.Values {
		v.Scope = scope
		st.values[v.ID] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[scope] = st.clone()
}

// RunInTransaction executes fn against a copy of the scope's rows and
// publishes the copy only when fn succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) error {
	scope, err := domain.ScopeFrom(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.scopes[scope]
	if !ok {
		current = newScopeState()
	}
	tx := &transaction{view: view{scope: scope, state: current.clone()}, store: s, now: s.nowFn()}
	if err := fn(tx); err != nil {
		return err
	}
	s.scopes[scope] = tx.state
	return nil
}

// View executes fn against a read-only snapshot of the scope's rows.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	scope, err := domain.ScopeFrom(ctx)
	if err != nil {
		return err
	}
	s.mu.RLock()
	current, ok := s.scopes[scope]
	if ok {
		current = current.clone()
	} else {
		current = newScopeState()
	}
	s.mu.RUnlock()
	return fn(view{scope: scope, state: current})
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// view exposes a scope snapshot.
type view struct {
	scope domain.Scope
	state *scopeState
}

func (v view) Scope() domain.Scope { return v.scope }

func (v view) ListFields() ([]domain.FieldDefinition, error) {
	var out []domain.FieldDefinition
	for _, id := range sortedKeys(v.state.fields) {
		if f := v.state.fields[id]; f.IsValid {
			out = append(out, f)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.FieldDefinition) int { return a.Sort - b.Sort })
	return out, nil
}

func (v view) ListGroups() ([]domain.FieldGroup, error) {
	var out []domain.FieldGroup
	for _, id := range sortedKeys(v.state.groups) {
		if g := v.state.groups[id]; g.IsValid {
			g.FieldIDs = slices.Clone(g.FieldIDs)
			out = append(out, g)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.FieldGroup) int { return a.Sort - b.Sort })
	return out, nil
}

func (v view) GetRecord(id int64) (domain.Record, bool, error) {
	r, ok := v.state.records[id]
	if !ok || !r.IsValid {
		return domain.Record{}, false, nil
	}
	return r, true, nil
}

func (v view) GetRecords(ids []int64) ([]domain.Record, error) {
	var out []domain.Record
	for _, id := range ids {
		if r, ok, _ := v.GetRecord(id); ok {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b domain.Record) int { return compareDesc(a.ID, b.ID) })
	return slices.CompactFunc(out, func(a, b domain.Record) bool { return a.ID == b.ID }), nil
}

func compareDesc(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

func (v view) ValuesByRecordID(id int64) ([]domain.Value, error) {
	return v.ValuesByRecordIDs([]int64{id})
}

func (v view) ValuesByRecordIDs(ids []int64) ([]domain.Value, error) {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []domain.Value
	for _, id := range sortedKeys(v.state.values) {
		val := v.state.values[id]
		if _, ok := want[val.RecordID]; ok && val.IsValid {
			out = append(out, cloneValue(val))
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Value) int { return -compareDesc(a.RecordID, b.RecordID) })
	return out, nil
}

// QueryRecordIDs evaluates cond as an in-memory predicate over every valid record.
func (v view) QueryRecordIDs(cond domain.Condition, resolver domain.FieldResolver, page domain.Page) ([]int64, error) {
	page = page.Normalize()
	pred, err := condition.New(resolver, condition.Options{}).CompilePredicate(cond)
	if err != nil {
		return nil, err
	}
	byRecord := map[int64][]domain.Value{}
	for _, val := range v.state.values {
		if val.IsValid {
			byRecord[val.RecordID] = append(byRecord[val.RecordID], val)
		}
	}
	var matched []int64
	for id, r := range v.state.records {
		if !r.IsValid {
			continue
		}
		if pred(condition.NewValuesRow(id, byRecord[id])) {
			matched = append(matched, id)
		}
	}
	slices.SortFunc(matched, compareDesc)
	if page.Offset >= len(matched) {
		return nil, nil
	}
	end := min(page.Offset+page.Limit, len(matched))
	return matched[page.Offset:end], nil
}

// transaction mutates a private copy of the scope's rows.
type transaction struct {
	view
	store *Store
	now   time.Time
}

func (tx *transaction) stamp(a *domain.Audit) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = tx.now
	}
	if a.ModifiedAt.IsZero() {
		a.ModifiedAt = a.CreatedAt
	}
}

func (tx *transaction) modified(a domain.Audit) time.Time {
	if a.ModifiedAt.IsZero() {
		return tx.now
	}
	return a.ModifiedAt
}

func notFound(entity domain.EntityType, id int64) error {
	return domain.ErrNotFound{Entity: entity, ID: fmt.Sprint(id)}
}

func (tx *transaction) InsertField(f domain.FieldDefinition) (domain.FieldDefinition, error) {
	f.ID = tx.store.ids.Next()
	f.Scope = tx.scope
	f.IsValid = true
	tx.stamp(&f.Audit)
	f.AdditionalInfo = slices.Clone(f.AdditionalInfo)
	tx.state.fields[f.ID] = f
	return f, nil
}

func (tx *transaction) UpdateField(f domain.FieldDefinition) error {
	existing, ok := tx.state.fields[f.ID]
	if !ok {
		return notFound(domain.EntityField, f.ID)
	}
	f.Scope = tx.scope
	f.CreatedAt, f.CreatedBy, f.CreatedUserID = existing.CreatedAt, existing.CreatedBy, existing.CreatedUserID
	f.ModifiedAt = tx.modified(f.Audit)
	f.IsSystem = existing.IsSystem
	f.AdditionalInfo = slices.Clone(f.AdditionalInfo)
	tx.state.fields[f.ID] = f
	return nil
}

func (tx *transaction) UpdateFieldSorts(sorts map[int64]int) error {
	for id, sort := range sorts {
		f, ok := tx.state.fields[id]
		if !ok || !f.IsValid {
			return notFound(domain.EntityField, id)
		}
		f.Sort = sort
		f.ModifiedAt = tx.now
		tx.state.fields[id] = f
	}
	return nil
}

func (tx *transaction) InsertGroup(g domain.FieldGroup) (domain.FieldGroup, error) {
	g.ID = tx.store.ids.Next()
	g.Scope = tx.scope
	g.IsValid = true
	if g.FieldIDs == nil {
		g.FieldIDs = []int64{}
	}
	g.FieldIDs = slices.Clone(g.FieldIDs)
	tx.stamp(&g.Audit)
	tx.state.groups[g.ID] = g
	return g, nil
}

func (tx *transaction) UpdateGroup(g domain.FieldGroup) error {
	existing, ok := tx.state.groups[g.ID]
	if !ok || !existing.IsValid {
		return notFound(domain.EntityFieldGroup, g.ID)
	}
	existing.Name = g.Name
	existing.Sort = g.Sort
	existing.IsDefault = g.IsDefault
	existing.FieldIDs = slices.Clone(g.FieldIDs)
	if existing.FieldIDs == nil {
		existing.FieldIDs = []int64{}
	}
	existing.ModifiedAt = tx.modified(g.Audit)
	existing.ModifiedBy, existing.ModifiedUserID = g.ModifiedBy, g.ModifiedUserID
	tx.state.groups[g.ID] = existing
	return nil
}

func (tx *transaction) InvalidateGroup(id int64, audit domain.Audit) error {
	g, ok := tx.state.groups[id]
	if !ok || !g.IsValid {
		return notFound(domain.EntityFieldGroup, id)
	}
	g.IsValid = false
	g.ModifiedAt = tx.modified(audit)
	g.ModifiedBy, g.ModifiedUserID = audit.ModifiedBy, audit.ModifiedUserID
	tx.state.groups[id] = g
	return nil
}

func (tx *transaction) InsertRecord(r domain.Record) (domain.Record, error) {
	if r.ID == 0 {
		r.ID = tx.store.ids.Next()
	}
	if _, exists := tx.state.records[r.ID]; exists {
		return domain.Record{}, fmt.Errorf("insert record: id %d already exists", r.ID)
	}
	r.Scope = tx.scope
	r.IsValid = true
	tx.stamp(&r.Audit)
	tx.state.records[r.ID] = r
	return r, nil
}

func (tx *transaction) UpdateRecord(r domain.Record) error {
	existing, ok := tx.state.records[r.ID]
	if !ok || !existing.IsValid {
		return notFound(domain.EntityRecord, r.ID)
	}
	existing.ModuleID = r.ModuleID
	existing.Payload = r.Payload
	existing.ModifiedAt = tx.modified(r.Audit)
	existing.ModifiedBy, existing.ModifiedUserID = r.ModifiedBy, r.ModifiedUserID
	tx.state.records[r.ID] = existing
	return nil
}

func (tx *transaction) InvalidateRecords(ids []int64, audit domain.Audit) error {
	for _, id := range ids {
		r, ok := tx.state.records[id]
		if !ok || !r.IsValid {
			continue
		}
		r.IsValid = false
		r.ModifiedAt = tx.modified(audit)
		r.ModifiedBy, r.ModifiedUserID = audit.ModifiedBy, audit.ModifiedUserID
		tx.state.records[id] = r
	}
	return nil
}

func (tx *transaction) InsertValues(values []domain.Value) ([]domain.Value, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]domain.Value, len(values))
	for i, v := range values {
		v = cloneValue(v)
		v.ID = tx.store.ids.Next()
		v.Scope = tx.scope
		v.IsValid = true
		if v.CreatedAt.IsZero() {
			v.CreatedAt = tx.now
		}
		if v.ModifiedAt.IsZero() {
			v.ModifiedAt = v.CreatedAt
		}
		tx.state.values[v.ID] = v
		out[i] = cloneValue(v)
	}
	return out, nil
}

func (tx *transaction) UpdateValues(values []domain.Value) error {
	for _, v := range values {
		existing, ok := tx.state.values[v.ID]
		if !ok || !existing.IsValid {
			return notFound(domain.EntityValue, v.ID)
		}
		v = cloneValue(v)
		v.Scope = tx.scope
		v.IsValid = true
		v.RecordID = existing.RecordID
		v.CreatedAt = existing.CreatedAt
		if v.ModifiedAt.IsZero() {
			v.ModifiedAt = tx.now
		}
		tx.state.values[v.ID] = v
	}
	return nil
}

func (tx *transaction) InvalidateValuesByRecordIDs(ids []int64) error {
	targets := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		targets[id] = struct{}{}
	}
	for id, v := range tx.state.values {
		if _, ok := targets[v.RecordID]; ok && v.IsValid {
			v.IsValid = false
			v.ModifiedAt = tx.now
			tx.state.values[id] = v
		}
	}
	return nil
}
