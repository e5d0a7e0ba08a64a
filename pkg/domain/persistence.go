package domain

import "context"

// DefaultPageLimit bounds record queries that do not specify a limit.
const DefaultPageLimit = 100

// Page selects a window of query results.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// Normalize fills in the default limit and clamps negative offsets.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// FieldResolver resolves a field name to its declared data type.
type FieldResolver interface {
	ResolveFieldType(name string) (DataType, bool)
}

// FieldNamer is implemented by resolvers that match names case-insensitively
// and know the stored spelling. Value rows carry that spelling, so compilers
// must guard on it rather than on the caller's.
type FieldNamer interface {
	CanonicalFieldName(name string) (string, bool)
}

// TransactionView exposes the read operations available inside a scoped
// transaction. Every call is restricted to the transaction's tenant/app
// scope and to valid rows.
type TransactionView interface {
	Scope() Scope
	ListFields() ([]FieldDefinition, error)
	ListGroups() ([]FieldGroup, error)
	GetRecord(id int64) (Record, bool, error)
	GetRecords(ids []int64) ([]Record, error)
	ValuesByRecordID(id int64) ([]Value, error)
	ValuesByRecordIDs(ids []int64) ([]Value, error)
	// QueryRecordIDs returns the ids of valid records matching cond, newest first.
	QueryRecordIDs(cond Condition, resolver FieldResolver, page Page) ([]int64, error)
}

// Transaction exposes the mutations a persistence implementation must
// support within an atomic scope.
type Transaction interface {
	TransactionView
	InsertField(FieldDefinition) (FieldDefinition, error)
	UpdateField(FieldDefinition) error
	UpdateFieldSorts(sorts map[int64]int) error
	InsertGroup(FieldGroup) (FieldGroup, error)
	UpdateGroup(FieldGroup) error
	InvalidateGroup(id int64, audit Audit) error
	InsertRecord(Record) (Record, error)
	UpdateRecord(Record) error
	InvalidateRecords(ids []int64, audit Audit) error
	// InsertValues assigns a new id to every value and stamps the scope. It
	// does not deduplicate against existing rows.
	InsertValues(values []Value) ([]Value, error)
	// UpdateValues rewrites every physical column of the given rows.
	UpdateValues(values []Value) error
	InvalidateValuesByRecordIDs(ids []int64) error
}

// PersistentStore is the abstraction over durable backends. Both entry points
// read the tenant/app scope from ctx and fail with ErrMissingScope without one.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	Close() error
}
