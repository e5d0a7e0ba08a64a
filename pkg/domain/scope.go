package domain

import (
	"context"
	"strings"
	"time"
)

// DefaultActorName is stamped on audit columns when no actor is attached to the context.
const DefaultActorName = "SYSTEM"

// Scope is the opaque tenant/app pair every stored row is partitioned by.
type Scope struct {
	TenantID string `json:"tenantId"`
	AppCode  string `json:"appCode"`
}

// Valid reports whether both parts of the scope are set.
func (s Scope) Valid() bool {
	return strings.TrimSpace(s.TenantID) != "" && strings.TrimSpace(s.AppCode) != ""
}

// Key returns a stable cache key for the scope.
func (s Scope) Key() string {
	return s.TenantID + "\x00" + s.AppCode
}

// Actor identifies who performs a mutation for audit stamping.
type Actor struct {
	UserID   int64
	UserName string
}

type scopeKey struct{}

type actorKey struct{}

// WithScope attaches a tenant/app scope to the context.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the scope attached to ctx. A missing or incomplete scope is
// reported as ErrMissingScope; no store operation runs unscoped.
func ScopeFrom(ctx context.Context) (Scope, error) {
	scope, ok := ctx.Value(scopeKey{}).(Scope)
	if !ok || !scope.Valid() {
		return Scope{}, ErrMissingScope
	}
	return scope, nil
}

// WithActor attaches the acting user to the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the acting user, defaulting to the SYSTEM actor.
func ActorFrom(ctx context.Context) Actor {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || actor.UserName == "" {
		if ok {
			return Actor{UserID: actor.UserID, UserName: DefaultActorName}
		}
		return Actor{UserName: DefaultActorName}
	}
	return actor
}

// Stamp returns a fresh audit quad created and modified by the actor at now.
func (a Actor) Stamp(now time.Time) Audit {
	return Audit{
		CreatedAt:      now,
		CreatedBy:      a.UserName,
		CreatedUserID:  a.UserID,
		ModifiedAt:     now,
		ModifiedBy:     a.UserName,
		ModifiedUserID: a.UserID,
	}
}

// Touch records the actor as the last modifier of audit.
func (a Actor) Touch(audit *Audit, now time.Time) {
	audit.ModifiedAt = now
	audit.ModifiedBy = a.UserName
	audit.ModifiedUserID = a.UserID
}
