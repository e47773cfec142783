package service

import "github.com/google/uuid"

// OrderRef identifies an order either by its persisted id or by a
// client-generated placeholder token from an optimistic UI flow. The
// lifecycle manager pattern-matches on the variant instead of sniffing
// identifier strings.
type OrderRef struct {
	id    uuid.UUID
	token string
}

// ParseOrderRef classifies an identifier. A valid UUID is a persisted
// reference; anything else is a not-yet-persisted placeholder.
func ParseOrderRef(s string) OrderRef {
	if id, err := uuid.Parse(s); err == nil {
		return OrderRef{id: id}
	}
	return OrderRef{token: s}
}

// PersistedRef wraps a known order id.
func PersistedRef(id uuid.UUID) OrderRef {
	return OrderRef{id: id}
}

// Persisted reports whether the ref names a stored order.
func (r OrderRef) Persisted() bool {
	return r.token == ""
}

// ID returns the persisted order id; only meaningful when Persisted.
func (r OrderRef) ID() uuid.UUID {
	return r.id
}

// Token returns the placeholder token; only meaningful when not
// Persisted.
func (r OrderRef) Token() string {
	return r.token
}

// String returns whichever identifier the ref carries.
func (r OrderRef) String() string {
	if r.Persisted() {
		return r.id.String()
	}
	return r.token
}
