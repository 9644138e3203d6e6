// Package variable provides customer/tag-scoped context variables with
// freshness policies and staged, turn-atomic writes.
package variable

import (
	"encoding/json"
	"time"
)

// Scope determines how a variable's values are keyed.
type Scope string

const (
	// ScopeCustomer keys values by customer ID.
	ScopeCustomer Scope = "customer"

	// ScopeTag keys values by tag, shared across customers carrying it.
	ScopeTag Scope = "tag"
)

// Definition declares a context variable. Declared once per agent;
// per-customer values are set and refreshed independently.
type Definition struct {
	// Name is unique per agent.
	Name string `json:"name"`

	// Description explains what the value holds.
	Description string `json:"description,omitempty"`

	// Scope determines the value key.
	Scope Scope `json:"scope"`

	// MaxAge is the freshness policy: a value older than MaxAge is stale
	// and triggers a refresh. Zero means never stale.
	MaxAge time.Duration `json:"max_age,omitempty"`

	// Refresher names the tool invoked to refresh a stale value.
	Refresher string `json:"refresher,omitempty"`
}

// Value is a stored variable value for one scope key.
type Value struct {
	// Name is the variable name.
	Name string `json:"name"`

	// ScopeKey is the customer ID or tag the value belongs to.
	ScopeKey string `json:"scope_key"`

	// Data is the value payload.
	Data json.RawMessage `json:"data"`

	// LastRefreshed is when the value was last written.
	LastRefreshed time.Time `json:"last_refreshed"`
}

// Stale reports whether the value is older than the definition's freshness
// policy at the given instant.
func (d Definition) Stale(v Value, now time.Time) bool {
	if d.MaxAge <= 0 {
		return false
	}
	return now.Sub(v.LastRefreshed) > d.MaxAge
}
