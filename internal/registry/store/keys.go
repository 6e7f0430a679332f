package store

import (
	"strconv"

	"attestry/pkg/domain"
)

// Scope selects which liveness window a key is refreshed to on write.
type Scope int

const (
	// ScopePersistent covers per-entity records: profiles, claims and indices.
	ScopePersistent Scope = iota
	// ScopeInstance covers registry-wide values such as the claim id counter. They never lapse.
	ScopeInstance
)

func (s Scope) String() string {
	if s == ScopeInstance {
		return "instance"
	}
	return "persistent"
}

// Key is a typed storage key. Distinct constructors never produce colliding names.
type Key struct {
	name  string
	scope Scope
}

func (k Key) String() string { return k.name }

func (k Key) Scope() Scope { return k.scope }

const (
	profilePrefix          = "profile:"
	claimPrefix            = "claim:"
	claimsByReceiverPrefix = "claims:receiver:"
	claimsByIssuerPrefix   = "claims:issuer:"
	nextClaimIDName        = "instance:next_claim_id"
)

func ProfileKey(addr domain.Address) Key {
	return Key{name: profilePrefix + addr.String(), scope: ScopePersistent}
}

func ClaimKey(id uint64) Key {
	return Key{name: claimPrefix + strconv.FormatUint(id, 10), scope: ScopePersistent}
}

func ClaimsByReceiverKey(addr domain.Address) Key {
	return Key{name: claimsByReceiverPrefix + addr.String(), scope: ScopePersistent}
}

func ClaimsByIssuerKey(addr domain.Address) Key {
	return Key{name: claimsByIssuerPrefix + addr.String(), scope: ScopePersistent}
}

func NextClaimIDKey() Key {
	return Key{name: nextClaimIDName, scope: ScopeInstance}
}
