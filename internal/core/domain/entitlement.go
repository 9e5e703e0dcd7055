package domain

import (
	"errors"
	"time"
)

var ErrInvalidVerificationKey = errors.New("invalid entitlement verification key")

// Entitlement is set only by the trusted verification step.
type Entitlement struct {
	IsPremium bool       `json:"is_premium"`
	Expiry    *time.Time `json:"expiry,omitempty"`
}

// IsValid reports whether the entitlement is premium and unexpired at now.
func (e Entitlement) IsValid(now time.Time) bool {
	return e.IsPremium && e.Expiry != nil && e.Expiry.After(now)
}

func (e Entitlement) Clone() Entitlement {
	c := e
	if e.Expiry != nil {
		t := *e.Expiry
		c.Expiry = &t
	}
	return c
}
