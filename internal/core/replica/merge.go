package replica

import (
	"time"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/engine"
)

type Action string

const (
	ActionFirstWrite          Action = "first_write"
	ActionAdopt               Action = "adopt"
	ActionEntitlementOverride Action = "entitlement_override"
	ActionUpload              Action = "upload"
	ActionNone                Action = "none"
)

// Decision is the outcome of a three-way merge. Result is the state the local
// replica must hold afterwards; Push reports whether Result must be uploaded.
type Decision struct {
	Action Action
	Result *domain.Progress
	Push   bool
}

// Merge resolves a local replica against the remote image by latest
// LastUpdated, with one exception: a valid remote entitlement is never
// revoked by a newer local replica that lacks it.
//
// remote is nil when no remote record exists.
func Merge(local *domain.Progress, remote *domain.RemoteSnapshot, now time.Time) Decision {
	if remote == nil {
		return Decision{Action: ActionFirstWrite, Result: local.Clone(), Push: true}
	}

	switch {
	case remote.Profile.LastUpdated > local.LastUpdated:
		return Decision{Action: ActionAdopt, Result: remote.ToProgress()}

	case local.LastUpdated > remote.Profile.LastUpdated:
		remoteEnt := remote.Profile.Entitlement
		if remoteEnt.IsValid(now) && !local.Entitlement.IsValid(now) {
			merged := local.Clone()
			engine.ApplyVerifiedEntitlement(merged, remoteEnt, now)
			merged.HasEverBeenPremium = merged.HasEverBeenPremium || remote.Profile.HasEverBeenPremium
			merged.LastUpdated = max(local.LastUpdated, remote.Profile.LastUpdated) + 1
			return Decision{Action: ActionEntitlementOverride, Result: merged, Push: true}
		}
		return Decision{Action: ActionUpload, Result: local.Clone(), Push: true}
	}

	return Decision{Action: ActionNone, Result: local.Clone()}
}
