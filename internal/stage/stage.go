// Package stage defines the fixed custody stages and the static registry of
// valid transitions and per-stage eligibility requirements.
package stage

import "strings"

// Stage is one phase of a vehicle's custody lifecycle.
type Stage string

const (
	InitialHold Stage = "initial_hold"
	// PendingNotification is a derived sub-state of InitialHold used only for
	// action display. It is never stored and has no transitions.
	PendingNotification Stage = "pending_notification"
	NoticeSent          Stage = "notice_sent"
	ApprovedAuction     Stage = "approved_auction"
	ApprovedScrap       Stage = "approved_scrap"
	ScheduledPickup     Stage = "scheduled_pickup"
	PendingRemoval      Stage = "pending_removal"
	Disposed            Stage = "disposed"
	// Released is the terminal outcome for vehicles returned to their owner.
	Released Stage = "released"
)

// All lists every storable stage in lifecycle order.
func All() []Stage {
	return []Stage{
		InitialHold, NoticeSent, ApprovedAuction, ApprovedScrap,
		ScheduledPickup, PendingRemoval, Disposed, Released,
	}
}

// Terminal reports whether the stage has no outgoing transitions.
func (s Stage) Terminal() bool {
	return s == Disposed || s == Released
}

func (s Stage) String() string { return string(s) }

// statusAliases maps raw status strings seen in imported records to stages.
// Keys are normalized with normalizeStatus.
var statusAliases = map[string]Stage{
	"initial_hold":      InitialHold,
	"hold":              InitialHold,
	"in_impound":        InitialHold,
	"impounded":         InitialHold,
	"notice_sent":       NoticeSent,
	"noticed":           NoticeSent,
	"approved_auction":  ApprovedAuction,
	"auction":           ApprovedAuction,
	"approved_scrap":    ApprovedScrap,
	"scrap":             ApprovedScrap,
	"scheduled_pickup":  ScheduledPickup,
	"pickup_scheduled":  ScheduledPickup,
	"pending_removal":   PendingRemoval,
	"awaiting_removal":  PendingRemoval,
	"disposed":          Disposed,
	"released":          Released,
	"released_to_owner": Released,
}

// FromStatus maps a vehicle's raw status string to a Stage. Unknown or empty
// statuses default to InitialHold: a record we cannot place is treated as
// still held, never as further along.
func FromStatus(raw string) Stage {
	if s, ok := statusAliases[normalizeStatus(raw)]; ok {
		return s
	}
	return InitialHold
}

// Known reports whether raw maps to a stage without the InitialHold fallback.
func Known(raw string) bool {
	_, ok := statusAliases[normalizeStatus(raw)]
	return ok
}

func normalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}
