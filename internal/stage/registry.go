package stage

import (
	"fmt"
	"time"
)

// successors is the canonical transition table. Disposed and Released are
// terminal. PendingNotification is derived-only and deliberately absent.
var successors = map[Stage][]Stage{
	InitialHold:     {NoticeSent, Released, Disposed},
	NoticeSent:      {ApprovedAuction, ApprovedScrap, Released, Disposed},
	ApprovedAuction: {ScheduledPickup, Released, Disposed},
	ApprovedScrap:   {ScheduledPickup, Released, Disposed},
	ScheduledPickup: {PendingRemoval, Released, Disposed},
	PendingRemoval:  {Disposed},
	Disposed:        {},
	Released:        {},
}

// Requirements describes what a vehicle must satisfy before it may enter a
// stage.
type Requirements struct {
	RequiredFields    []string
	MinDaysInPrior    int
	RequiredArtifacts []string
	Check             func(ownerKnown bool, impoundedAt time.Time, now time.Time) error
}

var eligibility = map[Stage]Requirements{
	InitialHold: {RequiredFields: []string{"call_number", "impounded_at"}},
	NoticeSent: {
		RequiredFields:    []string{"call_number", "impounded_at"},
		MinDaysInPrior:    7,
		RequiredArtifacts: []string{"notice_letter"},
	},
	ApprovedAuction: {
		RequiredFields:    []string{"vin"},
		MinDaysInPrior:    7,
		RequiredArtifacts: []string{"disposition_approval"},
	},
	ApprovedScrap: {
		RequiredFields:    []string{"vin"},
		MinDaysInPrior:    7,
		RequiredArtifacts: []string{"disposition_approval"},
	},
	ScheduledPickup: {RequiredFields: []string{"call_number"}},
	PendingRemoval:  {RequiredFields: []string{"call_number"}},
	Disposed:        {RequiredArtifacts: []string{"disposition_record"}},
	Released:        {RequiredArtifacts: []string{"release_form"}},
}

// ValidSuccessors returns the stages reachable from s. Panics on an unknown
// stage: the table is static, so a miss is a programming error.
func ValidSuccessors(s Stage) []Stage {
	next, ok := successors[s]
	if !ok {
		panic(fmt.Sprintf("stage: unknown stage %q", s))
	}
	out := make([]Stage, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from → to is a valid transition.
func CanTransition(from, to Stage) bool {
	for _, s := range ValidSuccessors(from) {
		if s == to {
			return true
		}
	}
	return false
}

// Eligibility returns the entry requirements for s. Panics on an unknown
// stage, same as ValidSuccessors.
func Eligibility(s Stage) Requirements {
	req, ok := eligibility[s]
	if !ok {
		panic(fmt.Sprintf("stage: unknown stage %q", s))
	}
	return req
}
