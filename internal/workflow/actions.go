// Package workflow computes due actions for impounded vehicles, validates and
// executes stage transitions, and runs the automated sweep.
package workflow

import (
	"fmt"
	"sort"
	"time"

	"github.com/towops/impound/internal/config"
	"github.com/towops/impound/internal/models"
	"github.com/towops/impound/internal/stage"
)

// Priority orders actions across vehicles. Higher sorts first.
type Priority int

const (
	Low Priority = iota
	Medium
	High
	Urgent
)

func (p Priority) String() string {
	switch p {
	case Urgent:
		return "urgent"
	case High:
		return "high"
	case Medium:
		return "medium"
	default:
		return "low"
	}
}

// Action types.
const (
	ActionSendNotice      = "send_notice"
	ActionPendingNotice   = "pending_notice"
	ActionApproveDisp     = "approve_disposition"
	ActionPendingResponse = "pending_response"
	ActionSchedulePickup  = "schedule_pickup"
	ActionConfirmPickup   = "confirm_pickup"
	ActionCompleteRemoval = "complete_removal"
)

// Action is a derived recommendation. Computed fresh on every query, never
// stored.
type Action struct {
	Type        string        `json:"type"`
	Priority    Priority      `json:"-"`
	PriorityStr string        `json:"priority"`
	DueAt       time.Time     `json:"due_at"`
	CallNumber  string        `json:"call_number"`
	Stage       stage.Stage   `json:"stage"`
	Description string        `json:"description"`
	Automatic   bool          `json:"automatic"`
}

// Overdue reports whether the action's due date has passed.
func (a Action) Overdue(now time.Time) bool {
	return now.After(a.DueAt)
}

// DueActions derives the pending action for a vehicle. Pure: output depends
// only on the vehicle's stage, the open history entry, the thresholds, and
// now. At most one action is returned per call (the one matching the current
// stage); terminal vehicles yield none.
func DueActions(v *models.Vehicle, open *models.StageHistoryEntry, now time.Time, th config.ThresholdConfig) []Action {
	st := stage.FromStatus(v.Status)
	if st.Terminal() {
		return nil
	}

	entered := v.ImpoundedAt
	if open != nil {
		entered = open.EnteredAt
	}
	daysInStage := int(now.Sub(entered).Hours() / 24)

	switch st {
	case stage.InitialHold:
		noticeDays := th.NoticeDays
		if !v.OwnerKnown {
			noticeDays = th.UnknownOwnerNoticeDays
		}
		dueAt := v.ImpoundedAt.AddDate(0, 0, noticeDays)

		if daysInStage >= noticeDays {
			prio := High
			if daysInStage > noticeDays {
				prio = Urgent
			}
			desc := fmt.Sprintf("Send legal notice (%d days in hold)", daysInStage)
			if v.NoticeSentAt != nil {
				// Notice went out but the stage advance lost its race; keep
				// the action due so the next sweep completes the transition.
				desc = fmt.Sprintf("Notice sent %s; advance to notice_sent pending",
					v.NoticeSentAt.Format("2006-01-02"))
			}
			return []Action{mk(v, st, ActionSendNotice, prio, dueAt, desc, true)}
		}
		return []Action{mk(v, stage.PendingNotification, ActionPendingNotice, Medium, dueAt,
			fmt.Sprintf("Notice due %s", dueAt.Format("2006-01-02")), false)}

	case stage.NoticeSent:
		deadline := entered.AddDate(0, 0, th.ResponseDays)
		if !now.Before(deadline) {
			return []Action{mk(v, st, ActionApproveDisp, High, deadline,
				"Response window elapsed; decide auction, scrap, or release", false)}
		}
		return []Action{mk(v, st, ActionPendingResponse, Low, deadline,
			fmt.Sprintf("Owner response window open until %s", deadline.Format("2006-01-02")), false)}

	case stage.ApprovedAuction:
		dueAt := entered.AddDate(0, 0, th.AuctionWindowDays)
		return []Action{mk(v, st, ActionSchedulePickup, Medium, dueAt,
			fmt.Sprintf("Schedule auction pickup by %s", dueAt.Format("2006-01-02")), false)}

	case stage.ApprovedScrap:
		dueAt := entered.AddDate(0, 0, th.ScrapWindowDays)
		return []Action{mk(v, st, ActionSchedulePickup, Medium, dueAt,
			fmt.Sprintf("Schedule scrap pickup by %s", dueAt.Format("2006-01-02")), false)}

	case stage.ScheduledPickup:
		if v.PickupAt == nil {
			// Stage claims a pickup is scheduled but no date is on record.
			// Surface for human review rather than guessing.
			return []Action{mk(v, st, ActionConfirmPickup, High, entered,
				"Pickup stage with no scheduled date; needs review", false)}
		}
		if v.PickupAt.After(now) {
			return nil
		}
		return []Action{mk(v, st, ActionConfirmPickup, High, *v.PickupAt,
			"Confirm pickup completed in the field", false)}

	case stage.PendingRemoval:
		dueAt := entered.AddDate(0, 0, th.RemovalWindowDays)
		prio := Medium
		if now.After(dueAt) {
			prio = High
		}
		return []Action{mk(v, st, ActionCompleteRemoval, prio, dueAt,
			fmt.Sprintf("Confirm removal from lot by %s", dueAt.Format("2006-01-02")), false)}
	}

	return nil
}

func mk(v *models.Vehicle, st stage.Stage, typ string, prio Priority, dueAt time.Time, desc string, automatic bool) Action {
	return Action{
		Type:        typ,
		Priority:    prio,
		PriorityStr: prio.String(),
		DueAt:       dueAt,
		CallNumber:  v.CallNumber,
		Stage:       st,
		Description: desc,
		Automatic:   automatic,
	}
}

// SortActions orders actions for cross-vehicle display: priority descending,
// then due date ascending.
func SortActions(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Priority != actions[j].Priority {
			return actions[i].Priority > actions[j].Priority
		}
		return actions[i].DueAt.Before(actions[j].DueAt)
	})
}
