package workflow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/towops/impound/internal/notify"
	"github.com/towops/impound/internal/stage"
)

// SweepActor is the audit actor recorded for automated transitions.
const SweepActor = "system:sweep"

// SweepResult summarizes one automated pass over the active vehicles.
type SweepResult struct {
	SweepID   string   `json:"sweep_id"`
	Processed int      `json:"processed"`
	Advanced  int      `json:"advanced"`
	Errors    []string `json:"errors,omitempty"`
}

// RunAutomatedSweep iterates all active vehicles and executes the actions
// flagged automatic-eligible (currently: sending the statutory notice and
// advancing to notice_sent). Idempotent: re-running on an already-advanced
// vehicle derives no further automatic action. One failing vehicle never
// aborts the sweep; its error is accumulated and the pass continues. On
// cancellation the current vehicle is finished and the sweep stops.
func (e *Engine) RunAutomatedSweep(ctx context.Context) (SweepResult, error) {
	result := SweepResult{SweepID: uuid.NewString()}

	vehicles, err := e.store.ActiveVehicles(ctx)
	if err != nil {
		return result, err
	}

	now := time.Now()
	for i := range vehicles {
		if ctx.Err() != nil {
			log.Printf("workflow: sweep %s cancelled after %d vehicles", result.SweepID, result.Processed)
			break
		}

		v := &vehicles[i]
		result.Processed++

		open, err := e.store.OpenHistoryEntry(ctx, v.CallNumber)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", v.CallNumber, err))
			continue
		}

		for _, action := range DueActions(v, open, now, e.cfg.Thresholds) {
			if !action.Automatic {
				continue
			}
			advanced, err := e.executeAutomatic(ctx, v.CallNumber, action, result.SweepID)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", v.CallNumber, err))
				continue
			}
			if advanced {
				result.Advanced++
			}
		}
	}

	return result, nil
}

// executeAutomatic performs one automatic-eligible action. Re-reads the
// vehicle so a concurrent manual edit between derivation and execution is
// respected.
func (e *Engine) executeAutomatic(ctx context.Context, callNumber string, action Action, sweepID string) (bool, error) {
	if action.Type != ActionSendNotice {
		return false, fmt.Errorf("action %s is not automatable", action.Type)
	}

	v, err := e.store.GetVehicle(ctx, callNumber)
	if err != nil {
		return false, err
	}
	if stage.FromStatus(v.Status) != stage.InitialHold {
		// A concurrent actor already moved it; nothing to do.
		return false, nil
	}

	if v.NoticeSentAt == nil {
		recipient := v.OwnerName
		if recipient == "" {
			recipient = e.cfg.Notify.OpsRecipient
		}
		if _, err := e.dispatcher.Enqueue(ctx, callNumber, notify.TypeSevenDayNotice, recipient); err != nil {
			return false, err
		}
		now := time.Now()
		if err := e.store.MarkNoticeSent(ctx, callNumber, now); err != nil {
			return false, err
		}
		if err := e.store.AppendAudit(ctx, callNumber, "notice_enqueued",
			fmt.Sprintf("%s queued for %s", notify.TypeSevenDayNotice, recipient),
			SweepActor, sweepID); err != nil {
			return false, err
		}
	}

	return e.AdvanceStage(ctx, callNumber, stage.NoticeSent, "statutory notice sent", SweepActor, sweepID)
}

// BatchResult summarizes a morning batch run.
type BatchResult struct {
	Sweep     SweepResult `json:"sweep"`
	Escalated int         `json:"escalated"`
	Errors    []string    `json:"errors,omitempty"`
}

// MorningBatch is the daily superset sweep: it runs the automated sweep, then
// raises escalations for every action overdue past the grace threshold. The
// dispatcher's pending-dedup keeps repeated batches from stacking duplicates.
func (e *Engine) MorningBatch(ctx context.Context) (BatchResult, error) {
	var batch BatchResult

	sweep, err := e.RunAutomatedSweep(ctx)
	batch.Sweep = sweep
	if err != nil {
		return batch, err
	}

	vehicles, err := e.store.ActiveVehicles(ctx)
	if err != nil {
		return batch, err
	}

	now := time.Now()
	grace := time.Duration(e.cfg.Thresholds.OverdueGraceDays) * 24 * time.Hour

	for i := range vehicles {
		if ctx.Err() != nil {
			break
		}
		v := &vehicles[i]

		open, err := e.store.OpenHistoryEntry(ctx, v.CallNumber)
		if err != nil {
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %v", v.CallNumber, err))
			continue
		}

		for _, action := range DueActions(v, open, now, e.cfg.Thresholds) {
			if now.Sub(action.DueAt) <= grace {
				continue
			}
			if _, err := e.dispatcher.Enqueue(ctx, v.CallNumber, notify.TypeOverdueEscalation, e.cfg.Notify.OpsRecipient); err != nil {
				batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %v", v.CallNumber, err))
				continue
			}
			if err := e.store.AppendAudit(ctx, v.CallNumber, "overdue_escalation",
				fmt.Sprintf("%s overdue since %s", action.Type, action.DueAt.Format("2006-01-02")),
				SweepActor, sweep.SweepID); err != nil {
				batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %v", v.CallNumber, err))
				continue
			}
			batch.Escalated++
		}
	}

	return batch, nil
}
