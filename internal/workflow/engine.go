package workflow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/towops/impound/internal/config"
	"github.com/towops/impound/internal/models"
	"github.com/towops/impound/internal/notify"
	"github.com/towops/impound/internal/stage"
	"github.com/towops/impound/internal/store"
)

// Engine validates and executes stage transitions and derives due actions
// against live store data.
type Engine struct {
	store      *store.Store
	dispatcher *notify.Dispatcher
	cfg        *config.Config
}

// Opts holds parameters for creating an Engine.
type Opts struct {
	Store      *store.Store
	Dispatcher *notify.Dispatcher
	Config     *config.Config
}

// New creates an Engine.
func New(opts Opts) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("workflow: store is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("workflow: dispatcher is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	return &Engine{store: opts.Store, dispatcher: opts.Dispatcher, cfg: cfg}, nil
}

// CurrentStage maps a vehicle's raw status to its lifecycle stage.
func (e *Engine) CurrentStage(v *models.Vehicle) stage.Stage {
	return stage.FromStatus(v.Status)
}

// VehicleActions derives the due actions for one vehicle.
func (e *Engine) VehicleActions(ctx context.Context, callNumber string) ([]Action, error) {
	v, err := e.store.GetVehicle(ctx, callNumber)
	if err != nil {
		return nil, err
	}
	open, err := e.store.OpenHistoryEntry(ctx, callNumber)
	if err != nil {
		return nil, err
	}
	return DueActions(v, open, time.Now(), e.cfg.Thresholds), nil
}

// AllDueActions derives and sorts due actions across every active vehicle,
// for dashboards.
func (e *Engine) AllDueActions(ctx context.Context) ([]Action, error) {
	vehicles, err := e.store.ActiveVehicles(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var actions []Action
	for i := range vehicles {
		v := &vehicles[i]
		open, err := e.store.OpenHistoryEntry(ctx, v.CallNumber)
		if err != nil {
			return nil, err
		}
		actions = append(actions, DueActions(v, open, now, e.cfg.Thresholds)...)
	}
	SortActions(actions)
	return actions, nil
}

// AdvanceStage moves a vehicle to a new stage. Returns (false, nil) when the
// transition is rejected (invalid successor, failed eligibility) or lost an
// optimistic race; the caller re-reads and recomputes rather than retrying
// blindly. Errors are reserved for store failures.
func (e *Engine) AdvanceStage(ctx context.Context, callNumber string, to stage.Stage, note, actor, sweepID string) (bool, error) {
	v, err := e.store.GetVehicle(ctx, callNumber)
	if err != nil {
		return false, err
	}

	from := stage.FromStatus(v.Status)
	if !stage.CanTransition(from, to) {
		log.Printf("workflow: rejected transition %s: %s -> %s (valid: %v)",
			callNumber, from, to, stage.ValidSuccessors(from))
		return false, nil
	}

	if err := checkEligibility(v, to); err != nil {
		log.Printf("workflow: %s not eligible for %s: %v", callNumber, to, err)
		// Flag for human review; never silently advance an inconsistent record.
		if auditErr := e.store.AppendAudit(ctx, callNumber, "eligibility_failed",
			fmt.Sprintf("advance to %s blocked: %v", to, err), actor, sweepID); auditErr != nil {
			return false, auditErr
		}
		return false, nil
	}

	committed, err := e.store.CommitTransition(ctx, callNumber, from, to, note, actor, sweepID)
	if err != nil {
		return false, err
	}
	if !committed {
		log.Printf("workflow: transition conflict for %s (%s -> %s); will recompute", callNumber, from, to)
	}
	return committed, nil
}

// checkEligibility enforces the registry's entry requirements that can be
// verified from the vehicle projection alone.
func checkEligibility(v *models.Vehicle, to stage.Stage) error {
	req := stage.Eligibility(to)
	for _, field := range req.RequiredFields {
		switch field {
		case "call_number":
			if v.CallNumber == "" {
				return fmt.Errorf("missing call_number")
			}
		case "impounded_at":
			if v.ImpoundedAt.IsZero() {
				return fmt.Errorf("missing impounded_at")
			}
		case "vin":
			if v.VIN == "" {
				return fmt.Errorf("missing vin")
			}
		}
	}
	if req.Check != nil {
		if err := req.Check(v.OwnerKnown, v.ImpoundedAt, time.Now()); err != nil {
			return err
		}
	}
	return nil
}
