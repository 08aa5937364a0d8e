package scholarship

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action enumerates the operations an approver may request.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionEditDays Action = "edit_days"
)

// DecisionInput is everything the engine needs to evaluate one action.
// DeductedDays is provisional: it is validated on every call but only
// committed to the record by a faculty approval.
type DecisionInput struct {
	Role         Role
	Action       Action
	ActorID      int64
	Comment      string
	DeductedDays *int
	Now          time.Time
}

// Decision is the computed transition. Record and Stage are snapshots; the
// caller persists them. NextStage, when set, is the newly activated seat.
type Decision struct {
	Record    Record
	Stage     Stage
	NextStage *Stage
}

// ComputeFinalAmount returns totalPay - payPerDay*deductedDays rounded to
// two decimals. The computation is rounding-stable: recomputing on the
// result's inputs yields the same amount.
func ComputeFinalAmount(rec Record) (decimal.Decimal, error) {
	if rec.DeductedDays < 0 || rec.DeductedDays > rec.Days {
		return decimal.Decimal{}, ErrInvalidDeduction
	}
	amount := rec.TotalPay.Sub(rec.PayPerDay.Mul(decimal.NewFromInt(int64(rec.DeductedDays)))).Round(2)
	if amount.IsNegative() {
		return decimal.Decimal{}, ErrInvalidDeduction
	}
	return amount, nil
}

// Recalc returns a snapshot of rec with the deduction applied and the final
// amount recomputed. rec itself is never mutated.
func Recalc(rec Record, deductedDays int) (Record, error) {
	next := rec
	next.DeductedDays = deductedDays
	amount, err := ComputeFinalAmount(next)
	if err != nil {
		return Record{}, err
	}
	next.FinalAmount = amount
	return next, nil
}

// ActiveStage returns the stage currently awaiting a decision, or nil when
// the record has no open stage (unreleased or terminal).
func ActiveStage(stages []Stage) *Stage {
	for i := range stages {
		if stages[i].Status == StagePending {
			return &stages[i]
		}
	}
	return nil
}

// PermittedActions lists what a role could do to the record right now.
// Used by view layers to gate controls; Evaluate remains the authority.
func PermittedActions(rec Record, stages []Stage, role Role) []Action {
	if rec.Status.Terminal() || !rec.Released {
		return nil
	}
	active := ActiveStage(stages)
	if active == nil || active.Role.Rank() != role.Rank() || role.Rank() == 0 {
		return nil
	}
	actions := []Action{ActionApprove, ActionReject}
	if role == RoleFaculty {
		actions = append(actions, ActionEditDays)
	}
	return actions
}

// Evaluate applies one decision to a record and its stage ledger. It is a
// pure function over its inputs: the returned snapshots describe the
// transition and nothing is mutated in place.
//
// Sequencing invariant: a stage may only be decided when every lower rank
// is approved, which the lazy ledger guarantees because exactly one stage
// is PENDING while a released record is in review. A rejection anywhere
// collapses both the stage and the record to REJECTED.
func Evaluate(rec Record, stages []Stage, in DecisionInput) (Decision, error) {
	if rec.Status.Terminal() {
		return Decision{}, ErrTerminalState
	}
	if !rec.Released {
		return Decision{}, ErrNotReleased
	}
	rank := in.Role.Rank()
	if rank == 0 {
		return Decision{}, ErrUnauthorizedAction
	}

	active := ActiveStage(stages)
	if active == nil {
		return Decision{}, ErrNotFound
	}

	if in.Action == ActionEditDays {
		return evaluateEditDays(rec, active, in)
	}

	if active.Role.Rank() != rank {
		return Decision{}, ErrUnauthorizedAction
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	stage := *active
	stage.Role = in.Role // records which of the equal-rank roles decided
	stage.Comment = in.Comment
	stage.ActorID = in.ActorID
	stage.UpdatedAt = now

	switch in.Action {
	case ActionReject:
		stage.Status = StageRejected
		rec.Status = RecordRejected
		rec.UpdatedAt = now
		return Decision{Record: rec, Stage: stage}, nil
	case ActionApprove:
		if in.DeductedDays != nil {
			if in.Role != RoleFaculty {
				return Decision{}, ErrStageLocked
			}
			updated, err := Recalc(rec, *in.DeductedDays)
			if err != nil {
				return Decision{}, err
			}
			rec = updated
		}
		stage.Status = StageApproved
		rec.UpdatedAt = now
		if rank >= finalRank {
			rec.Status = RecordApproved
			return Decision{Record: rec, Stage: stage}, nil
		}
		next := Stage{
			RecordID:  rec.ID,
			Role:      nextRole(rank),
			Status:    StagePending,
			UpdatedAt: now,
		}
		return Decision{Record: rec, Stage: stage, NextStage: &next}, nil
	default:
		return Decision{}, ErrUnauthorizedAction
	}
}

// evaluateEditDays validates a provisional deduction. Only the faculty role
// may edit days, and only while its own stage is still open; the preview is
// returned without being committed.
func evaluateEditDays(rec Record, active *Stage, in DecisionInput) (Decision, error) {
	if in.Role != RoleFaculty {
		return Decision{}, ErrUnauthorizedAction
	}
	if active.Role != RoleFaculty {
		return Decision{}, ErrStageLocked
	}
	if in.DeductedDays == nil {
		return Decision{}, ErrInvalidDeduction
	}
	preview, err := Recalc(rec, *in.DeductedDays)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Record: preview, Stage: *active}, nil
}

// Release moves a dormant PENDING record into the review chain. The caller
// must have verified ownership and the one-in-flight rule; Release itself
// only enforces record-local state.
func Release(rec Record, now time.Time) (Record, Stage, error) {
	if rec.Status.Terminal() {
		return Record{}, Stage{}, ErrTerminalState
	}
	if rec.Released {
		return Record{}, Stage{}, ErrAlreadyReleased
	}
	if now.IsZero() {
		now = time.Now()
	}
	rec.Released = true
	rec.UpdatedAt = now
	stage := Stage{
		RecordID:  rec.ID,
		Role:      RoleFaculty,
		Status:    StagePending,
		UpdatedAt: now,
	}
	return rec, stage, nil
}
