package scholarship

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func moneyT(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func testRecord(t *testing.T) Record {
	t.Helper()
	rec, err := NewRecord(7, Period{Month: 4, Year: 2025}, moneyT(t, "37000"), moneyT(t, "0.18"))
	require.NoError(t, err)
	rec.ID = 1
	return rec
}

func released(t *testing.T) (Record, []Stage) {
	t.Helper()
	rec, stage, err := Release(testRecord(t), time.Now())
	require.NoError(t, err)
	stage.ID = 1
	return rec, []Stage{stage}
}

func intPtr(v int) *int { return &v }

func TestNewRecordComputesProRatedPay(t *testing.T) {
	rec, err := NewRecord(7, Period{Month: 4, Year: 2025}, moneyT(t, "37000"), moneyT(t, "0.18"))
	require.NoError(t, err)

	require.Equal(t, 30, rec.Days)
	// (37000 + 37000*0.18) / 30 = 1455.33 rounded
	require.Equal(t, "1455.33", rec.PayPerDay.StringFixed(2))
	require.Equal(t, rec.PayPerDay.Mul(decimal.NewFromInt(30)).StringFixed(2), rec.TotalPay.StringFixed(2))
	require.True(t, rec.FinalAmount.Equal(rec.TotalPay))
	require.Equal(t, RecordPending, rec.Status)
	require.False(t, rec.Released)
}

func TestNewRecordRejectsInvalidPeriod(t *testing.T) {
	_, err := NewRecord(7, Period{Month: 13, Year: 2025}, moneyT(t, "37000"), moneyT(t, "0.18"))
	require.Error(t, err)
}

func TestComputeFinalAmount(t *testing.T) {
	rec := Record{
		Days:         30,
		DeductedDays: 5,
		TotalPay:     moneyT(t, "3000.00"),
		PayPerDay:    moneyT(t, "100.00"),
	}
	amount, err := ComputeFinalAmount(rec)
	require.NoError(t, err)
	require.Equal(t, "2500.00", amount.StringFixed(2))

	// rounding-stable: a second pass yields the same amount
	rec.FinalAmount = amount
	again, err := ComputeFinalAmount(rec)
	require.NoError(t, err)
	require.True(t, amount.Equal(again))
}

func TestComputeFinalAmountRejectsOutOfRange(t *testing.T) {
	rec := Record{Days: 30, TotalPay: moneyT(t, "3000"), PayPerDay: moneyT(t, "100")}

	rec.DeductedDays = -1
	_, err := ComputeFinalAmount(rec)
	require.ErrorIs(t, err, ErrInvalidDeduction)

	rec.DeductedDays = 31
	_, err = ComputeFinalAmount(rec)
	require.ErrorIs(t, err, ErrInvalidDeduction)
}

func TestRecalcDoesNotMutate(t *testing.T) {
	rec := testRecord(t)
	updated, err := Recalc(rec, 3)
	require.NoError(t, err)

	require.Equal(t, 0, rec.DeductedDays)
	require.Equal(t, 3, updated.DeductedDays)
	require.True(t, updated.FinalAmount.LessThan(rec.FinalAmount))
}

func TestReleaseOpensFacultyStage(t *testing.T) {
	rec, stage, err := Release(testRecord(t), time.Now())
	require.NoError(t, err)
	require.True(t, rec.Released)
	require.Equal(t, RoleFaculty, stage.Role)
	require.Equal(t, StagePending, stage.Status)

	_, _, err = Release(rec, time.Now())
	require.ErrorIs(t, err, ErrAlreadyReleased)
}

func TestEvaluateRequiresRelease(t *testing.T) {
	rec := testRecord(t)
	_, err := Evaluate(rec, nil, DecisionInput{Role: RoleFaculty, Action: ActionApprove})
	require.ErrorIs(t, err, ErrNotReleased)
}

func TestEvaluateFullApprovalChain(t *testing.T) {
	rec, stages := released(t)

	// FAC approves with a deduction
	d1, err := Evaluate(rec, stages, DecisionInput{
		Role: RoleFaculty, Action: ActionApprove, ActorID: 11,
		DeductedDays: intPtr(2),
	})
	require.NoError(t, err)
	require.Equal(t, StageApproved, d1.Stage.Status)
	require.Equal(t, 2, d1.Record.DeductedDays)
	require.Equal(t, RecordPending, d1.Record.Status)
	require.NotNil(t, d1.NextStage)
	require.Equal(t, RoleHOD, d1.NextStage.Role)

	// HOD approves
	stages = []Stage{d1.Stage, *d1.NextStage}
	d2, err := Evaluate(d1.Record, stages, DecisionInput{Role: RoleHOD, Action: ActionApprove, ActorID: 12})
	require.NoError(t, err)
	require.NotNil(t, d2.NextStage)
	require.Equal(t, RoleAssoDean, d2.NextStage.Role)

	// Dean decides the final seat even though the row was created as AD
	stages = []Stage{d1.Stage, d2.Stage, *d2.NextStage}
	d3, err := Evaluate(d2.Record, stages, DecisionInput{Role: RoleDean, Action: ActionApprove, ActorID: 13})
	require.NoError(t, err)
	require.Nil(t, d3.NextStage)
	require.Equal(t, RecordApproved, d3.Record.Status)
	require.Equal(t, RoleDean, d3.Stage.Role)
	require.Equal(t, int64(13), d3.Stage.ActorID)
}

func TestEvaluateRejectIsTerminal(t *testing.T) {
	rec, stages := released(t)

	d, err := Evaluate(rec, stages, DecisionInput{
		Role: RoleFaculty, Action: ActionReject, Comment: "attendance shortfall",
	})
	require.NoError(t, err)
	require.Equal(t, RecordRejected, d.Record.Status)
	require.Equal(t, StageRejected, d.Stage.Status)
	require.Equal(t, "attendance shortfall", d.Stage.Comment)

	_, err = Evaluate(d.Record, []Stage{d.Stage}, DecisionInput{Role: RoleFaculty, Action: ActionApprove})
	require.ErrorIs(t, err, ErrTerminalState)
}

func TestEvaluateOutOfTurnRole(t *testing.T) {
	rec, stages := released(t)

	_, err := Evaluate(rec, stages, DecisionInput{Role: RoleHOD, Action: ActionApprove})
	require.ErrorIs(t, err, ErrUnauthorizedAction)

	_, err = Evaluate(rec, stages, DecisionInput{Role: RoleDean, Action: ActionApprove})
	require.ErrorIs(t, err, ErrUnauthorizedAction)

	_, err = Evaluate(rec, stages, DecisionInput{Role: "ACC", Action: ActionApprove})
	require.ErrorIs(t, err, ErrUnauthorizedAction)
}

func TestEvaluateDeductionOnlyByFaculty(t *testing.T) {
	rec, stages := released(t)
	d1, err := Evaluate(rec, stages, DecisionInput{Role: RoleFaculty, Action: ActionApprove})
	require.NoError(t, err)

	stages = []Stage{d1.Stage, *d1.NextStage}
	_, err = Evaluate(d1.Record, stages, DecisionInput{
		Role: RoleHOD, Action: ActionApprove, DeductedDays: intPtr(4),
	})
	require.ErrorIs(t, err, ErrStageLocked)
}

func TestEditDaysPreview(t *testing.T) {
	rec, stages := released(t)

	d, err := Evaluate(rec, stages, DecisionInput{
		Role: RoleFaculty, Action: ActionEditDays, DeductedDays: intPtr(5),
	})
	require.NoError(t, err)
	require.Equal(t, 5, d.Record.DeductedDays)
	// preview only: the stage stays open
	require.Equal(t, StagePending, d.Stage.Status)
}

func TestEditDaysByHODIsUnauthorized(t *testing.T) {
	rec, stages := released(t)
	d1, err := Evaluate(rec, stages, DecisionInput{Role: RoleFaculty, Action: ActionApprove})
	require.NoError(t, err)

	// unauthorized regardless of stage position
	_, err = Evaluate(rec, stages, DecisionInput{Role: RoleHOD, Action: ActionEditDays, DeductedDays: intPtr(1)})
	require.ErrorIs(t, err, ErrUnauthorizedAction)

	stages = []Stage{d1.Stage, *d1.NextStage}
	_, err = Evaluate(d1.Record, stages, DecisionInput{Role: RoleHOD, Action: ActionEditDays, DeductedDays: intPtr(1)})
	require.ErrorIs(t, err, ErrUnauthorizedAction)
}

func TestEditDaysLockedAfterFacultyStage(t *testing.T) {
	rec, stages := released(t)
	d1, err := Evaluate(rec, stages, DecisionInput{Role: RoleFaculty, Action: ActionApprove})
	require.NoError(t, err)

	stages = []Stage{d1.Stage, *d1.NextStage}
	_, err = Evaluate(d1.Record, stages, DecisionInput{
		Role: RoleFaculty, Action: ActionEditDays, DeductedDays: intPtr(2),
	})
	require.ErrorIs(t, err, ErrStageLocked)
}

func TestPermittedActions(t *testing.T) {
	rec, stages := released(t)

	require.ElementsMatch(t,
		[]Action{ActionApprove, ActionReject, ActionEditDays},
		PermittedActions(rec, stages, RoleFaculty))
	require.Empty(t, PermittedActions(rec, stages, RoleHOD))

	dormant := testRecord(t)
	require.Empty(t, PermittedActions(dormant, nil, RoleFaculty))
}
