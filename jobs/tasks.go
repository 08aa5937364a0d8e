package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/point10xdev/ERP-Rebuild/internal/scholarship"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeGenerateDisbursements creates the month's dormant records.
	TaskTypeGenerateDisbursements = "scholarship:generate_monthly"
	// TaskTypeLedgerIntegrity verifies the stage ledger invariants.
	TaskTypeLedgerIntegrity = "scholarship:ledger_integrity"
)

// GenerateDisbursementsPayload selects the period to generate. A zero
// payload means the month the job runs in.
type GenerateDisbursementsPayload struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// NewGenerateDisbursementsTask constructs an Asynq task.
func NewGenerateDisbursementsTask(payload GenerateDisbursementsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGenerateDisbursements, data), nil
}

// Generator is the slice of the scholarship service the worker needs.
type Generator interface {
	GenerateMonthly(ctx context.Context, period scholarship.Period) (scholarship.GenerateSummary, error)
}

// NewGenerateDisbursementsHandler processes TaskTypeGenerateDisbursements
// tasks against the scholarship service.
func NewGenerateDisbursementsHandler(generator Generator, logger *slog.Logger, now NowFunc) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload GenerateDisbursementsPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		period := scholarship.Period{Month: payload.Month, Year: payload.Year}
		if period.Month == 0 || period.Year == 0 {
			current := now()
			period = scholarship.Period{Month: int(current.Month()), Year: current.Year()}
		}
		summary, err := generator.GenerateMonthly(ctx, period)
		if err != nil {
			return fmt.Errorf("jobs: generate disbursements: %w", err)
		}
		logger.Info("disbursement generation finished",
			slog.String("period", period.String()),
			slog.Int("created", summary.Created),
			slog.Int("skipped", summary.Skipped))
		return nil
	}
}
