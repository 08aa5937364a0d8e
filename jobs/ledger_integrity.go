package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NowFunc supplies the current time; stubbed in tests.
type NowFunc func() time.Time

// NewLedgerIntegrityTask constructs the integrity check task.
func NewLedgerIntegrityTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskTypeLedgerIntegrity, json.RawMessage(`{}`)), nil
}

// NewLedgerIntegrityHandler scans for records violating the chain
// invariants: a released open record must have exactly one PENDING stage,
// and settled records must have none. Violations are logged, not repaired.
func NewLedgerIntegrityHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		rows, err := pool.Query(ctx, `
			SELECT r.id, r.status, COUNT(s.id) FILTER (WHERE s.status = 'PENDING')
			FROM scholarship_records r
			LEFT JOIN scholarship_stages s ON s.record_id = r.id
			WHERE r.released
			GROUP BY r.id, r.status
			HAVING COUNT(s.id) FILTER (WHERE s.status = 'PENDING')
				<> CASE WHEN r.status = 'PENDING' THEN 1 ELSE 0 END`)
		if err != nil {
			return err
		}
		defer rows.Close()

		violations := 0
		for rows.Next() {
			var (
				id      int64
				status  string
				pending int
			)
			if err := rows.Scan(&id, &status, &pending); err != nil {
				return err
			}
			violations++
			logger.Warn("ledger invariant violated",
				slog.Int64("record_id", id),
				slog.String("status", status),
				slog.Int("open_stages", pending))
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if violations == 0 {
			logger.Info("ledger integrity check clean")
		}
		return nil
	}
}
