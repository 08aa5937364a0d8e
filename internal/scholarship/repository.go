package scholarship

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/point10xdev/ERP-Rebuild/internal/platform/db"
	"github.com/point10xdev/ERP-Rebuild/internal/shared"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRepository exposes the operations available inside a decision
// transaction. The record row is locked first, so stage reads and writes
// are serialized per record.
type TxRepository interface {
	GetRecordForUpdate(ctx context.Context, id int64) (Record, error)
	ListStages(ctx context.Context, recordID int64) ([]Stage, error)
	HasOpenRelease(ctx context.Context, scholarID int64) (bool, error)
	UpdateRecord(ctx context.Context, rec Record) error
	UpdateStage(ctx context.Context, st Stage) error
	InsertStage(ctx context.Context, st Stage) (Stage, error)
}

// Repository defines disbursement persistence. Implemented by PGRepository
// and by in-memory fakes in tests.
type Repository interface {
	CreateRecord(ctx context.Context, rec Record) (Record, error)
	GetRecord(ctx context.Context, id int64) (Record, error)
	ListByScholar(ctx context.Context, scholarID int64) ([]Record, error)
	ListStages(ctx context.Context, recordID int64) ([]Stage, error)
	StagesForRecords(ctx context.Context, ids []int64) (map[int64][]Stage, error)
	ListForRole(ctx context.Context, facultyID int64, role Role, filter ListFilter) ([]RecordWithScholar, error)
	ListSettled(ctx context.Context, facultyID int64, role Role, filter ListFilter) ([]RecordWithScholar, shared.Pagination, error)
	HasRecordForPeriod(ctx context.Context, scholarID int64, period Period) (bool, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// ListFilter narrows listings. Zero values mean no constraint. Page and
// PerPage only apply to settled history listings.
type ListFilter struct {
	Status  RecordStatus
	Month   int
	Year    int
	Page    int
	PerPage int
}

// PGRepository provides PostgreSQL backed persistence for disbursements.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const recordColumns = `id, scholar_id, month, year, days, deducted_days,
	total_pay, pay_per_day, final_amount, status, released, created_at, updated_at`

const stageColumns = `id, record_id, role, status, COALESCE(comment, ''),
	COALESCE(actor_id, 0), updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.ScholarID, &rec.Period.Month, &rec.Period.Year,
		&rec.Days, &rec.DeductedDays, &rec.TotalPay, &rec.PayPerDay,
		&rec.FinalAmount, &rec.Status, &rec.Released, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func scanStage(row pgx.Row) (Stage, error) {
	var st Stage
	err := row.Scan(&st.ID, &st.RecordID, &st.Role, &st.Status, &st.Comment,
		&st.ActorID, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stage{}, ErrNotFound
		}
		return Stage{}, err
	}
	return st, nil
}

func createRecord(ctx context.Context, q querier, rec Record) (Record, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO scholarship_records
			(scholar_id, month, year, days, deducted_days, total_pay,
			 pay_per_day, final_amount, status, released)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+recordColumns,
		rec.ScholarID, rec.Period.Month, rec.Period.Year, rec.Days,
		rec.DeductedDays, rec.TotalPay, rec.PayPerDay, rec.FinalAmount,
		rec.Status, rec.Released)
	created, err := scanRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrDuplicatePeriod
		}
		return Record{}, fmt.Errorf("scholarship: create record: %w", err)
	}
	return created, nil
}

// CreateRecord inserts a dormant record. A second record for the same
// scholar and period trips the unique constraint and maps to
// ErrDuplicatePeriod.
func (r *PGRepository) CreateRecord(ctx context.Context, rec Record) (Record, error) {
	return createRecord(ctx, r.pool, rec)
}

func (r *PGRepository) GetRecord(ctx context.Context, id int64) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+`
		FROM scholarship_records WHERE id = $1`, id)
	return scanRecord(row)
}

func (r *PGRepository) ListByScholar(ctx context.Context, scholarID int64) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+`
		FROM scholarship_records WHERE scholar_id = $1
		ORDER BY year, month`, scholarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func listStages(ctx context.Context, q querier, recordID int64) ([]Stage, error) {
	rows, err := q.Query(ctx, `SELECT `+stageColumns+`
		FROM scholarship_stages WHERE record_id = $1 ORDER BY id`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Stage
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *PGRepository) ListStages(ctx context.Context, recordID int64) ([]Stage, error) {
	return listStages(ctx, r.pool, recordID)
}

// StagesForRecords loads the ledgers for a batch of records in one query.
func (r *PGRepository) StagesForRecords(ctx context.Context, ids []int64) (map[int64][]Stage, error) {
	out := make(map[int64][]Stage, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+stageColumns+`
		FROM scholarship_stages WHERE record_id = ANY($1) ORDER BY record_id, id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		out[st.RecordID] = append(out[st.RecordID], st)
	}
	return out, rows.Err()
}

const recordWithScholarColumns = `r.id, r.scholar_id, r.month, r.year, r.days,
	r.deducted_days, r.total_pay, r.pay_per_day, r.final_amount, r.status,
	r.released, r.created_at, r.updated_at, s.name, s.enrollment, s.department`

func scanRecordWithScholar(row pgx.Row) (RecordWithScholar, error) {
	var rec RecordWithScholar
	err := row.Scan(&rec.ID, &rec.ScholarID, &rec.Period.Month, &rec.Period.Year,
		&rec.Days, &rec.DeductedDays, &rec.TotalPay, &rec.PayPerDay,
		&rec.FinalAmount, &rec.Status, &rec.Released, &rec.CreatedAt,
		&rec.UpdatedAt, &rec.ScholarName, &rec.Enrollment, &rec.Department)
	if err != nil {
		return RecordWithScholar{}, err
	}
	return rec, nil
}

// roleScope returns the SQL predicate narrowing scholars to the approver's
// reach, with the faculty id as $1. Supervisors see their own scholars,
// HODs their department, deans their university.
func roleScope(role Role) (string, error) {
	switch role {
	case RoleFaculty:
		return `s.supervisor_id = $1`, nil
	case RoleHOD:
		return `s.department = (SELECT department FROM faculty WHERE id = $1)`, nil
	case RoleAssoDean, RoleDean:
		return `s.university = (SELECT university FROM faculty WHERE id = $1)`, nil
	default:
		return "", ErrUnauthorizedAction
	}
}

// ListForRole returns released, still-pending records whose scholars fall
// inside the approver's scope. Stage matching is done by the caller.
func (r *PGRepository) ListForRole(ctx context.Context, facultyID int64, role Role, filter ListFilter) ([]RecordWithScholar, error) {
	scope, err := roleScope(role)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + recordWithScholarColumns + `
		FROM scholarship_records r
		JOIN scholars s ON s.id = r.scholar_id
		WHERE r.released AND r.status = 'PENDING' AND ` + scope
	args := []any{facultyID}
	query, args = applyFilter(query, args, filter)
	query += ` ORDER BY r.year, r.month, s.name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecordsWithScholar(rows)
}

// ListSettled returns released records in a non-open state within the
// approver's scope, newest period first, for history listings and exports.
// A zero PerPage disables paging.
func (r *PGRepository) ListSettled(ctx context.Context, facultyID int64, role Role, filter ListFilter) ([]RecordWithScholar, shared.Pagination, error) {
	scope, err := roleScope(role)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	where := ` FROM scholarship_records r
		JOIN scholars s ON s.id = r.scholar_id
		WHERE r.released AND r.status <> 'PENDING' AND ` + scope

	countQuery := `SELECT COUNT(*)` + where
	countArgs := []any{facultyID}
	countQuery, countArgs = applyFilter(countQuery, countArgs, filter)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}

	query := `SELECT ` + recordWithScholarColumns + where
	args := []any{facultyID}
	query, args = applyFilter(query, args, filter)
	query += ` ORDER BY r.year DESC, r.month DESC, s.name`

	page := shared.Pagination{Page: 1, PerPage: total, Total: total, TotalPages: 1}
	if filter.PerPage > 0 {
		page = shared.NewPagination(filter.Page, filter.PerPage, total)
		args = append(args, page.PerPage, page.Offset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	records, err := collectRecordsWithScholar(rows)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return records, page, nil
}

func applyFilter(query string, args []any, filter ListFilter) (string, []any) {
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND r.status = $%d", len(args))
	}
	if filter.Month != 0 {
		args = append(args, filter.Month)
		query += fmt.Sprintf(" AND r.month = $%d", len(args))
	}
	if filter.Year != 0 {
		args = append(args, filter.Year)
		query += fmt.Sprintf(" AND r.year = $%d", len(args))
	}
	return query, args
}

func (r *PGRepository) HasRecordForPeriod(ctx context.Context, scholarID int64, period Period) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM scholarship_records
		WHERE scholar_id = $1 AND month = $2 AND year = $3)`,
		scholarID, period.Month, period.Year).Scan(&exists)
	return exists, err
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) GetRecordForUpdate(ctx context.Context, id int64) (Record, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+recordColumns+`
		FROM scholarship_records WHERE id = $1 FOR UPDATE`, id)
	return scanRecord(row)
}

func (t *txRepo) ListStages(ctx context.Context, recordID int64) ([]Stage, error) {
	return listStages(ctx, t.tx, recordID)
}

func (t *txRepo) HasOpenRelease(ctx context.Context, scholarID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM scholarship_records
		WHERE scholar_id = $1 AND released AND status = 'PENDING')`, scholarID).Scan(&exists)
	return exists, err
}

func (t *txRepo) UpdateRecord(ctx context.Context, rec Record) error {
	tag, err := t.tx.Exec(ctx, `UPDATE scholarship_records
		SET deducted_days = $2, final_amount = $3, status = $4, released = $5,
		    updated_at = $6
		WHERE id = $1`,
		rec.ID, rec.DeductedDays, rec.FinalAmount, rec.Status, rec.Released,
		rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("scholarship: update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) UpdateStage(ctx context.Context, st Stage) error {
	tag, err := t.tx.Exec(ctx, `UPDATE scholarship_stages
		SET role = $2, status = $3, comment = $4, actor_id = $5, updated_at = $6
		WHERE id = $1`,
		st.ID, st.Role, st.Status, st.Comment, st.ActorID, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("scholarship: update stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertStage(ctx context.Context, st Stage) (Stage, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO scholarship_stages
			(record_id, role, status, comment, actor_id, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, 0), $6)
		RETURNING `+stageColumns,
		st.RecordID, st.Role, st.Status, st.Comment, st.ActorID, st.UpdatedAt)
	created, err := scanStage(row)
	if err != nil {
		return Stage{}, fmt.Errorf("scholarship: insert stage: %w", err)
	}
	return created, nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func collectRecordsWithScholar(rows pgx.Rows) ([]RecordWithScholar, error) {
	var out []RecordWithScholar
	for rows.Next() {
		rec, err := scanRecordWithScholar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
