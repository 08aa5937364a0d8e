package scholarship

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/point10xdev/ERP-Rebuild/internal/shared"
)

// Fellow is the slice of a scholar profile the generator needs.
type Fellow struct {
	ScholarID int64
	Basic     decimal.Decimal
	HRA       decimal.Decimal
}

// Directory is the scholar and role lookup port, implemented by the
// scholars service.
type Directory interface {
	HasRole(ctx context.Context, facultyID int64, role Role) (bool, error)
	CanActOn(ctx context.Context, facultyID int64, role Role, scholarID int64) (bool, error)
	ListFellowProfiles(ctx context.Context) ([]Fellow, error)
}

// bulkDecideConcurrency caps parallel decisions in a bulk request.
const bulkDecideConcurrency = 4

// Service orchestrates disbursement lifecycle operations.
type Service struct {
	logger    *slog.Logger
	repo      Repository
	directory Directory
	audit     *shared.AuditLogger
	now       func() time.Time
}

// NewService constructs a Service. audit may be nil, in which case actions
// are only traced through the application log.
func NewService(logger *slog.Logger, repo Repository, directory Directory, audit *shared.AuditLogger) *Service {
	return &Service{
		logger:    logger,
		repo:      repo,
		directory: directory,
		audit:     audit,
		now:       time.Now,
	}
}

// DecideRequest is an approver's decision on one record.
type DecideRequest struct {
	Action       Action
	Comment      string
	DeductedDays *int
}

// GenerateSummary reports one monthly generation run.
type GenerateSummary struct {
	Period  Period
	Created int
	Skipped int
}

// BulkFailure explains why one record in a bulk decision was not settled.
type BulkFailure struct {
	RecordID int64  `json:"id"`
	Reason   string `json:"reason"`
}

// BulkResult is the partial outcome of a bulk decision: every record is
// either settled or reported, never silently dropped.
type BulkResult struct {
	Settled []int64       `json:"settled"`
	Failed  []BulkFailure `json:"failed"`
}

// GenerateMonthly creates a dormant record for every institute fellow for
// the period. Fellows who already have a record for the period are skipped,
// so the run is safe to repeat.
func (s *Service) GenerateMonthly(ctx context.Context, period Period) (GenerateSummary, error) {
	if !period.Valid() {
		return GenerateSummary{}, fmt.Errorf("scholarship: invalid period %d/%d", period.Month, period.Year)
	}
	fellows, err := s.directory.ListFellowProfiles(ctx)
	if err != nil {
		return GenerateSummary{}, fmt.Errorf("scholarship: list fellows: %w", err)
	}

	summary := GenerateSummary{Period: period}
	for _, f := range fellows {
		rec, err := NewRecord(f.ScholarID, period, f.Basic, f.HRA)
		if err != nil {
			return summary, err
		}
		if _, err := s.repo.CreateRecord(ctx, rec); err != nil {
			if errors.Is(err, ErrDuplicatePeriod) {
				summary.Skipped++
				continue
			}
			return summary, err
		}
		summary.Created++
	}
	s.logger.Info("monthly disbursements generated",
		slog.String("period", period.String()),
		slog.Int("created", summary.Created),
		slog.Int("skipped", summary.Skipped))
	return summary, nil
}

// Release moves the scholar's own dormant record into the review chain and
// opens the faculty stage. At most one of a scholar's records may be in
// review at a time.
func (s *Service) Release(ctx context.Context, actor shared.Actor, recordID int64) (Record, error) {
	if !actor.IsScholar() {
		return Record{}, ErrUnauthorizedAction
	}
	var released Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetRecordForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		if rec.ScholarID != actor.ScholarID {
			return ErrNotOwner
		}
		open, err := tx.HasOpenRelease(ctx, rec.ScholarID)
		if err != nil {
			return err
		}
		if open {
			return ErrReleaseConflict
		}
		rec, stage, err := Release(rec, s.now())
		if err != nil {
			return err
		}
		if err := tx.UpdateRecord(ctx, rec); err != nil {
			return err
		}
		if _, err := tx.InsertStage(ctx, stage); err != nil {
			return err
		}
		released = rec
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	s.recordAudit(ctx, actor.UserID, "release", released.ID, map[string]any{
		"period": released.Period.String(),
	})
	return released, nil
}

// Decide applies an approve or reject decision by the acting role. Day
// deductions ride along on a faculty approval; use PreviewDeduction for
// uncommitted recalculations.
func (s *Service) Decide(ctx context.Context, actor shared.Actor, recordID int64, req DecideRequest) (Decision, error) {
	role, err := s.actingRole(ctx, actor)
	if err != nil {
		return Decision{}, err
	}
	if req.Action != ActionApprove && req.Action != ActionReject {
		return Decision{}, fmt.Errorf("scholarship: unsupported action %q", req.Action)
	}

	var decision Decision
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetRecordForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		allowed, err := s.directory.CanActOn(ctx, actor.FacultyID, role, rec.ScholarID)
		if err != nil {
			return err
		}
		if !allowed {
			return ErrUnauthorizedAction
		}
		stages, err := tx.ListStages(ctx, rec.ID)
		if err != nil {
			return err
		}
		decision, err = Evaluate(rec, stages, DecisionInput{
			Role:         role,
			Action:       req.Action,
			ActorID:      actor.FacultyID,
			Comment:      req.Comment,
			DeductedDays: req.DeductedDays,
			Now:          s.now(),
		})
		if err != nil {
			return err
		}
		if err := tx.UpdateRecord(ctx, decision.Record); err != nil {
			return err
		}
		if err := tx.UpdateStage(ctx, decision.Stage); err != nil {
			return err
		}
		if decision.NextStage != nil {
			next, err := tx.InsertStage(ctx, *decision.NextStage)
			if err != nil {
				return err
			}
			decision.NextStage = &next
		}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	meta := map[string]any{
		"role":   string(role),
		"action": string(req.Action),
		"status": string(decision.Record.Status),
	}
	if req.DeductedDays != nil {
		meta["deducted_days"] = *req.DeductedDays
	}
	s.recordAudit(ctx, actor.UserID, "decide", recordID, meta)
	return decision, nil
}

// DecideBulk applies the same decision to many records. Outcomes are
// partial: records that fail authorization or state checks are reported
// individually while the rest settle.
func (s *Service) DecideBulk(ctx context.Context, actor shared.Actor, recordIDs []int64, req DecideRequest) (BulkResult, error) {
	if _, err := s.actingRole(ctx, actor); err != nil {
		return BulkResult{}, err
	}
	if req.DeductedDays != nil && len(recordIDs) > 1 {
		return BulkResult{}, ErrInvalidDeduction
	}

	var (
		mu     sync.Mutex
		result BulkResult
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkDecideConcurrency)
	for _, id := range recordIDs {
		g.Go(func() error {
			_, err := s.Decide(ctx, actor, id, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, BulkFailure{RecordID: id, Reason: reason(err)})
				return nil
			}
			result.Settled = append(result.Settled, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BulkResult{}, err
	}
	sort.Slice(result.Settled, func(i, j int) bool { return result.Settled[i] < result.Settled[j] })
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].RecordID < result.Failed[j].RecordID })
	return result, nil
}

// PreviewDeduction recalculates the payable amount for a provisional day
// deduction without persisting anything. Faculty only, and only while the
// faculty stage is open.
func (s *Service) PreviewDeduction(ctx context.Context, actor shared.Actor, recordID int64, days int) (Record, error) {
	role, err := s.actingRole(ctx, actor)
	if err != nil {
		return Record{}, err
	}
	rec, err := s.repo.GetRecord(ctx, recordID)
	if err != nil {
		return Record{}, err
	}
	allowed, err := s.directory.CanActOn(ctx, actor.FacultyID, role, rec.ScholarID)
	if err != nil {
		return Record{}, err
	}
	if !allowed {
		return Record{}, ErrUnauthorizedAction
	}
	stages, err := s.repo.ListStages(ctx, rec.ID)
	if err != nil {
		return Record{}, err
	}
	decision, err := Evaluate(rec, stages, DecisionInput{
		Role:         role,
		Action:       ActionEditDays,
		ActorID:      actor.FacultyID,
		DeductedDays: &days,
		Now:          s.now(),
	})
	if err != nil {
		return Record{}, err
	}
	return decision.Record, nil
}

// ScholarBuckets classifies a scholar's full history into the dashboard
// buckets. Scholars see their own; approvers see scholars in their scope.
func (s *Service) ScholarBuckets(ctx context.Context, actor shared.Actor, scholarID int64) (Buckets, error) {
	if err := s.authorizeScholarView(ctx, actor, scholarID); err != nil {
		return Buckets{}, err
	}
	records, err := s.repo.ListByScholar(ctx, scholarID)
	if err != nil {
		return Buckets{}, err
	}
	return Classify(records), nil
}

// ScholarRecords lists a scholar's records narrowed by a type filter:
// "all", "current" (dormant), "pending" (in review), "previous" (settled),
// "approved", "rejected", or an English month name.
func (s *Service) ScholarRecords(ctx context.Context, actor shared.Actor, scholarID int64, typ string) ([]Record, error) {
	if err := s.authorizeScholarView(ctx, actor, scholarID); err != nil {
		return nil, err
	}
	records, err := s.repo.ListByScholar(ctx, scholarID)
	if err != nil {
		return nil, err
	}
	return filterRecords(records, typ)
}

// PendingForRole lists the released records whose active stage awaits the
// actor's acting role, scoped to the scholars the actor oversees.
func (s *Service) PendingForRole(ctx context.Context, actor shared.Actor, filter ListFilter) ([]RecordWithScholar, error) {
	role, err := s.actingRole(ctx, actor)
	if err != nil {
		return nil, err
	}
	candidates, err := s.repo.ListForRole(ctx, actor.FacultyID, role, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	stages, err := s.repo.StagesForRecords(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := candidates[:0]
	for _, c := range candidates {
		active := ActiveStage(stages[c.ID])
		if active != nil && active.Role.Rank() == role.Rank() {
			out = append(out, c)
		}
	}
	return out, nil
}

// SettledRecords lists released records that have left the chain, for
// history views and exports, limited to the scholars the acting role
// oversees.
func (s *Service) SettledRecords(ctx context.Context, actor shared.Actor, filter ListFilter) ([]RecordWithScholar, shared.Pagination, error) {
	role, err := s.actingRole(ctx, actor)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return s.repo.ListSettled(ctx, actor.FacultyID, role, filter)
}

// Ledger returns the record and its stage ledger in chain order.
func (s *Service) Ledger(ctx context.Context, actor shared.Actor, recordID int64) (Record, []Stage, error) {
	rec, err := s.repo.GetRecord(ctx, recordID)
	if err != nil {
		return Record{}, nil, err
	}
	if err := s.authorizeScholarView(ctx, actor, rec.ScholarID); err != nil {
		return Record{}, nil, err
	}
	stages, err := s.repo.ListStages(ctx, recordID)
	if err != nil {
		return Record{}, nil, err
	}
	return rec, SortLedger(stages), nil
}

// actingRole resolves the actor's acting role and confirms the role is
// actually assigned to them. The role string arrives from the request, so
// parsing alone is not enough.
func (s *Service) actingRole(ctx context.Context, actor shared.Actor) (Role, error) {
	if !actor.IsFaculty() {
		return "", ErrUnauthorizedAction
	}
	role, err := ParseRole(actor.ActingRole)
	if err != nil {
		return "", ErrUnauthorizedAction
	}
	assigned, err := s.directory.HasRole(ctx, actor.FacultyID, role)
	if err != nil {
		return "", err
	}
	if !assigned {
		return "", ErrUnauthorizedAction
	}
	return role, nil
}

// authorizeScholarView permits the scholar themselves, or an approver whose
// acting role scopes over the scholar.
func (s *Service) authorizeScholarView(ctx context.Context, actor shared.Actor, scholarID int64) error {
	if actor.IsScholar() {
		if actor.ScholarID != scholarID {
			return ErrNotOwner
		}
		return nil
	}
	role, err := s.actingRole(ctx, actor)
	if err != nil {
		return err
	}
	allowed, err := s.directory.CanActOn(ctx, actor.FacultyID, role, scholarID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrUnauthorizedAction
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, recordID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "scholarship_record",
		EntityID: strconv.FormatInt(recordID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Error("audit write failed", slog.Any("error", err), slog.String("action", action))
	}
}

// filterRecords applies the listing type filter in memory; a scholar's own
// record set stays small.
func filterRecords(records []Record, typ string) ([]Record, error) {
	switch typ {
	case "", "all":
		return records, nil
	case "current":
		var out []Record
		for _, rec := range records {
			if rec.Status == RecordPending && !rec.Released {
				out = append(out, rec)
			}
		}
		return out, nil
	case "pending":
		var out []Record
		for _, rec := range records {
			if rec.Status == RecordPending && rec.Released {
				out = append(out, rec)
			}
		}
		return out, nil
	case "previous":
		var out []Record
		for _, rec := range records {
			if rec.Released && rec.Status != RecordPending {
				out = append(out, rec)
			}
		}
		return out, nil
	case "approved", "rejected":
		status := RecordApproved
		if typ == "rejected" {
			status = RecordRejected
		}
		var out []Record
		for _, rec := range records {
			if rec.Status == status {
				out = append(out, rec)
			}
		}
		return out, nil
	default:
		month, ok := MonthNumber(typ)
		if !ok {
			return nil, fmt.Errorf("scholarship: unknown list type %q", typ)
		}
		var out []Record
		for _, rec := range records {
			if rec.Period.Month == month {
				out = append(out, rec)
			}
		}
		return out, nil
	}
}

// reason maps an error to the short string reported in bulk outcomes.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorizedAction):
		return "unauthorized"
	case errors.Is(err, ErrTerminalState):
		return "terminal"
	case errors.Is(err, ErrNotReleased):
		return "not_released"
	case errors.Is(err, ErrStageLocked):
		return "stage_locked"
	case errors.Is(err, ErrInvalidDeduction):
		return "invalid_deduction"
	default:
		return "internal"
	}
}
