package scholarship

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/point10xdev/ERP-Rebuild/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	records  map[int64]Record
	stages   map[int64][]Stage
	nextID   int64
	nextStID int64

	// outOfScope marks scholar ids the role scope predicates would exclude.
	outOfScope map[int64]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		records: make(map[int64]Record),
		stages:  make(map[int64][]Stage),
	}
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) CreateRecord(ctx context.Context, rec Record) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.ScholarID == rec.ScholarID && existing.Period == rec.Period {
			return Record{}, ErrDuplicatePeriod
		}
	}
	r.nextID++
	rec.ID = r.nextID
	r.records[rec.ID] = rec
	return rec, nil
}

func (r *memoryRepo) GetRecord(ctx context.Context, id int64) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (r *memoryRepo) ListByScholar(ctx context.Context, scholarID int64) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.records {
		if rec.ScholarID == scholarID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListStages(ctx context.Context, recordID int64) ([]Stage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Stage(nil), r.stages[recordID]...), nil
}

func (r *memoryRepo) StagesForRecords(ctx context.Context, ids []int64) (map[int64][]Stage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64][]Stage, len(ids))
	for _, id := range ids {
		out[id] = append([]Stage(nil), r.stages[id]...)
	}
	return out, nil
}

func (r *memoryRepo) ListForRole(ctx context.Context, facultyID int64, role Role, filter ListFilter) ([]RecordWithScholar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RecordWithScholar
	for _, rec := range r.records {
		if rec.Released && rec.Status == RecordPending {
			out = append(out, RecordWithScholar{Record: rec})
		}
	}
	return out, nil
}

func (r *memoryRepo) ListSettled(ctx context.Context, facultyID int64, role Role, filter ListFilter) ([]RecordWithScholar, shared.Pagination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RecordWithScholar
	for _, rec := range r.records {
		if !rec.Released || rec.Status == RecordPending {
			continue
		}
		if r.outOfScope[rec.ScholarID] {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, RecordWithScholar{Record: rec})
	}
	return out, shared.Pagination{Page: 1, PerPage: len(out), Total: len(out), TotalPages: 1}, nil
}

func (r *memoryRepo) HasRecordForPeriod(ctx context.Context, scholarID int64, period Period) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ScholarID == scholarID && rec.Period == period {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) GetRecordForUpdate(ctx context.Context, id int64) (Record, error) {
	rec, ok := t.repo.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (t *memoryTx) ListStages(ctx context.Context, recordID int64) ([]Stage, error) {
	return append([]Stage(nil), t.repo.stages[recordID]...), nil
}

func (t *memoryTx) HasOpenRelease(ctx context.Context, scholarID int64) (bool, error) {
	for _, rec := range t.repo.records {
		if rec.ScholarID == scholarID && rec.Released && rec.Status == RecordPending {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) UpdateRecord(ctx context.Context, rec Record) error {
	if _, ok := t.repo.records[rec.ID]; !ok {
		return ErrNotFound
	}
	t.repo.records[rec.ID] = rec
	return nil
}

func (t *memoryTx) UpdateStage(ctx context.Context, st Stage) error {
	stages := t.repo.stages[st.RecordID]
	for i := range stages {
		if stages[i].ID == st.ID {
			stages[i] = st
			return nil
		}
	}
	return ErrNotFound
}

func (t *memoryTx) InsertStage(ctx context.Context, st Stage) (Stage, error) {
	t.repo.nextStID++
	st.ID = t.repo.nextStID
	t.repo.stages[st.RecordID] = append(t.repo.stages[st.RecordID], st)
	return st, nil
}

// stubDirectory grants every role and scopes every scholar, unless a deny
// list says otherwise.
type stubDirectory struct {
	fellows    []Fellow
	denyRoles  map[Role]bool
	denyScopes map[int64]bool
}

func (d *stubDirectory) HasRole(ctx context.Context, facultyID int64, role Role) (bool, error) {
	return !d.denyRoles[role], nil
}

func (d *stubDirectory) CanActOn(ctx context.Context, facultyID int64, role Role, scholarID int64) (bool, error) {
	if d.denyRoles[role] || d.denyScopes[scholarID] {
		return false, nil
	}
	return true, nil
}

func (d *stubDirectory) ListFellowProfiles(ctx context.Context) ([]Fellow, error) {
	return d.fellows, nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *stubDirectory) {
	t.Helper()
	repo := newMemoryRepo()
	dir := &stubDirectory{
		denyRoles:  make(map[Role]bool),
		denyScopes: make(map[int64]bool),
	}
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo, dir, nil)
	svc.now = func() time.Time { return time.Date(2025, 4, 15, 10, 0, 0, 0, time.UTC) }
	return svc, repo, dir
}

func seedRecord(t *testing.T, repo *memoryRepo, scholarID int64, month int) Record {
	t.Helper()
	rec, err := NewRecord(scholarID, Period{Month: month, Year: 2025},
		decimal.NewFromInt(37000), decimal.RequireFromString("0.18"))
	require.NoError(t, err)
	created, err := repo.CreateRecord(context.Background(), rec)
	require.NoError(t, err)
	return created
}

func scholarActor(id int64) shared.Actor {
	return shared.Actor{UserID: 100 + id, ScholarID: id}
}

func facultyActor(role Role) shared.Actor {
	return shared.Actor{UserID: 200, FacultyID: 20, ActingRole: string(role)}
}

func TestServiceReleaseHappyPath(t *testing.T) {
	svc, repo, _ := newTestService(t)
	rec := seedRecord(t, repo, 7, 4)

	releasedRec, err := svc.Release(context.Background(), scholarActor(7), rec.ID)
	require.NoError(t, err)
	require.True(t, releasedRec.Released)

	stages, err := repo.ListStages(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	require.Equal(t, RoleFaculty, stages[0].Role)
	require.Equal(t, StagePending, stages[0].Status)
}

func TestServiceReleaseOwnershipAndConflicts(t *testing.T) {
	svc, repo, _ := newTestService(t)
	first := seedRecord(t, repo, 7, 3)
	second := seedRecord(t, repo, 7, 4)

	_, err := svc.Release(context.Background(), scholarActor(8), first.ID)
	require.ErrorIs(t, err, ErrNotOwner)

	_, err = svc.Release(context.Background(), facultyActor(RoleFaculty), first.ID)
	require.ErrorIs(t, err, ErrUnauthorizedAction)

	_, err = svc.Release(context.Background(), scholarActor(7), first.ID)
	require.NoError(t, err)

	// one in-flight record per scholar
	_, err = svc.Release(context.Background(), scholarActor(7), second.ID)
	require.ErrorIs(t, err, ErrReleaseConflict)

	_, err = svc.Release(context.Background(), scholarActor(7), first.ID)
	require.ErrorIs(t, err, ErrAlreadyReleased)
}

func TestServiceDecideChain(t *testing.T) {
	svc, repo, _ := newTestService(t)
	rec := seedRecord(t, repo, 7, 4)
	ctx := context.Background()

	_, err := svc.Release(ctx, scholarActor(7), rec.ID)
	require.NoError(t, err)

	d1, err := svc.Decide(ctx, facultyActor(RoleFaculty), rec.ID, DecideRequest{
		Action: ActionApprove, DeductedDays: intPtr(2),
	})
	require.NoError(t, err)
	require.Equal(t, 2, d1.Record.DeductedDays)
	require.NotNil(t, d1.NextStage)

	d2, err := svc.Decide(ctx, facultyActor(RoleHOD), rec.ID, DecideRequest{Action: ActionApprove})
	require.NoError(t, err)
	require.Equal(t, RoleAssoDean, d2.NextStage.Role)

	d3, err := svc.Decide(ctx, facultyActor(RoleDean), rec.ID, DecideRequest{Action: ActionApprove})
	require.NoError(t, err)
	require.Nil(t, d3.NextStage)
	require.Equal(t, RecordApproved, d3.Record.Status)

	stored, err := repo.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, RecordApproved, stored.Status)
	require.Equal(t, 2, stored.DeductedDays)

	stages, err := repo.ListStages(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, stages, 3)
	require.Equal(t, RoleDean, stages[2].Role)
}

func TestServiceDecideScopeDenied(t *testing.T) {
	svc, repo, dir := newTestService(t)
	rec := seedRecord(t, repo, 7, 4)
	ctx := context.Background()
	_, err := svc.Release(ctx, scholarActor(7), rec.ID)
	require.NoError(t, err)

	dir.denyScopes[7] = true
	_, err = svc.Decide(ctx, facultyActor(RoleFaculty), rec.ID, DecideRequest{Action: ActionApprove})
	require.ErrorIs(t, err, ErrUnauthorizedAction)
}

func TestServiceDecideBulkPartialOutcome(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	released := seedRecord(t, repo, 7, 4)
	_, err := svc.Release(ctx, scholarActor(7), released.ID)
	require.NoError(t, err)
	dormant := seedRecord(t, repo, 8, 4)

	result, err := svc.DecideBulk(ctx, facultyActor(RoleFaculty),
		[]int64{released.ID, dormant.ID, 999}, DecideRequest{Action: ActionApprove})
	require.NoError(t, err)

	require.Equal(t, []int64{released.ID}, result.Settled)
	require.Len(t, result.Failed, 2)
	reasons := map[int64]string{}
	for _, f := range result.Failed {
		reasons[f.RecordID] = f.Reason
	}
	require.Equal(t, "not_released", reasons[dormant.ID])
	require.Equal(t, "not_found", reasons[999])
}

func TestServicePreviewDeductionDoesNotPersist(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	rec := seedRecord(t, repo, 7, 4)
	_, err := svc.Release(ctx, scholarActor(7), rec.ID)
	require.NoError(t, err)

	preview, err := svc.PreviewDeduction(ctx, facultyActor(RoleFaculty), rec.ID, 5)
	require.NoError(t, err)
	require.Equal(t, 5, preview.DeductedDays)

	stored, err := repo.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, 0, stored.DeductedDays)
}

func TestServiceScholarBuckets(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	prev := seedRecord(t, repo, 7, 3)
	_, err := svc.Release(ctx, scholarActor(7), prev.ID)
	require.NoError(t, err)
	_, err = svc.Decide(ctx, facultyActor(RoleFaculty), prev.ID, DecideRequest{Action: ActionReject})
	require.NoError(t, err)
	current := seedRecord(t, repo, 7, 4)

	buckets, err := svc.ScholarBuckets(ctx, scholarActor(7), 7)
	require.NoError(t, err)
	require.NotNil(t, buckets.Current)
	require.Equal(t, current.ID, buckets.Current.ID)
	require.Empty(t, buckets.InReview)
	require.Len(t, buckets.Previous, 1)

	_, err = svc.ScholarBuckets(ctx, scholarActor(8), 7)
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestServiceScholarRecordsTypeFilter(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	march := seedRecord(t, repo, 7, 3)
	_, err := svc.Release(ctx, scholarActor(7), march.ID)
	require.NoError(t, err)
	seedRecord(t, repo, 7, 4)

	all, err := svc.ScholarRecords(ctx, scholarActor(7), 7, "all")
	require.NoError(t, err)
	require.Len(t, all, 2)

	current, err := svc.ScholarRecords(ctx, scholarActor(7), 7, "current")
	require.NoError(t, err)
	require.Len(t, current, 1)

	pending, err := svc.ScholarRecords(ctx, scholarActor(7), 7, "pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, march.ID, pending[0].ID)

	byMonth, err := svc.ScholarRecords(ctx, scholarActor(7), 7, "march")
	require.NoError(t, err)
	require.Len(t, byMonth, 1)

	_, err = svc.ScholarRecords(ctx, scholarActor(7), 7, "martian")
	require.Error(t, err)
}

func TestServicePendingForRole(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	rec := seedRecord(t, repo, 7, 4)
	_, err := svc.Release(ctx, scholarActor(7), rec.ID)
	require.NoError(t, err)

	queue, err := svc.PendingForRole(ctx, facultyActor(RoleFaculty), ListFilter{})
	require.NoError(t, err)
	require.Len(t, queue, 1)

	empty, err := svc.PendingForRole(ctx, facultyActor(RoleHOD), ListFilter{})
	require.NoError(t, err)
	require.Empty(t, empty)

	_, err = svc.PendingForRole(ctx, scholarActor(7), ListFilter{})
	require.ErrorIs(t, err, ErrUnauthorizedAction)
}

func TestServiceListingsRequireAssignedRole(t *testing.T) {
	svc, repo, dir := newTestService(t)
	ctx := context.Background()

	rec := seedRecord(t, repo, 7, 3)
	rec.Released, rec.Status = true, RecordApproved
	repo.records[rec.ID] = rec

	// claiming DEAN without the assignment must not open the registers
	dir.denyRoles[RoleDean] = true

	_, _, err := svc.SettledRecords(ctx, facultyActor(RoleDean), ListFilter{})
	require.ErrorIs(t, err, ErrUnauthorizedAction)

	_, err = svc.PendingForRole(ctx, facultyActor(RoleDean), ListFilter{})
	require.ErrorIs(t, err, ErrUnauthorizedAction)

	records, _, err := svc.SettledRecords(ctx, facultyActor(RoleFaculty), ListFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestServiceSettledRecordsScopedToApprover(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	settle := func(scholarID int64, month int) Record {
		rec := seedRecord(t, repo, scholarID, month)
		rec.Released, rec.Status = true, RecordApproved
		repo.records[rec.ID] = rec
		return rec
	}
	mine := settle(7, 3)
	settle(8, 3)
	repo.outOfScope = map[int64]bool{8: true}

	records, page, err := svc.SettledRecords(ctx, facultyActor(RoleFaculty), ListFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, mine.ID, records[0].ID)
	require.Equal(t, 1, page.Total)
}

func TestServiceGenerateMonthly(t *testing.T) {
	svc, repo, dir := newTestService(t)
	ctx := context.Background()
	dir.fellows = []Fellow{
		{ScholarID: 1, Basic: decimal.NewFromInt(37000), HRA: decimal.RequireFromString("0.18")},
		{ScholarID: 2, Basic: decimal.NewFromInt(42000), HRA: decimal.RequireFromString("0.18")},
	}

	summary, err := svc.GenerateMonthly(ctx, Period{Month: 4, Year: 2025})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Created)
	require.Equal(t, 0, summary.Skipped)

	// repeat run skips existing records
	summary, err = svc.GenerateMonthly(ctx, Period{Month: 4, Year: 2025})
	require.NoError(t, err)
	require.Equal(t, 0, summary.Created)
	require.Equal(t, 2, summary.Skipped)

	records, err := repo.ListByScholar(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "49560.00", records[0].TotalPay.StringFixed(2))
}
