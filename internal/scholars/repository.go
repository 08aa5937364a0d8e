package scholars

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/point10xdev/ERP-Rebuild/internal/scholarship"
)

// ErrNotFound indicates a missing scholar or faculty row.
var ErrNotFound = errors.New("scholars: not found")

// Repository defines master data access.
type Repository interface {
	GetScholar(ctx context.Context, id int64) (Scholar, error)
	GetFaculty(ctx context.Context, id int64) (Faculty, error)
	ListRoles(ctx context.Context, facultyID int64) ([]scholarship.Role, error)
	ListScholarsForRole(ctx context.Context, facultyID int64, role scholarship.Role) ([]Scholar, error)
	ListFellows(ctx context.Context) ([]Scholar, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const scholarColumns = `id, user_id, enrollment, registration, name, email,
	department, course, university, COALESCE(supervisor_id, 0),
	COALESCE(co_supervisor_id, 0), basic, hra, admission_category,
	fellowship, joined_at`

func scanScholar(row pgx.Row) (Scholar, error) {
	var s Scholar
	err := row.Scan(&s.ID, &s.UserID, &s.Enrollment, &s.Registration, &s.Name,
		&s.Email, &s.Department, &s.Course, &s.University, &s.SupervisorID,
		&s.CoSupervisorID, &s.Basic, &s.HRA, &s.AdmissionCategory,
		&s.Fellowship, &s.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Scholar{}, ErrNotFound
		}
		return Scholar{}, err
	}
	return s, nil
}

func (r *pgRepository) GetScholar(ctx context.Context, id int64) (Scholar, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+scholarColumns+` FROM scholars WHERE id = $1`, id)
	return scanScholar(row)
}

func (r *pgRepository) GetFaculty(ctx context.Context, id int64) (Faculty, error) {
	var f Faculty
	err := r.pool.QueryRow(ctx, `SELECT id, user_id, name, email, department, university, designation
		FROM faculty WHERE id = $1`, id).
		Scan(&f.ID, &f.UserID, &f.Name, &f.Email, &f.Department, &f.University, &f.Designation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Faculty{}, ErrNotFound
		}
		return Faculty{}, err
	}
	return f, nil
}

func (r *pgRepository) ListRoles(ctx context.Context, facultyID int64) ([]scholarship.Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT role FROM faculty_roles WHERE faculty_id = $1 ORDER BY role`, facultyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []scholarship.Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, scholarship.Role(role))
	}
	return roles, rows.Err()
}

// ListScholarsForRole applies the approver scoping rules: faculty see their
// supervised scholars, heads of department their department, deans their
// university.
func (r *pgRepository) ListScholarsForRole(ctx context.Context, facultyID int64, role scholarship.Role) ([]Scholar, error) {
	var query string
	switch role {
	case scholarship.RoleFaculty:
		query = `SELECT ` + scholarColumns + ` FROM scholars WHERE supervisor_id = $1 ORDER BY name`
	case scholarship.RoleHOD:
		query = `SELECT ` + scholarColumns + ` FROM scholars
			WHERE department = (SELECT department FROM faculty WHERE id = $1) ORDER BY name`
	case scholarship.RoleAssoDean, scholarship.RoleDean:
		query = `SELECT ` + scholarColumns + ` FROM scholars
			WHERE university = (SELECT university FROM faculty WHERE id = $1) ORDER BY name`
	default:
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, query, facultyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScholars(rows)
}

func (r *pgRepository) ListFellows(ctx context.Context) ([]Scholar, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+scholarColumns+` FROM scholars
		WHERE admission_category = $1 ORDER BY id`, CategoryInstituteFellow)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScholars(rows)
}

func collectScholars(rows pgx.Rows) ([]Scholar, error) {
	var out []Scholar
	for rows.Next() {
		s, err := scanScholar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
