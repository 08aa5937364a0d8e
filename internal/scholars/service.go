package scholars

import (
	"context"

	"github.com/point10xdev/ERP-Rebuild/internal/scholarship"
)

// Service exposes master data and the role directory used by the approval
// workflow.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetScholar fetches one scholar.
func (s *Service) GetScholar(ctx context.Context, id int64) (Scholar, error) {
	return s.repo.GetScholar(ctx, id)
}

// GetFaculty fetches one faculty member.
func (s *Service) GetFaculty(ctx context.Context, id int64) (Faculty, error) {
	return s.repo.GetFaculty(ctx, id)
}

// Roles lists the approver roles assigned to a faculty member.
func (s *Service) Roles(ctx context.Context, facultyID int64) ([]scholarship.Role, error) {
	return s.repo.ListRoles(ctx, facultyID)
}

// HasRole reports whether the role is assigned to the faculty member.
func (s *Service) HasRole(ctx context.Context, facultyID int64, role scholarship.Role) (bool, error) {
	roles, err := s.repo.ListRoles(ctx, facultyID)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

// CanActOn reports whether the faculty member, acting in role, oversees the
// scholar: supervisor for FAC, same department for HOD, same university for
// AD and DEAN.
func (s *Service) CanActOn(ctx context.Context, facultyID int64, role scholarship.Role, scholarID int64) (bool, error) {
	ok, err := s.HasRole(ctx, facultyID, role)
	if err != nil || !ok {
		return false, err
	}
	scholar, err := s.repo.GetScholar(ctx, scholarID)
	if err != nil {
		return false, err
	}
	switch role {
	case scholarship.RoleFaculty:
		return scholar.SupervisorID == facultyID, nil
	case scholarship.RoleHOD:
		faculty, err := s.repo.GetFaculty(ctx, facultyID)
		if err != nil {
			return false, err
		}
		return faculty.Department != "" && scholar.Department == faculty.Department, nil
	case scholarship.RoleAssoDean, scholarship.RoleDean:
		faculty, err := s.repo.GetFaculty(ctx, facultyID)
		if err != nil {
			return false, err
		}
		return scholar.University == faculty.University, nil
	default:
		return false, nil
	}
}

// Students lists the scholars an approver oversees in the given role.
func (s *Service) Students(ctx context.Context, facultyID int64, role scholarship.Role) ([]Scholar, error) {
	ok, err := s.HasRole(ctx, facultyID, role)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, scholarship.ErrUnauthorizedAction
	}
	return s.repo.ListScholarsForRole(ctx, facultyID, role)
}

// Fellows lists scholars eligible for generated disbursements.
func (s *Service) Fellows(ctx context.Context) ([]Scholar, error) {
	return s.repo.ListFellows(ctx)
}

// ListFellowProfiles exposes fellows through the approval workflow's
// directory port.
func (s *Service) ListFellowProfiles(ctx context.Context) ([]scholarship.Fellow, error) {
	fellows, err := s.repo.ListFellows(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]scholarship.Fellow, 0, len(fellows))
	for _, f := range fellows {
		out = append(out, scholarship.Fellow{
			ScholarID: f.ID,
			Basic:     f.Basic,
			HRA:       f.HRA,
		})
	}
	return out, nil
}
