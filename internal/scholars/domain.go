package scholars

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/point10xdev/ERP-Rebuild/internal/scholarship"
)

// AdmissionCategory tags how a scholar was admitted. Only institute
// fellows receive generated disbursements.
const CategoryInstituteFellow = "INST_FEL"

// Fellowship categories with their basic stipend amounts.
const (
	FellowshipJRF = "JRF"
	FellowshipSRF = "SRF"
)

// Scholar is a student recipient of a scholarship.
type Scholar struct {
	ID                int64
	UserID            int64
	Enrollment        string
	Registration      string
	Name              string
	Email             string
	Department        string
	Course            string
	University        string
	SupervisorID      int64
	CoSupervisorID    int64
	Basic             decimal.Decimal
	HRA               decimal.Decimal
	AdmissionCategory string
	Fellowship        string
	JoinedAt          time.Time
}

// Fellow reports whether the scholar receives generated disbursements.
func (s Scholar) Fellow() bool {
	return s.AdmissionCategory == CategoryInstituteFellow
}

// Faculty is a staff member who may hold approver roles.
type Faculty struct {
	ID          int64
	UserID      int64
	Name        string
	Email       string
	Department  string
	University  string
	Designation string
}

// RoleAssignment binds a faculty member to an approver role.
type RoleAssignment struct {
	FacultyID int64
	Role      scholarship.Role
}
