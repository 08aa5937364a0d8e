package scholarship

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RecordStatus enumerates overall disbursement statuses.
type RecordStatus string

const (
	RecordPending  RecordStatus = "PENDING"
	RecordApproved RecordStatus = "APPROVED"
	RecordRejected RecordStatus = "REJECTED"
)

// Terminal reports whether no further transitions are permitted.
func (s RecordStatus) Terminal() bool {
	return s == RecordApproved || s == RecordRejected
}

// StageStatus enumerates per-role checkpoint statuses. A chain position
// without a stage row yet is NOT_STARTED; rows are only ever created in
// PENDING and move to APPROVED or REJECTED exactly once.
type StageStatus string

const (
	StageNotStarted StageStatus = "NOT_STARTED"
	StagePending    StageStatus = "PENDING"
	StageApproved   StageStatus = "APPROVED"
	StageRejected   StageStatus = "REJECTED"
)

// Role identifies an approver position in the chain.
type Role string

const (
	RoleFaculty  Role = "FAC"
	RoleHOD      Role = "HOD"
	RoleAssoDean Role = "AD"
	RoleDean     Role = "DEAN"
)

// ParseRole validates a role string from the wire.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if r.Rank() == 0 {
		return "", fmt.Errorf("scholarship: unknown role %q", s)
	}
	return r, nil
}

// Rank returns the chain position of a role. AD and DEAN share the final
// rank: either may decide that stage, not both. Zero means not an approver.
func (r Role) Rank() int {
	switch r {
	case RoleFaculty:
		return 1
	case RoleHOD:
		return 2
	case RoleAssoDean, RoleDean:
		return 3
	default:
		return 0
	}
}

// finalRank is the last required chain position.
const finalRank = 3

// nextRole returns the role seat created after an approval at rank.
func nextRole(rank int) Role {
	switch rank {
	case 1:
		return RoleHOD
	case 2:
		return RoleAssoDean
	default:
		return ""
	}
}

// Period identifies one disbursement month.
type Period struct {
	Month int
	Year  int
}

// Valid reports whether the period denotes a real month.
func (p Period) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year > 0
}

// Days returns the number of days in the period's month.
func (p Period) Days() int {
	return time.Date(p.Year, time.Month(p.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Before orders periods chronologically.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%d-%02d", p.Year, p.Month)
}

// Record is one month's disbursement for one scholar. Monetary amounts are
// fixed-point decimals rounded to two places; they cross the wire as strings.
type Record struct {
	ID           int64
	ScholarID    int64
	Period       Period
	Days         int
	DeductedDays int
	TotalPay     decimal.Decimal
	PayPerDay    decimal.Decimal
	FinalAmount  decimal.Decimal
	Status       RecordStatus
	Released     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Stage is one role's decision checkpoint for a record.
type Stage struct {
	ID        int64
	RecordID  int64
	Role      Role
	Status    StageStatus
	Comment   string
	ActorID   int64
	UpdatedAt time.Time
}

// RecordWithScholar carries display fields for listings and exports.
type RecordWithScholar struct {
	Record
	ScholarName string
	Enrollment  string
	Department  string
}

// NewRecord builds a fresh PENDING record for a scholar and period. The
// per-day rate is (basic + basic*hra) spread over the days in the month,
// and the initial total covers the full month.
func NewRecord(scholarID int64, period Period, basic, hra decimal.Decimal) (Record, error) {
	if !period.Valid() {
		return Record{}, fmt.Errorf("scholarship: invalid period %d/%d", period.Month, period.Year)
	}
	days := period.Days()
	gross := basic.Add(basic.Mul(hra))
	perDay := gross.Div(decimal.NewFromInt(int64(days))).Round(2)
	total := perDay.Mul(decimal.NewFromInt(int64(days))).Round(2)
	return Record{
		ScholarID:   scholarID,
		Period:      period,
		Days:        days,
		TotalPay:    total,
		PayPerDay:   perDay,
		FinalAmount: total,
		Status:      RecordPending,
	}, nil
}

// monthNames maps lowercase English month names to their number, used by
// listing filters that accept a month name as the type value.
var monthNames = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4,
	"may": 5, "june": 6, "july": 7, "august": 8,
	"september": 9, "october": 10, "november": 11, "december": 12,
}

// MonthNumber resolves an English month name; ok is false for anything else.
func MonthNumber(name string) (int, bool) {
	n, ok := monthNames[name]
	return n, ok
}
