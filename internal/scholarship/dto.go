package scholarship

import (
	"fmt"
	"time"

	"github.com/point10xdev/ERP-Rebuild/internal/shared"
)

// recordResponse is the wire form of a Record. Monetary amounts are fixed
// two-decimal strings.
type recordResponse struct {
	ID           int64  `json:"id"`
	ScholarID    int64  `json:"scholar_id"`
	Month        int    `json:"month"`
	Year         int    `json:"year"`
	Days         int    `json:"days"`
	DeductedDays int    `json:"deducted_days"`
	TotalPay     string `json:"total_pay"`
	PayPerDay    string `json:"pay_per_day"`
	FinalAmount  string `json:"final_amount"`
	Status       string `json:"status"`
	Released     bool   `json:"released"`
	UpdatedAt    string `json:"updated_at"`
}

func toRecordResponse(rec Record) recordResponse {
	return recordResponse{
		ID:           rec.ID,
		ScholarID:    rec.ScholarID,
		Month:        rec.Period.Month,
		Year:         rec.Period.Year,
		Days:         rec.Days,
		DeductedDays: rec.DeductedDays,
		TotalPay:     rec.TotalPay.StringFixed(2),
		PayPerDay:    rec.PayPerDay.StringFixed(2),
		FinalAmount:  rec.FinalAmount.StringFixed(2),
		Status:       string(rec.Status),
		Released:     rec.Released,
		UpdatedAt:    rec.UpdatedAt.Format(time.RFC3339),
	}
}

func toRecordResponses(records []Record) []recordResponse {
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	return out
}

type recordWithScholarResponse struct {
	recordResponse
	ScholarName string `json:"scholar_name"`
	Enrollment  string `json:"enrollment"`
	Department  string `json:"department"`
}

func toRecordWithScholarResponses(records []RecordWithScholar) []recordWithScholarResponse {
	out := make([]recordWithScholarResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, recordWithScholarResponse{
			recordResponse: toRecordResponse(rec.Record),
			ScholarName:    rec.ScholarName,
			Enrollment:     rec.Enrollment,
			Department:     rec.Department,
		})
	}
	return out
}

type stageResponse struct {
	Role      string `json:"role"`
	Status    string `json:"status"`
	Comment   string `json:"comment,omitempty"`
	ActorID   int64  `json:"actor_id,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

func toStageResponse(st Stage) stageResponse {
	return stageResponse{
		Role:      string(st.Role),
		Status:    string(st.Status),
		Comment:   st.Comment,
		ActorID:   st.ActorID,
		UpdatedAt: st.UpdatedAt.Format(time.RFC3339),
	}
}

// toLedgerResponse renders the full chain: positions without a row yet
// appear as NOT_STARTED so clients always see every seat.
func toLedgerResponse(stages []Stage) []stageResponse {
	out := make([]stageResponse, 0, finalRank)
	seen := 0
	for _, st := range stages {
		out = append(out, toStageResponse(st))
		seen = st.Role.Rank()
	}
	for rank := seen; rank < finalRank; rank++ {
		role := RoleFaculty
		if rank > 0 {
			role = nextRole(rank)
		}
		out = append(out, stageResponse{Role: string(role), Status: string(StageNotStarted)})
	}
	return out
}

type bucketsResponse struct {
	Current       *recordResponse  `json:"current"`
	PendingReview []recordResponse `json:"pending_review"`
	Previous      []recordResponse `json:"previous"`
}

func toBucketsResponse(b Buckets) bucketsResponse {
	resp := bucketsResponse{
		PendingReview: toRecordResponses(b.InReview),
		Previous:      toRecordResponses(b.Previous),
	}
	if b.Current != nil {
		current := toRecordResponse(*b.Current)
		resp.Current = &current
	}
	return resp
}

// decideRequest is the approver action body. Decision accepts the
// original wire verbs: accept, reject, edit_days.
type decideRequest struct {
	Role         string `json:"role" validate:"omitempty,oneof=FAC HOD AD DEAN"`
	Decision     string `json:"decision" validate:"required,oneof=accept approve reject edit_days"`
	Comment      string `json:"comment" validate:"max=500"`
	DeductedDays *int   `json:"deducted_days"`
}

func (r decideRequest) action() (Action, error) {
	switch r.Decision {
	case "accept", "approve":
		return ActionApprove, nil
	case "reject":
		return ActionReject, nil
	case "edit_days":
		return ActionEditDays, nil
	default:
		return "", fmt.Errorf("scholarship: unknown decision %q", r.Decision)
	}
}

type decideBulkRequest struct {
	IDs          []int64 `json:"ids" validate:"required,min=1,max=200"`
	Role         string  `json:"role" validate:"omitempty,oneof=FAC HOD AD DEAN"`
	Decision     string  `json:"decision" validate:"required,oneof=accept approve reject"`
	Comment      string  `json:"comment" validate:"max=500"`
	DeductedDays *int    `json:"deducted_days"`
}

type paginationResponse struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func toPaginationResponse(p shared.Pagination) paginationResponse {
	return paginationResponse{Page: p.Page, PerPage: p.PerPage, Total: p.Total, TotalPages: p.TotalPages}
}
