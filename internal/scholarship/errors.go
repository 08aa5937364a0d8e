package scholarship

import "errors"

var (
	// ErrNotFound indicates the record or stage does not exist.
	ErrNotFound = errors.New("scholarship: not found")
	// ErrUnauthorizedAction indicates the acting role may not act on the
	// record's current stage.
	ErrUnauthorizedAction = errors.New("scholarship: role not authorized for this stage")
	// ErrTerminalState indicates the record is already approved or rejected.
	ErrTerminalState = errors.New("scholarship: record is in a terminal state")
	// ErrStageLocked indicates a day edit after the faculty stage has passed.
	ErrStageLocked = errors.New("scholarship: day deduction is locked after faculty review")
	// ErrInvalidDeduction indicates an out-of-range deducted day count.
	ErrInvalidDeduction = errors.New("scholarship: invalid deducted days")
	// ErrAlreadyReleased indicates a release of a record already in the chain.
	ErrAlreadyReleased = errors.New("scholarship: record already released")
	// ErrNotReleased indicates an approver action on a record the scholar has
	// not released into review.
	ErrNotReleased = errors.New("scholarship: record not released for review")
	// ErrReleaseConflict indicates the scholar already has a released record
	// still moving through the chain.
	ErrReleaseConflict = errors.New("scholarship: another record is already in review")
	// ErrDuplicatePeriod indicates a second record for one scholar and period.
	ErrDuplicatePeriod = errors.New("scholarship: record already exists for this period")
	// ErrNotOwner indicates a scholar acting on another scholar's record.
	ErrNotOwner = errors.New("scholarship: record does not belong to scholar")
)
