package domain

import (
	"fmt"
	"strings"
	"time"
)

// StudentStatus represents the processing state of a single batch student
// row. It is mutated exclusively by the saga that processes the row, except
// for REPEAT which the repeat filter assigns before any saga exists.
type StudentStatus string

const (
	StudentStatusLoaded     StudentStatus = "LOADED"
	StudentStatusError      StudentStatus = "ERROR"
	StudentStatusSysMatched StudentStatus = "SYS_MATCHED"
	StudentStatusSysNewPen  StudentStatus = "SYS_NEW_PEN"
	StudentStatusRepeat     StudentStatus = "REPEAT"
	StudentStatusFixable    StudentStatus = "NEW_FIXABLE"
	StudentStatusUsrMatched StudentStatus = "USR_MATCHED"
	StudentStatusUsrNewPen  StudentStatus = "USR_NEW_PEN"
	StudentStatusReturned   StudentStatus = "RETURNED"
	StudentStatusDuplicate  StudentStatus = "DUPLICATE"
)

func (s StudentStatus) String() string { return string(s) }

func (s StudentStatus) IsValid() bool {
	switch s {
	case StudentStatusLoaded, StudentStatusError, StudentStatusSysMatched,
		StudentStatusSysNewPen, StudentStatusRepeat, StudentStatusFixable,
		StudentStatusUsrMatched, StudentStatusUsrNewPen,
		StudentStatusReturned, StudentStatusDuplicate:
		return true
	}
	return false
}

// IsTerminal reports whether no further saga processing applies to the row.
func (s StudentStatus) IsTerminal() bool {
	switch s {
	case StudentStatusSysMatched, StudentStatusSysNewPen, StudentStatusRepeat,
		StudentStatusUsrMatched, StudentStatusUsrNewPen,
		StudentStatusReturned, StudentStatusDuplicate:
		return true
	}
	return false
}

func ParseStudentStatusFromString(s string) (StudentStatus, error) {
	st := StudentStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid student status %q", ErrValidation, s)
	}
	return st, nil
}

// BatchStudent is one detail row of an accepted batch file.
type BatchStudent struct {
	ID              string
	BatchID         string
	LocalID         string
	SubmittedPEN    string
	AssignedPEN     *string
	LegalSurname    string
	LegalGivenName  string
	LegalMiddleName string
	UsualSurname    string
	UsualGivenName  string
	UsualMiddleName string
	DOB             string
	Gender          string
	Grade           string
	PostalCode      string
	TransactionCode string
	Status          StudentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IssueSeverity classifies a validation issue reported by the validation
// service.
type IssueSeverity string

const (
	IssueSeverityError   IssueSeverity = "ERROR"
	IssueSeverityWarning IssueSeverity = "WARNING"
)

func (s IssueSeverity) String() string { return string(s) }

func (s IssueSeverity) IsValid() bool {
	switch s {
	case IssueSeverityError, IssueSeverityWarning:
		return true
	}
	return false
}

func ParseIssueSeverityFromString(s string) (IssueSeverity, error) {
	sev := IssueSeverity(strings.ToUpper(strings.TrimSpace(s)))
	if !sev.IsValid() {
		return "", fmt.Errorf("%w: invalid issue severity %q", ErrValidation, s)
	}
	return sev, nil
}

// ValidationIssue is attached to a batch student by the external validation
// service; the engine only persists what the outcome payload reports.
type ValidationIssue struct {
	ID             string
	BatchStudentID string
	Severity       IssueSeverity
	TypeCode       string
	FieldCode      string
	CreatedAt      time.Time
}
