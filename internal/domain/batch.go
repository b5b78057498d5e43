package domain

import (
	"fmt"
	"strings"
	"time"
)

// BatchStatus represents the lifecycle state of a submitted batch file.
type BatchStatus string

const (
	BatchStatusNew      BatchStatus = "NEW"
	BatchStatusLoaded   BatchStatus = "LOADED"
	BatchStatusLoadFail BatchStatus = "LOAD_FAIL"
	BatchStatusHold     BatchStatus = "HOLD"
	BatchStatusArchived BatchStatus = "ARCHIVED"
	BatchStatusDeleted  BatchStatus = "DELETED"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusNew, BatchStatusLoaded, BatchStatusLoadFail,
		BatchStatusHold, BatchStatusArchived, BatchStatusDeleted:
		return true
	}
	return false
}

func ParseBatchStatusFromString(s string) (BatchStatus, error) {
	st := BatchStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid batch status %q", ErrValidation, s)
	}
	return st, nil
}

// SchoolGroup classifies the submitting institution. Post-secondary
// submitters get different dedup windows and hold policies than K-12.
type SchoolGroup string

const (
	SchoolGroupK12 SchoolGroup = "K12"
	SchoolGroupPSI SchoolGroup = "PSI"
)

func (g SchoolGroup) String() string { return string(g) }

func (g SchoolGroup) IsValid() bool {
	switch g {
	case SchoolGroupK12, SchoolGroupPSI:
		return true
	}
	return false
}

// psiMincodePrefix identifies post-secondary submitter codes.
const psiMincodePrefix = "102"

// SchoolGroupFromMincode derives the school group from the submitter code
// prefix.
func SchoolGroupFromMincode(mincode string) SchoolGroup {
	if strings.HasPrefix(strings.TrimSpace(mincode), psiMincodePrefix) {
		return SchoolGroupPSI
	}
	return SchoolGroupK12
}

// Batch is the persisted aggregate for one accepted submission file.
type Batch struct {
	ID               string
	SubmissionNumber string
	Mincode          string
	SchoolGroup      SchoolGroup
	SchoolName       string
	ContactName      string
	Email            string
	FileChecksum     string
	StudentCount     int
	Status           BatchStatus
	FailReasonCode   *string
	FailReason       *string
	SoftDeleted      bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
