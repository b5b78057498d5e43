package repository

import (
	"time"

	"github.com/studentpen/pen-batch-engine/internal/domain"
)

// BatchModel is the persistence model for the batches table.
type BatchModel struct {
	ID               string             `gorm:"type:uuid;primaryKey"`
	SubmissionNumber string             `gorm:"type:varchar(8);not null"`
	Mincode          string             `gorm:"type:varchar(8);not null"`
	SchoolGroup      domain.SchoolGroup `gorm:"type:varchar(3);not null"`
	SchoolName       string             `gorm:"type:varchar(40)"`
	ContactName      string             `gorm:"type:varchar(40)"`
	Email            string             `gorm:"type:varchar(100)"`
	FileChecksum     string             `gorm:"type:varchar(64);not null"`
	StudentCount     int                `gorm:"not null"`
	Status           domain.BatchStatus `gorm:"type:varchar(10);not null"`
	FailReasonCode   *string            `gorm:"type:varchar(30)"`
	FailReason       *string            `gorm:"type:text"`
	SoftDeleted      bool               `gorm:"not null;default:false"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (BatchModel) TableName() string {
	return "batches"
}

// BatchStudentModel is the persistence model for batch_students.
type BatchStudentModel struct {
	ID              string               `gorm:"type:uuid;primaryKey"`
	BatchID         string               `gorm:"type:uuid;not null"`
	LocalID         string               `gorm:"type:varchar(12)"`
	SubmittedPEN    string               `gorm:"type:varchar(10)"`
	AssignedPEN     *string              `gorm:"type:varchar(10)"`
	LegalSurname    string               `gorm:"type:varchar(25)"`
	LegalGivenName  string               `gorm:"type:varchar(25)"`
	LegalMiddleName string               `gorm:"type:varchar(25)"`
	UsualSurname    string               `gorm:"type:varchar(25)"`
	UsualGivenName  string               `gorm:"type:varchar(25)"`
	UsualMiddleName string               `gorm:"type:varchar(25)"`
	DOB             string               `gorm:"type:varchar(8)"`
	Gender          string               `gorm:"type:varchar(1)"`
	Grade           string               `gorm:"type:varchar(2)"`
	PostalCode      string               `gorm:"type:varchar(6)"`
	TransactionCode string               `gorm:"type:varchar(3);not null"`
	Status          domain.StudentStatus `gorm:"type:varchar(15);not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (BatchStudentModel) TableName() string {
	return "batch_students"
}

// ValidationIssueModel is the persistence model for validation_issues.
type ValidationIssueModel struct {
	ID             string               `gorm:"type:uuid;primaryKey"`
	BatchStudentID string               `gorm:"type:uuid;not null"`
	Severity       domain.IssueSeverity `gorm:"type:varchar(7);not null"`
	TypeCode       string               `gorm:"type:varchar(30);not null"`
	FieldCode      string               `gorm:"type:varchar(30);not null"`
	CreatedAt      time.Time
}

func (ValidationIssueModel) TableName() string {
	return "validation_issues"
}

// SagaModel is the persistence model for sagas.
type SagaModel struct {
	ID             string            `gorm:"type:uuid;primaryKey"`
	SagaType       string            `gorm:"type:varchar(50);not null"`
	BatchStudentID string            `gorm:"type:uuid;not null;index"`
	State          string            `gorm:"type:varchar(50);not null"`
	Payload        []byte            `gorm:"type:jsonb;not null"`
	RetryCount     int               `gorm:"not null;default:0"`
	Status         domain.SagaStatus `gorm:"type:varchar(15);not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (SagaModel) TableName() string {
	return "sagas"
}

// SagaEventModel is the persistence model for saga_events.
type SagaEventModel struct {
	ID           string                `gorm:"type:uuid;primaryKey"`
	SagaID       string                `gorm:"type:uuid;not null"`
	State        string                `gorm:"type:varchar(50);not null"`
	EventType    string                `gorm:"type:varchar(50);not null"`
	EventOutcome string                `gorm:"type:varchar(50)"`
	Direction    domain.EventDirection `gorm:"type:varchar(8);not null"`
	CreatedAt    time.Time
}

func (SagaEventModel) TableName() string {
	return "saga_events"
}

// SubmissionModel is the persistence model for submissions, the uploaded
// file blob store the extract job consumes.
type SubmissionModel struct {
	ID               string `gorm:"type:uuid;primaryKey"`
	SubmissionNumber string `gorm:"type:varchar(8);not null;uniqueIndex"`
	Mincode          string `gorm:"type:varchar(8);not null"`
	FileContents     []byte `gorm:"type:bytea;not null"`
	ExtractedAt      *time.Time
	CreatedAt        time.Time
}

func (SubmissionModel) TableName() string {
	return "submissions"
}

func batchModelFromDomain(b *domain.Batch) *BatchModel {
	if b == nil {
		return nil
	}

	return &BatchModel{
		ID:               b.ID,
		SubmissionNumber: b.SubmissionNumber,
		Mincode:          b.Mincode,
		SchoolGroup:      b.SchoolGroup,
		SchoolName:       b.SchoolName,
		ContactName:      b.ContactName,
		Email:            b.Email,
		FileChecksum:     b.FileChecksum,
		StudentCount:     b.StudentCount,
		Status:           b.Status,
		FailReasonCode:   b.FailReasonCode,
		FailReason:       b.FailReason,
		SoftDeleted:      b.SoftDeleted,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func batchModelToDomain(m *BatchModel) *domain.Batch {
	if m == nil {
		return nil
	}

	return &domain.Batch{
		ID:               m.ID,
		SubmissionNumber: m.SubmissionNumber,
		Mincode:          m.Mincode,
		SchoolGroup:      m.SchoolGroup,
		SchoolName:       m.SchoolName,
		ContactName:      m.ContactName,
		Email:            m.Email,
		FileChecksum:     m.FileChecksum,
		StudentCount:     m.StudentCount,
		Status:           m.Status,
		FailReasonCode:   m.FailReasonCode,
		FailReason:       m.FailReason,
		SoftDeleted:      m.SoftDeleted,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func studentModelFromDomain(s *domain.BatchStudent) *BatchStudentModel {
	if s == nil {
		return nil
	}

	return &BatchStudentModel{
		ID:              s.ID,
		BatchID:         s.BatchID,
		LocalID:         s.LocalID,
		SubmittedPEN:    s.SubmittedPEN,
		AssignedPEN:     s.AssignedPEN,
		LegalSurname:    s.LegalSurname,
		LegalGivenName:  s.LegalGivenName,
		LegalMiddleName: s.LegalMiddleName,
		UsualSurname:    s.UsualSurname,
		UsualGivenName:  s.UsualGivenName,
		UsualMiddleName: s.UsualMiddleName,
		DOB:             s.DOB,
		Gender:          s.Gender,
		Grade:           s.Grade,
		PostalCode:      s.PostalCode,
		TransactionCode: s.TransactionCode,
		Status:          s.Status,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func studentModelToDomain(m *BatchStudentModel) *domain.BatchStudent {
	if m == nil {
		return nil
	}

	return &domain.BatchStudent{
		ID:              m.ID,
		BatchID:         m.BatchID,
		LocalID:         m.LocalID,
		SubmittedPEN:    m.SubmittedPEN,
		AssignedPEN:     m.AssignedPEN,
		LegalSurname:    m.LegalSurname,
		LegalGivenName:  m.LegalGivenName,
		LegalMiddleName: m.LegalMiddleName,
		UsualSurname:    m.UsualSurname,
		UsualGivenName:  m.UsualGivenName,
		UsualMiddleName: m.UsualMiddleName,
		DOB:             m.DOB,
		Gender:          m.Gender,
		Grade:           m.Grade,
		PostalCode:      m.PostalCode,
		TransactionCode: m.TransactionCode,
		Status:          m.Status,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func issueModelFromDomain(i *domain.ValidationIssue) *ValidationIssueModel {
	if i == nil {
		return nil
	}

	return &ValidationIssueModel{
		ID:             i.ID,
		BatchStudentID: i.BatchStudentID,
		Severity:       i.Severity,
		TypeCode:       i.TypeCode,
		FieldCode:      i.FieldCode,
		CreatedAt:      i.CreatedAt,
	}
}

func sagaModelFromDomain(s *domain.Saga) *SagaModel {
	if s == nil {
		return nil
	}

	return &SagaModel{
		ID:             s.ID,
		SagaType:       s.SagaType,
		BatchStudentID: s.BatchStudentID,
		State:          s.State,
		Payload:        []byte(s.Payload),
		RetryCount:     s.RetryCount,
		Status:         s.Status,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func sagaModelToDomain(m *SagaModel) *domain.Saga {
	if m == nil {
		return nil
	}

	return &domain.Saga{
		ID:             m.ID,
		SagaType:       m.SagaType,
		BatchStudentID: m.BatchStudentID,
		State:          m.State,
		Payload:        append([]byte(nil), m.Payload...),
		RetryCount:     m.RetryCount,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func sagaEventModelFromDomain(e *domain.SagaEvent) *SagaEventModel {
	if e == nil {
		return nil
	}

	return &SagaEventModel{
		ID:           e.ID,
		SagaID:       e.SagaID,
		State:        e.State,
		EventType:    e.EventType,
		EventOutcome: e.EventOutcome,
		Direction:    e.Direction,
		CreatedAt:    e.CreatedAt,
	}
}

func sagaEventModelToDomain(m *SagaEventModel) *domain.SagaEvent {
	if m == nil {
		return nil
	}

	return &domain.SagaEvent{
		ID:           m.ID,
		SagaID:       m.SagaID,
		State:        m.State,
		EventType:    m.EventType,
		EventOutcome: m.EventOutcome,
		Direction:    m.Direction,
		CreatedAt:    m.CreatedAt,
	}
}

func submissionModelToDomain(m *SubmissionModel) *domain.Submission {
	if m == nil {
		return nil
	}

	return &domain.Submission{
		ID:               m.ID,
		SubmissionNumber: m.SubmissionNumber,
		Mincode:          m.Mincode,
		FileContents:     append([]byte(nil), m.FileContents...),
		ExtractedAt:      m.ExtractedAt,
		CreatedAt:        m.CreatedAt,
	}
}
