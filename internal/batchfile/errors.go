package batchfile

import (
	"errors"
	"fmt"
)

// ReasonCode is the machine-readable reason recorded on a batch that could
// not be processed.
type ReasonCode string

const (
	ReasonInvalidHeader        ReasonCode = "INVALID_HEADER"
	ReasonInvalidTrailer       ReasonCode = "INVALID_TRAILER"
	ReasonInvalidRowLength     ReasonCode = "INVALID_ROW_LENGTH"
	ReasonInvalidSubmitter     ReasonCode = "INVALID_SUBMITTER"
	ReasonInactiveSubmitter    ReasonCode = "INACTIVE_SUBMITTER"
	ReasonStudentCountMismatch ReasonCode = "STUDENT_COUNT_MISMATCH"
	ReasonHeldForSize          ReasonCode = "HELD_FOR_SIZE"
	ReasonDuplicateFile        ReasonCode = "DUPLICATE_FILE"
)

func (c ReasonCode) String() string { return string(c) }

// FileError marks a file as unprocessable. It is non-retryable: the caller
// records the reason on the batch and takes no further action on the file.
type FileError struct {
	Code    ReasonCode
	Message string
}

func (e *FileError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewFileError(code ReasonCode, format string, args ...any) *FileError {
	return &FileError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// AsFileError unwraps err into a *FileError when it is one.
func AsFileError(err error) (*FileError, bool) {
	var fileErr *FileError
	if errors.As(err, &fileErr) {
		return fileErr, true
	}
	return nil, false
}
