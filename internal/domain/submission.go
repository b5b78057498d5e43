package domain

import "time"

// Submission is an uploaded file blob waiting for extraction. The engine
// consumes unextracted rows and stamps the extract timestamp on pickup.
type Submission struct {
	ID               string
	SubmissionNumber string
	Mincode          string
	FileContents     []byte
	ExtractedAt      *time.Time
	CreatedAt        time.Time
}

// Submitter is a school-directory entry resolved from a submitter code. A
// submitter is active when its open date is not in the future and its close
// date is absent or in the future.
type Submitter struct {
	Mincode    string
	SchoolName string
	OpenedAt   time.Time
	ClosedAt   *time.Time
}
