package batchfile

import (
	"strings"
)

// Header is the first record of a submission file.
type Header struct {
	TransactionCode string
	Mincode         string
	SchoolName      string
	RequestDate     string
	ContactName     string
	Email           string
}

// StudentDetail is one positional detail record. Immutable once parsed.
type StudentDetail struct {
	TransactionCode string
	LocalID         string
	SubmittedPEN    string
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
}

// Trailer is the last record of a submission file.
type Trailer struct {
	TransactionCode string
	StudentCount    string
	VendorName      string
	ProductName     string
}

// BatchFile is the structured product of parsing one submission blob.
type BatchFile struct {
	Header   Header
	Students []StudentDetail
	Trailer  Trailer
}

// ViolationKind classifies a row-length violation.
type ViolationKind string

const (
	TooLong  ViolationKind = "TOO_LONG"
	TooShort ViolationKind = "TOO_SHORT"
)

// LengthViolation reports one physical line whose length deviates from its
// record shape. Line is 1-based and excludes the header line, so raw file
// line N reports as N-1; RawLine keeps the physical position so the
// validator can tell header/trailer violations apart from detail ones.
type LengthViolation struct {
	Line    int
	RawLine int
	Kind    ViolationKind
	Length  int
	Want    int
}

// ParseResult carries the parse product together with every recoverable
// violation found. Parsing continues past row errors so a single pass
// collects all of them.
type ParseResult struct {
	File       *BatchFile
	Violations []LengthViolation
	RawLines   []string
}

// Parse splits raw submission bytes into header, detail, and trailer
// records according to the layout. A file without at least a header and a
// trailer line is unprocessable outright.
func Parse(contents []byte, layout Layout) (*ParseResult, error) {
	lines := splitLines(contents)
	if len(lines) < 2 {
		return nil, NewFileError(ReasonInvalidHeader,
			"file must contain at least a header and a trailer record, got %d line(s)", len(lines))
	}

	res := &ParseResult{
		File:     &BatchFile{},
		RawLines: lines,
	}

	headerLine := lines[0]
	trailerLine := lines[len(lines)-1]

	res.collectViolation(1, headerLine, layout.Header.Length)
	res.collectViolation(len(lines), trailerLine, layout.Trailer.Length)

	res.File.Header = parseHeader(headerLine, layout.Header)
	res.File.Trailer = parseTrailer(trailerLine, layout.Trailer)

	for i := 1; i < len(lines)-1; i++ {
		line := lines[i]
		if res.collectViolation(i+1, line, layout.Detail.Length) {
			continue
		}
		res.File.Students = append(res.File.Students, parseDetail(line, layout.Detail))
	}

	return res, nil
}

// collectViolation records a length violation for one physical line and
// reports whether the line was rejected.
func (r *ParseResult) collectViolation(rawLine int, line string, want int) bool {
	length := len(line)
	if length == want {
		return false
	}

	kind := TooShort
	if length > want {
		kind = TooLong
	}

	r.Violations = append(r.Violations, LengthViolation{
		Line:    rawLine - 1,
		RawLine: rawLine,
		Kind:    kind,
		Length:  length,
		Want:    want,
	})
	return true
}

func parseHeader(line string, shape RecordShape) Header {
	return Header{
		TransactionCode: marker(line),
		Mincode:         fieldValue(line, shape, "mincode"),
		SchoolName:      fieldValue(line, shape, "schoolName"),
		RequestDate:     fieldValue(line, shape, "requestDate"),
		ContactName:     fieldValue(line, shape, "contactName"),
		Email:           fieldValue(line, shape, "email"),
	}
}

func parseDetail(line string, shape RecordShape) StudentDetail {
	return StudentDetail{
		TransactionCode: marker(line),
		LocalID:         fieldValue(line, shape, "localID"),
		SubmittedPEN:    fieldValue(line, shape, "submittedPEN"),
		LegalSurname:    fieldValue(line, shape, "legalSurname"),
		LegalGivenName:  fieldValue(line, shape, "legalGivenName"),
		LegalMiddleName: fieldValue(line, shape, "legalMiddleName"),
		UsualSurname:    fieldValue(line, shape, "usualSurname"),
		UsualGivenName:  fieldValue(line, shape, "usualGivenName"),
		UsualMiddleName: fieldValue(line, shape, "usualMiddleName"),
		DOB:             fieldValue(line, shape, "dob"),
		Gender:          fieldValue(line, shape, "gender"),
		Grade:           fieldValue(line, shape, "grade"),
		PostalCode:      fieldValue(line, shape, "postalCode"),
	}
}

func parseTrailer(line string, shape RecordShape) Trailer {
	return Trailer{
		TransactionCode: marker(line),
		StudentCount:    fieldValue(line, shape, "studentCount"),
		VendorName:      fieldValue(line, shape, "vendorName"),
		ProductName:     fieldValue(line, shape, "productName"),
	}
}

// marker returns the 3-character transaction code at offset 0, tolerating
// short lines so malformed rows still classify.
func marker(line string) string {
	if len(line) < 3 {
		return line
	}
	return line[:3]
}

func fieldValue(line string, shape RecordShape, name string) string {
	f, ok := shape.Field(name)
	if !ok {
		return ""
	}
	if f.Offset >= len(line) {
		return ""
	}
	end := f.Offset + f.Length
	if end > len(line) {
		end = len(line)
	}
	return strings.TrimSpace(line[f.Offset:end])
}

func splitLines(contents []byte) []string {
	normalized := strings.ReplaceAll(string(contents), "\r\n", "\n")
	lines := strings.Split(normalized, "\n")

	trimmed := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		trimmed = append(trimmed, line)
	}
	return trimmed
}
