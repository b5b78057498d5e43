package batchfile

// FieldSpec describes one positional field inside a fixed-width record.
type FieldSpec struct {
	Name   string
	Offset int
	Length int
}

// RecordShape describes one record type: its transaction-code marker at
// offset 0, the required physical line length, and the field positions.
type RecordShape struct {
	Marker string
	Length int
	Fields []FieldSpec
}

// Field returns the spec for a named field, or a zero spec when the layout
// does not define it.
func (s RecordShape) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Layout is the column-layout configuration for a whole submission file.
// The layout is configuration, not hardcoded: callers may supply their own.
type Layout struct {
	Header  RecordShape
	Detail  RecordShape
	Trailer RecordShape
}

// Record markers of the PEN request file format.
const (
	HeaderMarker  = "FFI"
	DetailMarker  = "SRM"
	TrailerMarker = "BTR"
)

// penRecordLength is the physical line length of every record in the
// default PEN request layout.
const penRecordLength = 235

// DefaultLayout returns the standard PEN request file layout.
func DefaultLayout() Layout {
	return Layout{
		Header: RecordShape{
			Marker: HeaderMarker,
			Length: penRecordLength,
			Fields: []FieldSpec{
				{Name: "mincode", Offset: 3, Length: 8},
				{Name: "schoolName", Offset: 11, Length: 40},
				{Name: "requestDate", Offset: 51, Length: 8},
				{Name: "contactName", Offset: 59, Length: 40},
				{Name: "email", Offset: 99, Length: 100},
			},
		},
		Detail: RecordShape{
			Marker: DetailMarker,
			Length: penRecordLength,
			Fields: []FieldSpec{
				{Name: "localID", Offset: 3, Length: 12},
				{Name: "submittedPEN", Offset: 15, Length: 10},
				{Name: "legalSurname", Offset: 25, Length: 25},
				{Name: "legalGivenName", Offset: 50, Length: 25},
				{Name: "legalMiddleName", Offset: 75, Length: 25},
				{Name: "usualSurname", Offset: 100, Length: 25},
				{Name: "usualGivenName", Offset: 125, Length: 25},
				{Name: "usualMiddleName", Offset: 150, Length: 25},
				{Name: "dob", Offset: 175, Length: 8},
				{Name: "gender", Offset: 183, Length: 1},
				{Name: "grade", Offset: 184, Length: 2},
				{Name: "postalCode", Offset: 186, Length: 6},
			},
		},
		Trailer: RecordShape{
			Marker: TrailerMarker,
			Length: penRecordLength,
			Fields: []FieldSpec{
				{Name: "studentCount", Offset: 3, Length: 5},
				{Name: "vendorName", Offset: 8, Length: 100},
				{Name: "productName", Offset: 108, Length: 100},
			},
		},
	}
}
