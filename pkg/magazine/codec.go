package magazine

import "time"

// kindSchema maps the generic Record onto the document fields used by each
// collection.
type kindSchema struct {
	bodyField    string
	createdField string
	eventFields  bool
}

var schemas = map[Kind]kindSchema{
	KindNews:    {bodyField: "content", createdField: "date_posted"},
	KindEvent:   {bodyField: "description", createdField: "created_at", eventFields: true},
	KindGallery: {bodyField: "description", createdField: "date"},
}

const (
	fieldTitle    = "title"
	fieldDate     = "date"
	fieldLocation = "location"
	fieldImageID  = "image_id"
)

func schemaFor(kind Kind) (kindSchema, error) {
	s, ok := schemas[kind]
	if !ok {
		return kindSchema{}, ErrUnknownKind
	}
	return s, nil
}

// DefaultSort is the listing order used when none is requested: newest first
// by creation timestamp.
func DefaultSort(kind Kind) Sort {
	s := schemas[kind]
	return Sort{Field: s.createdField, Direction: Descending}
}

// recordDocument encodes r without its id. A missing image is stored as null.
func recordDocument(r *Record) Document {
	s := schemas[r.Kind]
	doc := Document{
		fieldTitle:     r.Title,
		s.bodyField:    r.Body,
		s.createdField: r.CreatedAt,
		fieldImageID:   nil,
	}
	if r.ImageID != "" {
		doc[fieldImageID] = r.ImageID
	}
	if s.eventFields {
		if r.EventDate != nil {
			doc[fieldDate] = *r.EventDate
		} else {
			doc[fieldDate] = nil
		}
		doc[fieldLocation] = r.Location
	}
	return doc
}

func recordFromDocument(kind Kind, doc Document) *Record {
	s := schemas[kind]
	r := &Record{
		ID:        doc.ID(),
		Kind:      kind,
		Title:     doc.String(fieldTitle),
		Body:      doc.String(s.bodyField),
		CreatedAt: doc.Time(s.createdField),
		ImageID:   doc.String(fieldImageID),
	}
	if s.eventFields {
		if t, ok := doc[fieldDate].(time.Time); ok {
			r.EventDate = &t
		}
		r.Location = doc.String(fieldLocation)
	}
	return r
}

func accountDocument(a *StudentAccount) Document {
	return Document{
		"roll_no":    a.RollNo,
		"email":      a.Email,
		"name":       a.Name,
		"password":   a.PasswordHash,
		"created_at": a.CreatedAt,
	}
}

func accountFromDocument(doc Document) *StudentAccount {
	return &StudentAccount{
		ID:           doc.ID(),
		RollNo:       doc.String("roll_no"),
		Email:        doc.String("email"),
		Name:         doc.String("name"),
		PasswordHash: doc.String("password"),
		CreatedAt:    doc.Time("created_at"),
	}
}

func registrationDocument(r *Registration) Document {
	return Document{
		"event_id":      r.EventID,
		"student_id":    r.StudentID,
		"registered_at": r.RegisteredAt,
	}
}

func registrationFromDocument(doc Document) *Registration {
	return &Registration{
		ID:           doc.ID(),
		EventID:      doc.String("event_id"),
		StudentID:    doc.String("student_id"),
		RegisteredAt: doc.Time("registered_at"),
	}
}
