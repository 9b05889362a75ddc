package magazine

import (
	"io"
	"time"
)

// Kind identifies a content record variant. The value doubles as the name of
// the collection holding records of that kind.
type Kind string

// Content kinds (typed).
const (
	KindNews    Kind = "news"
	KindEvent   Kind = "events"
	KindGallery Kind = "gallery"
)

// Kinds lists every content kind.
var Kinds = []Kind{KindNews, KindEvent, KindGallery}

// IsValid reports whether k is a known content kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindNews, KindEvent, KindGallery:
		return true
	}
	return false
}

// Collection names that are not content kinds.
const (
	StudentsCollection      = "students"
	RegistrationsCollection = "registrations"
)

// Upload is an image submitted together with a record.
type Upload struct {
	Reader      io.Reader
	FileName    string
	ContentType string
}

// Blob is a stored image. It never changes after it is stored.
type Blob struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Collection  string `json:"collection"`
	Size        int64  `json:"size"`
	Data        []byte `json:"-"`
}

// Record is a news item, an event or a gallery item.
//
// Body holds the news content or the event/gallery description. EventDate and
// Location are only meaningful for events. ImageID is empty when no image is
// attached.
type Record struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	EventDate *time.Time `json:"event_date,omitempty"`
	Location  string     `json:"location,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ImageID   string     `json:"image_id,omitempty"`
}

// HasImage reports whether the record references a blob.
func (r *Record) HasImage() bool {
	return r.ImageID != ""
}

// RecordFields are the mutable fields of a record.
type RecordFields struct {
	Title     string
	Body      string
	EventDate time.Time
	Location  string
}

// ListOptions controls record listing. A nil Sort selects the default order
// of the kind; a zero Limit returns everything.
type ListOptions struct {
	Filter Filter
	Sort   *Sort
	Limit  int
}

// StudentAccount is a registered student.
type StudentAccount struct {
	ID           string    `json:"id"`
	RollNo       string    `json:"roll_no"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateAccountRequest contains parameters for registering a student
type CreateAccountRequest struct {
	RollNo   string
	Email    string
	Name     string
	Password string
}

// Registration is one ledger row: a student signed up for an event.
type Registration struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	StudentID    string    `json:"student_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// EventRegistrant is a registration joined with a snapshot of the student.
type EventRegistrant struct {
	StudentID    string    `json:"student_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	RollNo       string    `json:"roll_no"`
	RegisteredAt time.Time `json:"registered_at"`
}

// StudentRegistration is a registration joined with a snapshot of the event.
type StudentRegistration struct {
	Event        *Record   `json:"event"`
	RegisteredAt time.Time `json:"registered_at"`
}

// DashboardCounts are the per-collection totals shown to the admin.
type DashboardCounts struct {
	News     int64 `json:"news_count"`
	Events   int64 `json:"events_count"`
	Gallery  int64 `json:"gallery_count"`
	Students int64 `json:"students_count"`
}
