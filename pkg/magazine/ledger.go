package magazine

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Ledger records which students signed up for which events. Rows are only
// ever appended; uniqueness of (event_id, student_id) is enforced by a unique
// index in the record store, not by a read before the write.
type Ledger struct {
	store  RecordStore
	now    func() time.Time
	logger *slog.Logger
}

func (l *Ledger) findEvent(ctx context.Context, eventID string) (Document, error) {
	doc, err := l.store.FindOne(ctx, string(KindEvent), ByID(eventID))
	if err != nil {
		return nil, &RecordError{Collection: string(KindEvent), ID: eventID, Op: "get", Err: err}
	}
	if doc == nil {
		return nil, ErrEventNotFound
	}
	return doc, nil
}

// Register signs a student up for an event. It fails with ErrEventNotFound
// when the event does not exist and ErrAlreadyRegistered when the pair is
// already in the ledger.
func (l *Ledger) Register(ctx context.Context, eventID, studentID string) (*Registration, error) {
	if _, err := l.findEvent(ctx, eventID); err != nil {
		return nil, err
	}

	reg := &Registration{
		EventID:      eventID,
		StudentID:    studentID,
		RegisteredAt: l.now().UTC(),
	}
	id, err := l.store.Insert(ctx, RegistrationsCollection, registrationDocument(reg))
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, ErrAlreadyRegistered
		}
		return nil, &RecordError{Collection: RegistrationsCollection, Op: "register", Err: err}
	}
	reg.ID = id

	l.logger.Info("registered student for event", "event_id", eventID, "student_id", studentID)
	return reg, nil
}

func (l *Ledger) find(ctx context.Context, filter Filter) ([]*Registration, error) {
	docs, err := l.store.Find(ctx, RegistrationsCollection, filter, FindOptions{
		Sort: &Sort{Field: "registered_at", Direction: Ascending},
	})
	if err != nil {
		return nil, &RecordError{Collection: RegistrationsCollection, Op: "list", Err: err}
	}
	regs := make([]*Registration, 0, len(docs))
	for _, doc := range docs {
		regs = append(regs, registrationFromDocument(doc))
	}
	return regs, nil
}

// ListForEvent returns the students registered for an event in registration
// order. Registrations whose student no longer exists are skipped.
func (l *Ledger) ListForEvent(ctx context.Context, eventID string) ([]*EventRegistrant, error) {
	if _, err := l.findEvent(ctx, eventID); err != nil {
		return nil, err
	}

	regs, err := l.find(ctx, Filter{"event_id": eventID})
	if err != nil {
		return nil, err
	}

	out := make([]*EventRegistrant, 0, len(regs))
	for _, reg := range regs {
		doc, err := l.store.FindOne(ctx, StudentsCollection, ByID(reg.StudentID))
		if err != nil {
			return nil, &RecordError{Collection: StudentsCollection, ID: reg.StudentID, Op: "get", Err: err}
		}
		if doc == nil {
			l.logger.Debug("skipping registration of missing student", "event_id", eventID, "student_id", reg.StudentID)
			continue
		}
		student := accountFromDocument(doc)
		out = append(out, &EventRegistrant{
			StudentID:    student.ID,
			Name:         student.Name,
			Email:        student.Email,
			RollNo:       student.RollNo,
			RegisteredAt: reg.RegisteredAt,
		})
	}
	return out, nil
}

// ListForStudent returns the events a student registered for in registration
// order. Registrations whose event no longer exists are skipped.
func (l *Ledger) ListForStudent(ctx context.Context, studentID string) ([]*StudentRegistration, error) {
	regs, err := l.find(ctx, Filter{"student_id": studentID})
	if err != nil {
		return nil, err
	}

	out := make([]*StudentRegistration, 0, len(regs))
	for _, reg := range regs {
		doc, err := l.store.FindOne(ctx, string(KindEvent), ByID(reg.EventID))
		if err != nil {
			return nil, &RecordError{Collection: string(KindEvent), ID: reg.EventID, Op: "get", Err: err}
		}
		if doc == nil {
			continue
		}
		out = append(out, &StudentRegistration{
			Event:        recordFromDocument(KindEvent, doc),
			RegisteredAt: reg.RegisteredAt,
		})
	}
	return out, nil
}

// Count returns the number of registrations for an event.
func (l *Ledger) Count(ctx context.Context, eventID string) (int64, error) {
	n, err := l.store.Count(ctx, RegistrationsCollection, Filter{"event_id": eventID})
	if err != nil {
		return 0, &RecordError{Collection: RegistrationsCollection, Op: "count", Err: err}
	}
	return n, nil
}
