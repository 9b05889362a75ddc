package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/college-magazine/pkg/magazine"
)

// StudentResponse is the public view of a student account
type StudentResponse struct {
	ID     string `json:"id"`
	RollNo string `json:"roll_no"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// AdminDashboardResponse holds the per-collection totals
type AdminDashboardResponse struct {
	Counts *magazine.DashboardCounts `json:"counts"`
}

// StudentDashboardResponse is what a logged-in student sees first
type StudentDashboardResponse struct {
	StudentName    string           `json:"student_name"`
	LatestNews     []RecordResponse `json:"latest_news"`
	UpcomingEvents []RecordResponse `json:"upcoming_events"`
	LatestGallery  []RecordResponse `json:"latest_gallery"`
}

// MyEventResponse is one event the student registered for
type MyEventResponse struct {
	Event        RecordResponse `json:"event"`
	RegisteredAt string         `json:"registered_at"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if !s.admin.Verify(r.FormValue("username"), r.FormValue("password")) {
		s.logger.Warn("failed admin login", "remote_addr", r.RemoteAddr)
		writeMessage(w, r, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err := s.sessions.Issue(w, Session{Admin: true}); err != nil {
		s.writeError(w, r, "Failed to start session", err)
		return
	}
	render.JSON(w, r, map[string]string{"message": "Login successful"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w)
	render.JSON(w, r, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	counts, err := s.svc.Content().Counts(r.Context())
	if err != nil {
		s.writeError(w, r, "Failed to load dashboard", err)
		return
	}
	render.JSON(w, r, AdminDashboardResponse{Counts: counts})
}

func (s *Server) handleEventRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := s.svc.Ledger().ListForEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "Failed to list registrations", err)
		return
	}
	render.JSON(w, r, regs)
}

func (s *Server) handleStudentRegister(w http.ResponseWriter, r *http.Request) {
	account, err := s.svc.Accounts().Create(r.Context(), magazine.CreateAccountRequest{
		RollNo:   r.FormValue("roll_no"),
		Email:    r.FormValue("email"),
		Name:     r.FormValue("name"),
		Password: r.FormValue("password"),
	})
	if err != nil {
		s.writeError(w, r, "Registration failed", err)
		return
	}
	if err := s.sessions.Issue(w, Session{StudentID: account.ID, StudentName: account.Name}); err != nil {
		s.writeError(w, r, "Failed to start session", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, studentResponse(account))
}

func (s *Server) handleStudentLogin(w http.ResponseWriter, r *http.Request) {
	account, err := s.svc.Accounts().Authenticate(r.Context(), r.FormValue("roll_no"), r.FormValue("password"))
	if err != nil {
		if errors.Is(err, magazine.ErrInvalidCredentials) {
			writeMessage(w, r, http.StatusUnauthorized, "Invalid roll number or password")
			return
		}
		s.writeError(w, r, "Login failed", err)
		return
	}
	if err := s.sessions.Issue(w, Session{StudentID: account.ID, StudentName: account.Name}); err != nil {
		s.writeError(w, r, "Failed to start session", err)
		return
	}
	render.JSON(w, r, studentResponse(account))
}

func studentResponse(a *magazine.StudentAccount) StudentResponse {
	return StudentResponse{ID: a.ID, RollNo: a.RollNo, Email: a.Email, Name: a.Name}
}

func (s *Server) handleStudentDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	content := s.svc.Content()

	news, err := content.List(ctx, magazine.KindNews, magazine.ListOptions{Limit: 3})
	if err != nil {
		s.writeError(w, r, "Failed to load dashboard", err)
		return
	}
	events, err := content.UpcomingEvents(ctx, 3)
	if err != nil {
		s.writeError(w, r, "Failed to load dashboard", err)
		return
	}
	gallery, err := content.List(ctx, magazine.KindGallery, magazine.ListOptions{Limit: 6})
	if err != nil {
		s.writeError(w, r, "Failed to load dashboard", err)
		return
	}

	render.JSON(w, r, StudentDashboardResponse{
		StudentName:    SessionFrom(ctx).StudentName,
		LatestNews:     newRecordResponses(news),
		UpcomingEvents: newRecordResponses(events),
		LatestGallery:  newRecordResponses(gallery),
	})
}

func (s *Server) handleMyEvents(w http.ResponseWriter, r *http.Request) {
	regs, err := s.svc.Ledger().ListForStudent(r.Context(), SessionFrom(r.Context()).StudentID)
	if err != nil {
		s.writeError(w, r, "Failed to list your events", err)
		return
	}
	out := make([]MyEventResponse, 0, len(regs))
	for _, reg := range regs {
		out = append(out, MyEventResponse{
			Event:        newRecordResponse(reg.Event),
			RegisteredAt: reg.RegisteredAt.Format("2006-01-02 15:04"),
		})
	}
	render.JSON(w, r, out)
}

// handleRegisterForEvent answers with {success, message} in every case.
func (s *Server) handleRegisterForEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	studentID := SessionFrom(r.Context()).StudentID

	_, err := s.svc.Ledger().Register(r.Context(), eventID, studentID)
	switch {
	case err == nil:
		writeResult(w, r, http.StatusOK, true, "Successfully registered for the event!")
	case errors.Is(err, magazine.ErrEventNotFound):
		writeResult(w, r, http.StatusNotFound, false, "Event not found")
	case errors.Is(err, magazine.ErrAlreadyRegistered):
		writeResult(w, r, http.StatusBadRequest, false, "You are already registered for this event")
	default:
		s.logger.Error("event registration failed", "event_id", eventID, "student_id", studentID, "error", err)
		writeResult(w, r, http.StatusInternalServerError, false, "An error occurred during registration")
	}
}
