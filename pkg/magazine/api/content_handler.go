package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/college-magazine/pkg/magazine"
)

const dateLayout = "2006-01-02"

// RecordResponse is the response body for a news item, event or gallery entry
type RecordResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	EventDate string    `json:"date,omitempty"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ImageID   *string   `json:"image_id"`
	ImageURL  string    `json:"image_url,omitempty"`
}

func newRecordResponse(rec *magazine.Record) RecordResponse {
	resp := RecordResponse{
		ID:        rec.ID,
		Kind:      string(rec.Kind),
		Title:     rec.Title,
		Body:      rec.Body,
		Location:  rec.Location,
		CreatedAt: rec.CreatedAt,
	}
	if rec.EventDate != nil {
		resp.EventDate = rec.EventDate.Format(dateLayout)
	}
	if rec.HasImage() {
		id := rec.ImageID
		resp.ImageID = &id
		resp.ImageURL = fmt.Sprintf("/%s/image/%s", rec.Kind, rec.ImageID)
	}
	return resp
}

func newRecordResponses(recs []*magazine.Record) []RecordResponse {
	out := make([]RecordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, newRecordResponse(rec))
	}
	return out
}

// listOptions reads sort, order and limit. Public event listings default to
// the event date, newest first.
func listOptions(kind magazine.Kind, r *http.Request) (magazine.ListOptions, error) {
	var opts magazine.ListOptions
	q := r.URL.Query()

	field := q.Get("sort")
	if field == "" && kind == magazine.KindEvent {
		field = "date"
	}
	if field != "" {
		if strings.HasPrefix(field, "$") || field == "password" {
			return opts, fmt.Errorf("invalid sort field %q: %w", field, magazine.ErrValidation)
		}
		dir := magazine.Descending
		switch strings.ToLower(q.Get("order")) {
		case "", "desc":
		case "asc":
			dir = magazine.Ascending
		default:
			return opts, fmt.Errorf("order must be asc or desc: %w", magazine.ErrValidation)
		}
		opts.Sort = &magazine.Sort{Field: field, Direction: dir}
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("limit must be a non-negative integer: %w", magazine.ErrValidation)
		}
		opts.Limit = n
	}
	return opts, nil
}

func (s *Server) handleList(kind magazine.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := listOptions(kind, r)
		if err != nil {
			s.writeError(w, r, "Invalid listing parameters", err)
			return
		}
		recs, err := s.svc.Content().List(r.Context(), kind, opts)
		if err != nil {
			s.writeError(w, r, "Failed to list "+string(kind), err)
			return
		}
		render.JSON(w, r, newRecordResponses(recs))
	}
}

func (s *Server) handleGet(kind magazine.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := s.svc.Content().Get(r.Context(), kind, chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, "Failed to get record", err)
			return
		}
		render.JSON(w, r, newRecordResponse(rec))
	}
}

// handleImage streams a stored image with its content type.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	blob, err := s.svc.Content().Image(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, magazine.ErrBlobNotFound) {
			http.Error(w, "Image not found", http.StatusNotFound)
			return
		}
		s.logger.Error("Failed to load image", "blob_id", chi.URLParam(r, "id"), "error", err)
		http.Error(w, "Failed to load image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(blob.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", blob.FileName))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Data)
}

// parseContentForm reads the record fields and the optional "image" file of
// a multipart or urlencoded form. The returned closer releases the file.
func (s *Server) parseContentForm(kind magazine.Kind, r *http.Request) (magazine.RecordFields, *magazine.Upload, func(), error) {
	var fields magazine.RecordFields
	noop := func() {}

	if err := r.ParseMultipartForm(s.maxBody); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return fields, nil, noop, err
	}

	fields.Title = r.FormValue("title")
	switch kind {
	case magazine.KindNews:
		fields.Body = r.FormValue("content")
	default:
		fields.Body = r.FormValue("description")
	}
	if kind == magazine.KindEvent {
		fields.Location = r.FormValue("location")
		if v := r.FormValue("date"); v != "" {
			d, err := time.Parse(dateLayout, v)
			if err != nil {
				return fields, nil, noop, fmt.Errorf("date must be YYYY-MM-DD: %w", magazine.ErrValidation)
			}
			fields.EventDate = d
		}
	}
	if fields.Body == "" {
		fields.Body = r.FormValue("body")
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return fields, nil, noop, nil
		}
		return fields, nil, noop, err
	}
	if header.Filename == "" {
		file.Close()
		return fields, nil, noop, nil
	}
	return fields, uploadFrom(file, header), func() { file.Close() }, nil
}

func uploadFrom(file multipart.File, header *multipart.FileHeader) *magazine.Upload {
	return &magazine.Upload{
		Reader:      file,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}
}

func (s *Server) handleCreate(kind magazine.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, upload, done, err := s.parseContentForm(kind, r)
		if err != nil {
			s.writeError(w, r, "Invalid form", err)
			return
		}
		defer done()

		rec, err := s.svc.Content().Create(r.Context(), kind, fields, upload)
		if err != nil {
			s.writeError(w, r, "Failed to create "+string(kind), err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, newRecordResponse(rec))
	}
}

func (s *Server) handleUpdate(kind magazine.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, upload, done, err := s.parseContentForm(kind, r)
		if err != nil {
			s.writeError(w, r, "Invalid form", err)
			return
		}
		defer done()

		rec, err := s.svc.Content().Update(r.Context(), kind, chi.URLParam(r, "id"), fields, upload)
		if err != nil {
			s.writeError(w, r, "Failed to update "+string(kind), err)
			return
		}
		render.JSON(w, r, newRecordResponse(rec))
	}
}

func (s *Server) handleDelete(kind magazine.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.svc.Content().Delete(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
			s.writeError(w, r, "Failed to delete "+string(kind), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
