package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tendant/college-magazine/pkg/magazine"
	"github.com/tendant/college-magazine/pkg/magazine/repo/memory"
	memorystorage "github.com/tendant/college-magazine/pkg/magazine/storage/memory"
)

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	handler http.Handler
	svc     *magazine.Service
	blobs   *memorystorage.Backend
}

// setupServerTest creates a Server over in-memory stores
func setupServerTest(t *testing.T) *testEnv {
	t.Helper()
	blobs := memorystorage.New()
	svc, err := magazine.New(context.Background(),
		magazine.WithRecordStore(memory.New()),
		magazine.WithBlobStore("memory", blobs),
		magazine.WithClock(func() time.Time { return testNow }),
		magazine.WithPasswordCost(bcrypt.MinCost),
	)
	require.NoError(t, err)

	srv := NewServer(svc, Options{
		Admin:            magazine.AdminCredentials{Username: "admin", Password: "admin123"},
		Sessions:         NewSessions("test-secret", time.Hour, false),
		MaxContentLength: 1 << 20,
	})
	return &testEnv{handler: srv.Routes(), svc: svc, blobs: blobs}
}

func (e *testEnv) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func cookieFrom(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func formRequest(method, target string, values url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// multipartRequest builds a multipart form; an empty fileName omits the image part.
func multipartRequest(t *testing.T, method, target string, fields map[string]string, fileName string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("image", fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (e *testEnv) adminLogin(t *testing.T) *http.Cookie {
	t.Helper()
	w := e.do(formRequest(http.MethodPost, "/admin/login", url.Values{
		"username": {"admin"},
		"password": {"admin123"},
	}))
	require.Equal(t, http.StatusOK, w.Code)
	return cookieFrom(t, w)
}

func (e *testEnv) studentSignup(t *testing.T, rollNo, email string) *http.Cookie {
	t.Helper()
	w := e.do(formRequest(http.MethodPost, "/student/register", url.Values{
		"roll_no":  {rollNo},
		"email":    {email},
		"name":     {"Asha"},
		"password": {"secret"},
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return cookieFrom(t, w)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestServer_Health(t *testing.T) {
	env := setupServerTest(t)
	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestServer_DefaultSessions(t *testing.T) {
	svc, err := magazine.New(context.Background(),
		magazine.WithRecordStore(memory.New()),
		magazine.WithBlobStore("memory", memorystorage.New()),
	)
	require.NoError(t, err)

	var handler http.Handler
	require.NotPanics(t, func() {
		handler = NewServer(svc, Options{
			Admin: magazine.AdminCredentials{Username: "admin", Password: "admin123"},
		}).Routes()
	})
	env := &testEnv{handler: handler, svc: svc}

	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	admin := env.adminLogin(t)
	w = env.do(httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil), admin)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_AdminLogin(t *testing.T) {
	env := setupServerTest(t)

	t.Run("wrong password", func(t *testing.T) {
		w := env.do(formRequest(http.MethodPost, "/admin/login", url.Values{
			"username": {"admin"},
			"password": {"nope"},
		}))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("dashboard requires admin", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Please login as admin", decode[ErrorResponse](t, w).Error)
	})

	t.Run("student session is not admin", func(t *testing.T) {
		cookie := env.studentSignup(t, "23F01A0540", "asha@example.edu")
		w := env.do(httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil), cookie)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("dashboard counts", func(t *testing.T) {
		cookie := env.adminLogin(t)
		w := env.do(multipartRequest(t, http.MethodPost, "/admin/news", map[string]string{
			"title":   "Library hours",
			"content": "Open late during exams",
		}, "", nil), cookie)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = env.do(httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil), cookie)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[AdminDashboardResponse](t, w)
		assert.Equal(t, int64(1), resp.Counts.News)
		assert.Equal(t, int64(1), resp.Counts.Students)
		assert.Equal(t, int64(0), resp.Counts.Events)
	})

	t.Run("forged cookie is anonymous", func(t *testing.T) {
		forged := NewSessions("other-secret", time.Hour, false)
		rec := httptest.NewRecorder()
		require.NoError(t, forged.Issue(rec, Session{Admin: true}))
		w := env.do(httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil), cookieFrom(t, rec))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestServer_EventLifecycle(t *testing.T) {
	env := setupServerTest(t)
	admin := env.adminLogin(t)
	png := []byte("\x89PNG fake image bytes")

	w := env.do(multipartRequest(t, http.MethodPost, "/admin/events", map[string]string{
		"title":       "Tech Fest",
		"description": "Annual technical festival",
		"date":        "2025-03-15",
		"location":    "Main Auditorium",
	}, "tech.png", png), admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	event := decode[RecordResponse](t, w)
	require.NotNil(t, event.ImageID)
	assert.Equal(t, "2025-03-15", event.EventDate)
	assert.Equal(t, "/events/image/"+*event.ImageID, event.ImageURL)

	t.Run("public list and get", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, "/events/", nil))
		require.Equal(t, http.StatusOK, w.Code)
		list := decode[[]RecordResponse](t, w)
		require.Len(t, list, 1)
		assert.Equal(t, "Tech Fest", list[0].Title)

		w = env.do(httptest.NewRequest(http.MethodGet, "/events/"+event.ID, nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Main Auditorium", decode[RecordResponse](t, w).Location)
	})

	t.Run("image bytes", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, event.ImageURL, nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "tech.png")
		assert.Equal(t, png, w.Body.Bytes())
	})

	t.Run("student registers once", func(t *testing.T) {
		student := env.studentSignup(t, "23F01A0541", "ravi@example.edu")

		w := env.do(httptest.NewRequest(http.MethodPost, "/events/register/"+event.ID, nil), student)
		require.Equal(t, http.StatusOK, w.Code)
		res := decode[RegistrationResult](t, w)
		assert.True(t, res.Success)
		assert.Equal(t, "Successfully registered for the event!", res.Message)

		w = env.do(httptest.NewRequest(http.MethodPost, "/events/register/"+event.ID, nil), student)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		res = decode[RegistrationResult](t, w)
		assert.False(t, res.Success)
		assert.Equal(t, "You are already registered for this event", res.Message)

		w = env.do(httptest.NewRequest(http.MethodGet, "/student/my-events", nil), student)
		require.Equal(t, http.StatusOK, w.Code)
		mine := decode[[]MyEventResponse](t, w)
		require.Len(t, mine, 1)
		assert.Equal(t, event.ID, mine[0].Event.ID)

		w = env.do(httptest.NewRequest(http.MethodGet, "/admin/events/"+event.ID+"/registrations", nil), admin)
		require.Equal(t, http.StatusOK, w.Code)
		regs := decode[[]magazine.EventRegistrant](t, w)
		require.Len(t, regs, 1)
		assert.Equal(t, "23F01A0541", regs[0].RollNo)
	})

	t.Run("update without image keeps image", func(t *testing.T) {
		w := env.do(multipartRequest(t, http.MethodPut, "/admin/events/"+event.ID, map[string]string{
			"title":       "Tech Fest 2025",
			"description": "Bigger",
			"date":        "2025-03-16",
			"location":    "Open Grounds",
		}, "", nil), admin)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		updated := decode[RecordResponse](t, w)
		assert.Equal(t, "Tech Fest 2025", updated.Title)
		require.NotNil(t, updated.ImageID)
		assert.Equal(t, *event.ImageID, *updated.ImageID)
	})

	t.Run("delete removes image", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodDelete, "/admin/events/"+event.ID, nil), admin)
		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, 0, env.blobs.Len())

		w = env.do(httptest.NewRequest(http.MethodGet, event.ImageURL, nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "Image not found")

		w = env.do(httptest.NewRequest(http.MethodGet, "/events/"+event.ID, nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestServer_CreateValidation(t *testing.T) {
	env := setupServerTest(t)
	admin := env.adminLogin(t)

	tests := []struct {
		name   string
		target string
		fields map[string]string
		status int
	}{
		{"missing title", "/admin/news", map[string]string{"content": "x"}, http.StatusBadRequest},
		{"event without date", "/admin/events", map[string]string{"title": "Fest"}, http.StatusBadRequest},
		{"bad date", "/admin/events", map[string]string{"title": "Fest", "date": "15/03/2025"}, http.StatusBadRequest},
		{"gallery ok", "/admin/gallery", map[string]string{"title": "Sunset", "description": "Campus"}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(multipartRequest(t, http.MethodPost, tt.target, tt.fields, "", nil), admin)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestServer_RejectedUploadCreatesRecordWithoutImage(t *testing.T) {
	env := setupServerTest(t)
	admin := env.adminLogin(t)

	w := env.do(multipartRequest(t, http.MethodPost, "/admin/gallery", map[string]string{
		"title": "Poster",
	}, "poster.exe", []byte("MZ")), admin)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Nil(t, decode[RecordResponse](t, w).ImageID)
	assert.Equal(t, 0, env.blobs.Len())
}

func TestServer_RegisterForEvent(t *testing.T) {
	env := setupServerTest(t)

	t.Run("requires login", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodPost, "/events/register/abc", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		res := decode[RegistrationResult](t, w)
		assert.False(t, res.Success)
		assert.Equal(t, "Please login first", res.Message)
	})

	t.Run("missing event", func(t *testing.T) {
		student := env.studentSignup(t, "23F01A0542", "kiran@example.edu")
		w := env.do(httptest.NewRequest(http.MethodPost, "/events/register/does-not-exist", nil), student)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Event not found", decode[RegistrationResult](t, w).Message)
	})
}

func TestServer_StudentAccounts(t *testing.T) {
	env := setupServerTest(t)
	env.studentSignup(t, "23F01A0543", "meena@example.edu")

	t.Run("duplicate roll number", func(t *testing.T) {
		w := env.do(formRequest(http.MethodPost, "/student/register", url.Values{
			"roll_no":  {"23F01A0543"},
			"email":    {"other@example.edu"},
			"name":     {"Other"},
			"password": {"pw"},
		}))
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid roll number", func(t *testing.T) {
		w := env.do(formRequest(http.MethodPost, "/student/register", url.Values{
			"roll_no":  {"12345"},
			"email":    {"x@example.edu"},
			"name":     {"X"},
			"password": {"pw"},
		}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("login", func(t *testing.T) {
		w := env.do(formRequest(http.MethodPost, "/student/login", url.Values{
			"roll_no":  {"23F01A0543"},
			"password": {"wrong"},
		}))
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = env.do(formRequest(http.MethodPost, "/student/login", url.Values{
			"roll_no":  {"23F01A0543"},
			"password": {"secret"},
		}))
		require.Equal(t, http.StatusOK, w.Code)
		cookie := cookieFrom(t, w)

		w = env.do(httptest.NewRequest(http.MethodGet, "/student/dashboard", nil), cookie)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Asha", decode[StudentDashboardResponse](t, w).StudentName)
	})

	t.Run("logout clears cookie", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodPost, "/student/logout", nil))
		require.Equal(t, http.StatusOK, w.Code)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, -1, cookies[0].MaxAge)
	})
}

func TestServer_StudentDashboardShowsUpcomingOnly(t *testing.T) {
	env := setupServerTest(t)
	admin := env.adminLogin(t)
	for _, ev := range []struct{ title, date string }{
		{"Past Meetup", "2025-02-01"},
		{"Sports Day", "2025-03-10"},
		{"Today Talk", "2025-03-01"},
	} {
		w := env.do(multipartRequest(t, http.MethodPost, "/admin/events", map[string]string{
			"title": ev.title,
			"date":  ev.date,
		}, "", nil), admin)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	student := env.studentSignup(t, "23F01A0544", "dev@example.edu")
	w := env.do(httptest.NewRequest(http.MethodGet, "/student/dashboard", nil), student)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[StudentDashboardResponse](t, w)
	require.Len(t, resp.UpcomingEvents, 2)
	assert.Equal(t, "Today Talk", resp.UpcomingEvents[0].Title)
	assert.Equal(t, "Sports Day", resp.UpcomingEvents[1].Title)
}

func TestServer_ListParameters(t *testing.T) {
	env := setupServerTest(t)
	admin := env.adminLogin(t)
	for _, title := range []string{"b", "a", "c"} {
		w := env.do(multipartRequest(t, http.MethodPost, "/admin/news", map[string]string{"title": title}, "", nil), admin)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := env.do(httptest.NewRequest(http.MethodGet, "/news/?sort=title&order=asc&limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]RecordResponse](t, w)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Title)
	assert.Equal(t, "b", list[1].Title)

	w = env.do(httptest.NewRequest(http.MethodGet, "/news/?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(httptest.NewRequest(http.MethodGet, "/news/?sort=title&order=sideways", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_BodyTooLarge(t *testing.T) {
	env := setupServerTest(t)
	admin := env.adminLogin(t)

	w := env.do(multipartRequest(t, http.MethodPost, "/admin/gallery", map[string]string{
		"title": "Huge",
	}, "huge.png", bytes.Repeat([]byte{0}, 2<<20)), admin)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, 0, env.blobs.Len())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{magazine.ErrInvalidExtension, http.StatusBadRequest},
		{magazine.ErrRecordNotFound, http.StatusNotFound},
		{magazine.ErrEmailTaken, http.StatusConflict},
		{magazine.ErrInvalidCredentials, http.StatusUnauthorized},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{&magazine.StorageError{Backend: "memory", Op: "put", Err: context.DeadlineExceeded}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
}
