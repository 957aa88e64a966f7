package gallery

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/TimeFreeze025/it315-project/internal/auth"
	"github.com/TimeFreeze025/it315-project/internal/middleware"
	"github.com/TimeFreeze025/it315-project/internal/user"
)

const handlerSecret = "handler-test-secret"

type nameMap map[string]string

func (m nameMap) FullName(_ context.Context, id string) (string, error) {
	name, ok := m[id]
	if !ok {
		return "", user.ErrNotFound
	}
	return name, nil
}

type testServer struct {
	router http.Handler
	repo   *SQLiteRepository
	store  *fakeStore
}

func newTestServer(t *testing.T, maxUpload int64) *testServer {
	t.Helper()
	repo := newSQLiteRepo(t)
	store := newFakeStore()
	log := zap.NewNop()
	h := NewHandler(NewService(repo, store, log), nameMap{"U1": "Ada Lovelace"}, log, maxUpload)

	r := chi.NewRouter()
	r.Use(middleware.Authenticate(auth.NewJWTResolver(handlerSecret, "", ""), nil, log))
	r.Route("/api/v1/images", h.Routes)
	return &testServer{router: r, repo: repo, store: store}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userID != "" {
		token, err := auth.Issue(handlerSecret, auth.Caller{UserID: userID}, time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) seed(t *testing.T, userID, key string) *Image {
	t.Helper()
	name := "Seeded image"
	img, err := s.repo.Create(context.Background(), userID, Fields{ImageName: &name, ImageURL: testPublicBase + "/" + key})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	s.store.put(key, time.Now())
	return img
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHandlerStatusMapping(t *testing.T) {
	s := newTestServer(t, 1<<20)
	mine := s.seed(t, "U1", "abc123")
	path := "/api/v1/images/"

	tests := []struct {
		name       string
		method     string
		path       string
		user       string
		body       string
		wantStatus int
	}{
		{"list anonymous", http.MethodGet, path, "", "", http.StatusUnauthorized},
		{"list", http.MethodGet, path, "U1", "", http.StatusOK},
		{"get bad id", http.MethodGet, path + "abc", "U1", "", http.StatusBadRequest},
		{"get zero id", http.MethodGet, path + "0", "U1", "", http.StatusBadRequest},
		{"get foreign", http.MethodGet, path + itoa(mine.ID), "U2", "", http.StatusNotFound},
		{"get missing", http.MethodGet, path + "9999", "U1", "", http.StatusNotFound},
		{"get own", http.MethodGet, path + itoa(mine.ID), "U1", "", http.StatusOK},
		{"rename invalid json", http.MethodPatch, path + itoa(mine.ID), "U1", "{", http.StatusBadRequest},
		{"rename short", http.MethodPatch, path + itoa(mine.ID), "U1", `{"imageName":"abc"}`, http.StatusBadRequest},
		{"rename foreign", http.MethodPatch, path + itoa(mine.ID), "U2", `{"imageName":"Stolen image"}`, http.StatusForbidden},
		{"rename missing", http.MethodPatch, path + "9999", "U1", `{"imageName":"Ghost image"}`, http.StatusNotFound},
		{"delete anonymous", http.MethodDelete, path + itoa(mine.ID), "", "", http.StatusUnauthorized},
		{"delete foreign", http.MethodDelete, path + itoa(mine.ID), "U2", "", http.StatusForbidden},
		{"delete missing", http.MethodDelete, path + "9999", "U1", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			rec := s.do(t, tt.method, tt.path, tt.user, body, "application/json")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	if s.store.calls() != 0 {
		t.Errorf("storage calls = %d, want 0", s.store.calls())
	}
}

func TestHandlerDeleteFlow(t *testing.T) {
	s := newTestServer(t, 1<<20)
	img := s.seed(t, "U1", "abc123")
	path := "/api/v1/images/" + itoa(img.ID)

	rec := s.do(t, http.MethodDelete, path, "U1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res DeleteResult
	decode(t, rec, &res)
	if !res.Deleted || res.ID != img.ID {
		t.Errorf("result = %+v", res)
	}
	if s.store.has("abc123") {
		t.Error("object still stored")
	}

	if rec := s.do(t, http.MethodGet, path, "U1", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, path, "U1", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rec.Code)
	}
}

func TestHandlerDeleteUpstreamFailure(t *testing.T) {
	s := newTestServer(t, 1<<20)
	img := s.seed(t, "U1", "abc123")
	s.store.deleteErr = errBoom

	rec := s.do(t, http.MethodDelete, "/api/v1/images/"+itoa(img.ID), "U1", nil, "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if _, err := s.repo.GetByID(context.Background(), img.ID); err != nil {
		t.Errorf("row should survive: %v", err)
	}
}

func TestHandlerDeleteInvalidRecord(t *testing.T) {
	s := newTestServer(t, 1<<20)
	img, err := s.repo.Create(context.Background(), "U1", Fields{ImageURL: "http://o.test/images/"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec := s.do(t, http.MethodDelete, "/api/v1/images/"+itoa(img.ID), "U1", nil, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestHandlerDetail(t *testing.T) {
	s := newTestServer(t, 1<<20)
	known := s.seed(t, "U1", "a.png")
	unknown := s.seed(t, "U9", "b.png")

	tests := []struct {
		user, id, want string
	}{
		{"U1", itoa(known.ID), "Ada Lovelace"},
		{"U9", itoa(unknown.ID), "Unknown"},
	}
	for _, tt := range tests {
		rec := s.do(t, http.MethodGet, "/api/v1/images/"+tt.id+"/detail", tt.user, nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		var d Detail
		decode(t, rec, &d)
		if d.UploaderName != tt.want {
			t.Errorf("UploaderName = %q, want %q", d.UploaderName, tt.want)
		}
		if d.UserID != tt.user {
			t.Errorf("UserID = %q, want %q", d.UserID, tt.user)
		}
	}
}

func TestHandlerRename(t *testing.T) {
	s := newTestServer(t, 1<<20)
	img := s.seed(t, "U1", "a.png")

	rec := s.do(t, http.MethodPatch, "/api/v1/images/"+itoa(img.ID), "U1",
		strings.NewReader(`{"imageName":"Sunset at sea"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got Image
	decode(t, rec, &got)
	if got.ImageName == nil || *got.ImageName != "Sunset at sea" {
		t.Errorf("ImageName = %v", got.ImageName)
	}
	if !s.store.has("a.png") {
		t.Error("rename must not touch storage")
	}
}

func TestHandlerUpload(t *testing.T) {
	t.Run("creates images", func(t *testing.T) {
		s := newTestServer(t, 1<<20)
		body, ct := multipartBody(t, map[string]string{"imageName": "Holiday"}, map[string][]byte{"beach.png": pngBytes})

		rec := s.do(t, http.MethodPost, "/api/v1/images/", "U1", body, ct)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		var images []Image
		decode(t, rec, &images)
		if len(images) != 1 || images[0].UserID != "U1" || *images[0].FileName != "beach.png" {
			t.Fatalf("images = %+v", images)
		}
		if !s.store.has(mustKey(t, images[0].ImageURL)) {
			t.Error("object not stored")
		}

		list := s.do(t, http.MethodGet, "/api/v1/images/", "U1", nil, "")
		var listed []Image
		decode(t, list, &listed)
		if len(listed) != 1 || listed[0].ID != images[0].ID {
			t.Errorf("listed = %+v", listed)
		}
	})

	t.Run("replaces target", func(t *testing.T) {
		s := newTestServer(t, 1<<20)
		img := s.seed(t, "U1", "old.png")
		body, ct := multipartBody(t,
			map[string]string{"imageName": "New holiday", "imageId": itoa(img.ID)},
			map[string][]byte{"new.png": pngBytes})

		rec := s.do(t, http.MethodPost, "/api/v1/images/", "U1", body, ct)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		var images []Image
		decode(t, rec, &images)
		if images[0].ID != img.ID {
			t.Errorf("ID = %d, want %d", images[0].ID, img.ID)
		}
		if s.store.has("old.png") {
			t.Error("replaced object still stored")
		}
	})

	tests := []struct {
		name       string
		user       string
		fields     map[string]string
		files      map[string][]byte
		maxUpload  int64
		wantStatus int
	}{
		{"anonymous", "", map[string]string{"imageName": "Holiday"}, map[string][]byte{"a.png": pngBytes}, 1 << 20, http.StatusUnauthorized},
		{"no file", "U1", map[string]string{"imageName": "Holiday"}, nil, 1 << 20, http.StatusBadRequest},
		{"short name", "U1", map[string]string{"imageName": "Hol"}, map[string][]byte{"a.png": pngBytes}, 1 << 20, http.StatusBadRequest},
		{"not an image", "U1", map[string]string{"imageName": "Holiday"}, map[string][]byte{"a.txt": txtBytes}, 1 << 20, http.StatusBadRequest},
		{"bad image id", "U1", map[string]string{"imageName": "Holiday", "imageId": "x"}, map[string][]byte{"a.png": pngBytes}, 1 << 20, http.StatusBadRequest},
		{"foreign target", "U2", map[string]string{"imageName": "Holiday", "imageId": "1"}, map[string][]byte{"a.png": pngBytes}, 1 << 20, http.StatusForbidden},
		{"too large", "U1", map[string]string{"imageName": "Holiday"}, map[string][]byte{"a.png": append(pngBytes, make([]byte, 4096)...)}, 1024, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.maxUpload)
			s.seed(t, "U1", "owned.png")
			calls := s.store.calls()

			body, ct := multipartBody(t, tt.fields, tt.files)
			rec := s.do(t, http.MethodPost, "/api/v1/images/", tt.user, body, ct)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if env := decode(t, rec, nil); env.Success || env.Error == "" {
				t.Errorf("envelope = %+v, want an error", env)
			}
			if s.store.calls() != calls {
				t.Errorf("storage calls = %d, want %d", s.store.calls(), calls)
			}
		})
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
