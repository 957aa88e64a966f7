package gallery

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/TimeFreeze025/it315-project/internal/storage"
)

const testPublicBase = "http://objects.test/images"

type fakeObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// fakeStore is an in-memory storage.Storage that records every call.
type fakeStore struct {
	mu        sync.Mutex
	objects   map[string]fakeObject
	uploads   []string
	deletes   []string
	uploadErr error
	deleteErr error

	// failUpload makes the nth upload (1-based) fail with errBoom.
	failUpload int
}

var _ storage.Storage = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]fakeObject{}}
}

func (s *fakeStore) Upload(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, key)
	if s.uploadErr != nil {
		return s.uploadErr
	}
	if len(s.uploads) == s.failUpload {
		return errBoom
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = fakeObject{data: data, contentType: contentType, lastModified: time.Now()}
	return nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, key)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, key)
	return nil
}

func (s *fakeStore) List(context.Context) ([]storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.Object, 0, len(s.objects))
	for k, o := range s.objects {
		out = append(out, storage.Object{Key: k, Size: int64(len(o.data)), LastModified: o.lastModified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *fakeStore) PublicURL(key string) string {
	return testPublicBase + "/" + key
}

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *fakeStore) put(key string, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = fakeObject{data: []byte("x"), lastModified: modified}
}

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads) + len(s.deletes)
}

// fakeRepo is an in-memory Repository counting every call.
type fakeRepo struct {
	mu        sync.Mutex
	rows      map[int64]Image
	nextID    int64
	calls     int
	mutations int
	creates   int
	createErr error

	// failCreate makes the nth Create (1-based) fail with errBoom.
	failCreate int
}

var _ Repository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[int64]Image{}, nextID: 1}
}

// seed inserts a row directly, bypassing the call counters.
func (r *fakeRepo) seed(id int64, userID, url string) Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := "seeded image"
	img := Image{ID: id, ImageName: &name, ImageURL: url, UserID: userID, CreatedAt: time.Now()}
	r.rows[id] = img
	if id >= r.nextID {
		r.nextID = id + 1
	}
	return img
}

func (r *fakeRepo) row(id int64) (Image, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.rows[id]
	return img, ok
}

func (r *fakeRepo) Create(_ context.Context, userID string, f Fields) (*Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.creates++
	if r.createErr != nil {
		return nil, r.createErr
	}
	if r.creates == r.failCreate {
		return nil, errBoom
	}
	r.mutations++
	img := Image{ID: r.nextID, FileName: f.FileName, ImageName: f.ImageName, ImageURL: f.ImageURL, UserID: userID, CreatedAt: time.Now()}
	r.rows[img.ID] = img
	r.nextID++
	return &img, nil
}

func (r *fakeRepo) GetByID(_ context.Context, id int64) (*Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	img, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &img, nil
}

func (r *fakeRepo) GetOwned(_ context.Context, id int64, userID string) (*Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	img, ok := r.rows[id]
	if !ok || img.UserID != userID {
		return nil, ErrNotFound
	}
	return &img, nil
}

func (r *fakeRepo) ListByOwner(_ context.Context, userID string) ([]Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	var out []Image
	for _, img := range r.rows {
		if img.UserID == userID {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *fakeRepo) ListAll(context.Context) ([]Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	out := make([]Image, 0, len(r.rows))
	for _, img := range r.rows {
		out = append(out, img)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *fakeRepo) Rename(_ context.Context, id int64, userID, name string) (*Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	img, ok := r.rows[id]
	if !ok || img.UserID != userID {
		return nil, ErrNotFound
	}
	r.mutations++
	img.ImageName = &name
	r.rows[id] = img
	return &img, nil
}

func (r *fakeRepo) Replace(_ context.Context, id int64, userID string, f Fields) (*Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	img, ok := r.rows[id]
	if !ok || img.UserID != userID {
		return nil, ErrNotFound
	}
	r.mutations++
	img.FileName, img.ImageName, img.ImageURL = f.FileName, f.ImageName, f.ImageURL
	r.rows[id] = img
	return &img, nil
}

func (r *fakeRepo) Delete(_ context.Context, id int64, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	img, ok := r.rows[id]
	if !ok || img.UserID != userID {
		return false, nil
	}
	r.mutations++
	delete(r.rows, id)
	return true, nil
}

var errBoom = errors.New("boom")

// Leading bytes recognised by the media type sniffer.
var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	gifBytes = []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00")
	txtBytes = []byte("just some plain text, definitely not a picture")
)
