package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/acbikash13/NepalPermit/config"
	"github.com/acbikash13/NepalPermit/middleware"
	"github.com/acbikash13/NepalPermit/model"
	"github.com/acbikash13/NepalPermit/service"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memStore is an in-memory object store.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
}

func (m *memStore) EnsureBucket(ctx context.Context, bucket string) error { return nil }

func (m *memStore) UploadFile(ctx context.Context, bucket, name string, r io.Reader, size int64, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bucket == m.failOn {
		return "", errors.New("object store unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.objects[bucket+"/"+name] = data
	return m.PublicURL(bucket, name), nil
}

func (m *memStore) GetFile(ctx context.Context, bucket, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+name]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (m *memStore) DeleteFile(ctx context.Context, bucket, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+name)
	return nil
}

func (m *memStore) PublicURL(bucket, name string) string {
	return "http://objects.test/" + bucket + "/" + name
}

// memRepo is an in-memory permit repository.
type memRepo struct {
	mu      sync.Mutex
	permits []model.Permit
	clock   time.Time
}

func (r *memRepo) Insert(ctx context.Context, p *model.Permit) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *p
	stored.ID = int64(len(r.permits) + 1)
	r.clock = r.clock.Add(time.Minute)
	stored.CreatedAt = r.clock
	r.permits = append(r.permits, stored)
	return stored.ID, nil
}

func (r *memRepo) FindByKey(ctx context.Context, key string) (*model.Permit, error) {
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, p := range r.permits {
			if p.ID == id {
				return &p, nil
			}
		}
		return nil, service.ErrPermitNotFound
	}
	return r.FindByConfirmationID(ctx, key)
}

func (r *memRepo) FindByConfirmationID(ctx context.Context, code string) (*model.Permit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.permits {
		if p.ConfirmationID == code {
			return &p, nil
		}
	}
	return nil, service.ErrPermitNotFound
}

func (r *memRepo) List(ctx context.Context) ([]model.PermitSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.PermitSummary{}
	for i := len(r.permits) - 1; i >= 0; i-- {
		p := r.permits[i]
		out = append(out, model.PermitSummary{
			ID:               p.ID,
			ConfirmationID:   p.ConfirmationID,
			FirstName:        p.FirstName,
			LastName:         p.LastName,
			Email:            p.Email,
			Country:          p.Country,
			CreatedAt:        p.CreatedAt,
			PassportPhotoURL: p.PassportPhotoURL,
		})
	}
	return out, nil
}

func (r *memRepo) Stats(ctx context.Context, now time.Time) (*model.PermitStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &model.PermitStats{Total: int64(len(r.permits)), Last30Days: int64(len(r.permits)), Last7Days: int64(len(r.permits))}, nil
}

type testApp struct {
	router   *gin.Engine
	store    *memStore
	repo     *memRepo
	sessions *service.SessionManager
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{},
		Storage: config.StorageConfig{
			PhotoBucket:      "photo",
			IDBucket:         "idphoto",
			PermitBucket:     "permits",
			MaxPhotoBytes:    5 << 20,
			MaxDocumentBytes: 10 << 20,
		},
		Auth:  config.AuthConfig{JWTSecret: "handler-test-secret", TokenExpireHours: 24},
		Users: []config.User{{Username: config.DefaultAdminUsername, Password: config.DefaultAdminPassword}},
	}

	store := &memStore{objects: make(map[string][]byte)}
	repo := &memRepo{clock: time.Now().Add(-time.Hour)}
	renderer := service.NewCertificateRenderer()
	sessions := service.NewSessionManager(cfg)

	submissions := service.NewSubmissionService(store, repo, renderer, &cfg.Storage)
	permits := service.NewPermitService(repo, store, renderer, cfg.Storage.PermitBucket, true)

	router := NewRouter(RouterConfig{
		Permits:       NewPermitHandler(submissions, permits, cfg.Storage.MaxPhotoBytes+cfg.Storage.MaxDocumentBytes),
		Admin:         NewAdminHandler(sessions, permits, &cfg.Server),
		Sessions:      sessions,
		SubmitLimiter: middleware.NewRateLimiter(1000, time.Minute),
		LoginLimiter:  middleware.NewRateLimiter(1000, time.Minute),
	})

	return &testApp{router: router, store: store, repo: repo, sessions: sessions}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

// adminCookie logs in and returns the session cookie.
func (a *testApp) adminCookie(t *testing.T) *http.Cookie {
	t.Helper()
	token, _, err := a.sessions.Login("admin", "admin123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return &http.Cookie{Name: middleware.SessionCookieName, Value: token}
}

type filePart struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func janeDoeFields() map[string]string {
	return map[string]string{
		"firstName":     "Jane",
		"lastName":      "Doe",
		"email":         "jane@x.com",
		"country":       "NP",
		"visitDuration": "5",
	}
}

func janeDoeFiles() []filePart {
	return []filePart{
		{"passportPhoto", "me.png", "image/png", pngBytes},
		{"idDocument", "passport.pdf", "application/pdf", []byte("%PDF-1.4 scan")},
	}
}

func multipartRequest(t *testing.T, fields map[string]string, files []filePart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.filename+`"`)
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(f.data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/permits", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
