package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/lgu-records/issuance-registry/internal/auth"
	"github.com/lgu-records/issuance-registry/internal/config"
	"github.com/lgu-records/issuance-registry/internal/storage"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Setenv("RMS_JWT_SECRET", "test-router-jwt-secret-that-is-32chars!")
	os.Exit(m.Run())
}

// ---------------------------------------------------------------------------
// minimal storage.Storage for readiness and file route tests
// ---------------------------------------------------------------------------

type memStorage struct {
	pingErr error
	objects map[string]string
}

func (m *memStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (*storage.Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.objects[key] = string(data)
	return &storage.Object{Key: key, Size: int64(len(data))}, nil
}

func (m *memStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memStorage) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "http://localhost:8080/files/" + key, nil
}

func (m *memStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStorage) Stat(_ context.Context, key string) (*storage.Object, error) {
	body, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.Object{Key: key, Size: int64(len(body)), ContentType: storage.PDFContentType}, nil
}

func (m *memStorage) Ping(_ context.Context) error { return m.pingErr }

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string]string{}}
}

// ---------------------------------------------------------------------------
// healthCheckHandler
// ---------------------------------------------------------------------------

func newHealthDB(t *testing.T, pingOK bool) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if pingOK {
		mock.ExpectPing()
	} else {
		mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	}
	return db
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return body
}

func TestHealthCheckHandler_Healthy(t *testing.T) {
	db := newHealthDB(t, true)

	r := gin.New()
	r.GET("/health", healthCheckHandler(db))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if body := decode(t, w); body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
}

func TestHealthCheckHandler_Unhealthy(t *testing.T) {
	db := newHealthDB(t, false)

	r := gin.New()
	r.GET("/health", healthCheckHandler(db))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if body := decode(t, w); body["status"] != "unhealthy" {
		t.Errorf("status = %v, want unhealthy", body["status"])
	}
}

// ---------------------------------------------------------------------------
// readinessHandler
// ---------------------------------------------------------------------------

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name    string
		pingOK  bool
		blobErr error
		code    int
		storage interface{}
	}{
		{name: "ready", pingOK: true, code: http.StatusOK, storage: "healthy"},
		{name: "database down", pingOK: false, code: http.StatusServiceUnavailable, storage: nil},
		{name: "storage down", pingOK: true, blobErr: storage.ErrNotFound, code: http.StatusServiceUnavailable, storage: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newHealthDB(t, tt.pingOK)
			backend := newMemStorage()
			backend.pingErr = tt.blobErr
			blobs := storage.NewBlobStore(backend, "local", time.Minute)

			r := gin.New()
			r.GET("/ready", readinessHandler(db, blobs))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d", w.Code, tt.code)
			}
			body := decode(t, w)
			if body["ready"] != (tt.code == http.StatusOK) {
				t.Errorf("ready = %v", body["ready"])
			}
			checks := body["checks"].(map[string]interface{})
			if checks["storage"] != tt.storage {
				t.Errorf("checks.storage = %v, want %v", checks["storage"], tt.storage)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// versionHandler
// ---------------------------------------------------------------------------

func TestVersionHandler(t *testing.T) {
	r := gin.New()
	r.GET("/version", versionHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	body := decode(t, w)
	if body["version"] != Version {
		t.Errorf("version = %v, want %s", body["version"], Version)
	}
	if body["api_version"] != "v1" {
		t.Errorf("api_version = %v", body["api_version"])
	}
}

// ---------------------------------------------------------------------------
// LoggerMiddleware
// ---------------------------------------------------------------------------

func TestLoggerMiddleware_PassesThrough(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		cfg := &config.Config{}
		cfg.Logging.Format = format

		r := gin.New()
		r.Use(LoggerMiddleware(cfg))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusTeapot) })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if w.Code != http.StatusTeapot {
			t.Errorf("%s: status = %d, want 418", format, w.Code)
		}
	}
}

// ---------------------------------------------------------------------------
// CORSMiddleware
// ---------------------------------------------------------------------------

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"https://records.example.gov.ph"}

	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://records.example.gov.ph")
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://records.example.gov.ph" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PATCH") {
		t.Errorf("Access-Control-Allow-Methods = %q, want PATCH included", got)
	}
}

func TestCORSMiddleware_ConfiguredMethods(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"*"}
	cfg.Security.CORS.AllowedMethods = []string{"GET"}

	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET" {
		t.Errorf("Access-Control-Allow-Methods = %q, want GET", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestCORSMiddleware_DisallowedOrigin(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"https://allowed.example"}

	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("expected no Access-Control-Allow-Origin header for disallowed origin")
	}
}

func TestCORSMiddleware_PreflightOptions(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"*"}

	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.OPTIONS("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204 for OPTIONS preflight", w.Code)
	}
}

// ---------------------------------------------------------------------------
// NewRouter wiring
// ---------------------------------------------------------------------------

func newTestRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine, *memStorage) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.Records = config.RecordsConfig{
		MaxUploadSizeMB:          10,
		MaxOrdinanceUploadSizeMB: 20,
		RejectLineageCycles:      true,
		AdminPageSize:            10,
		PublicPageSize:           12,
	}
	backend := newMemStorage()
	router, bg := NewRouter(cfg, sqlx.NewDb(db, "postgres"), storage.NewBlobStore(backend, "local", time.Minute), nil)
	t.Cleanup(bg.Shutdown)
	return mock, router, backend
}

func TestNewRouter_AdminRoutesRequireToken(t *testing.T) {
	_, r, _ := newTestRouter(t)

	for _, target := range []string{
		"/api/v1/records/executive-orders",
		"/api/v1/irrs",
		"/api/v1/admin/dashboard",
		"/api/v1/admin/audit-logs",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s = %d, want 401", target, w.Code)
		}
	}
}

func TestNewRouter_AuthenticatedRequest(t *testing.T) {
	mock, r, _ := newTestRouter(t)
	mock.ExpectQuery(`FROM departments ORDER BY name`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "created_at", "updated_at"}).
			AddRow(int64(1), "CMO", "City Mayor's Office", time.Now(), time.Now()))

	token, err := auth.GenerateJWT("clerk-7", "clerk@city.example.gov.ph", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/departments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID response header")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestNewRouter_PublicRoutesAreOpen(t *testing.T) {
	_, r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/public/resolutions", nil))

	// reaches the handler, which rejects the unknown record type
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", w.Header().Get("X-Frame-Options"))
	}
}

func TestNewRouter_FilesAllowSameOriginFraming(t *testing.T) {
	_, r, backend := newTestRouter(t)
	backend.objects["eos/a.pdf"] = "%PDF-1.7"

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/eos/a.pdf", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Frame-Options") != "SAMEORIGIN" {
		t.Errorf("X-Frame-Options = %q, want SAMEORIGIN", w.Header().Get("X-Frame-Options"))
	}
	if w.Body.String() != "%PDF-1.7" {
		t.Errorf("body = %q", w.Body.String())
	}
}
