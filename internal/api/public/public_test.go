package public

import (
	"context"
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

	"github.com/lgu-records/issuance-registry/internal/config"
	"github.com/lgu-records/issuance-registry/internal/services"
	"github.com/lgu-records/issuance-registry/internal/storage"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func getJSON(w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

// ---------------------------------------------------------------------------
// Portal
// ---------------------------------------------------------------------------

type noBlobs struct{}

func (noBlobs) Store(context.Context, string, io.Reader, int64) (string, error) { return "", nil }
func (noBlobs) Delete(context.Context, string) (bool, error)                    { return false, nil }
func (noBlobs) Exists(context.Context, string) (bool, error)                    { return true, nil }
func (noBlobs) URLFor(_ context.Context, key string) (string, error)            { return "/files/" + key, nil }

func newPortalRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := services.NewIssuanceService(sqlx.NewDb(db, "postgres"), noBlobs{}, nil, config.RecordsConfig{RejectLineageCycles: true})
	h := NewPortalHandlers(svc, 12)

	r := gin.New()
	r.GET("/public/:kind", h.List)
	r.GET("/public/:kind/:id", h.Get)
	return mock, r
}

var issuanceCols = []string{
	"id", "number", "title", "legal_basis", "issuing_authority", "committee_details",
	"date_approved", "attested_by", "approved_by", "official_date", "effectivity_date",
	"status_id", "status_name", "is_active", "file_path", "parent_id", "parent_number",
	"relationship_type", "remarks", "created_at", "updated_at",
}

func TestPortalList_SearchAndYear(t *testing.T) {
	mock, r := newPortalRouter(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM executive_orders i WHERE 1=1 AND \(i.eo_number ILIKE \$1 OR i.title ILIKE \$1\) AND EXTRACT\(YEAR FROM i.date_issued\) = \$2`).
		WithArgs("%flood%", 2026).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`LIMIT \$3 OFFSET \$4`).
		WithArgs("%flood%", 2026, 12, 12).
		WillReturnRows(sqlmock.NewRows(issuanceCols))
	mock.ExpectQuery(`SELECT DISTINCT EXTRACT\(YEAR FROM date_issued\)::int AS year FROM executive_orders`).
		WillReturnRows(sqlmock.NewRows([]string{"year"}).AddRow(2026).AddRow(2025))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/public/executive-orders?search=flood&year=2026&page=2&per_page=50", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if years := resp["years"].([]interface{}); len(years) != 2 || years[0] != float64(2026) {
		t.Errorf("years = %v", years)
	}
	if pg := resp["pagination"].(map[string]interface{}); pg["per_page"] != float64(12) || pg["page"] != float64(2) {
		t.Errorf("pagination = %v, want fixed page size 12", pg)
	}
	if filters := resp["filters"].(map[string]interface{}); filters["year"] != float64(2026) || filters["search"] != "flood" {
		t.Errorf("filters = %v", filters)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestPortalList_UnknownKind(t *testing.T) {
	_, r := newPortalRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/public/resolutions", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPortalGet_NotFound(t *testing.T) {
	mock, r := newPortalRouter(t)
	mock.ExpectQuery(`FROM ordinances i .*WHERE i.id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(issuanceCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/public/ordinances/3", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// File route
// ---------------------------------------------------------------------------

type fakeDocuments struct {
	backend string
	objects map[string]string
	opened  []string
}

func (f *fakeDocuments) Backend() string { return f.backend }

func (f *fakeDocuments) Open(_ context.Context, key string) (io.ReadCloser, *storage.Object, error) {
	f.opened = append(f.opened, key)
	body, ok := f.objects[key]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}
	obj := &storage.Object{Key: key, Size: int64(len(body)), SHA256: "abc123", ContentType: storage.PDFContentType, ModifiedAt: time.Now()}
	return io.NopCloser(strings.NewReader(body)), obj, nil
}

func (f *fakeDocuments) URLFor(_ context.Context, key string) (string, error) {
	return "https://records.example.blob.core.windows.net/docs/" + key + "?sig=x", nil
}

func newFileRouter(docs Documents) *gin.Engine {
	r := gin.New()
	r.GET("/files/*filepath", ServeFileHandler(docs))
	return r
}

func TestServeFile_StreamsLocalDocument(t *testing.T) {
	docs := &fakeDocuments{backend: "local", objects: map[string]string{"eos/a.pdf": "%PDF-1.7 body"}}
	r := newFileRouter(docs)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/eos/a.pdf", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "%PDF-1.7 body" {
		t.Errorf("body = %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := w.Header().Get("X-Checksum-SHA256"); got != "abc123" {
		t.Errorf("X-Checksum-SHA256 = %q", got)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="a.pdf"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestServeFile_MissingLocalDocument(t *testing.T) {
	r := newFileRouter(&fakeDocuments{backend: "local", objects: map[string]string{}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/eos/gone.pdf", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestServeFile_RedirectsForCloudBackends(t *testing.T) {
	docs := &fakeDocuments{backend: "azure"}
	r := newFileRouter(docs)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/ordinances/b.pdf", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); !strings.HasSuffix(loc, "/docs/ordinances/b.pdf?sig=x") {
		t.Errorf("Location = %q", loc)
	}
	if len(docs.opened) != 0 {
		t.Error("cloud documents must not be streamed through the server")
	}
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"/eos/a.pdf", "eos/a.pdf", true},
		{"/irrs/b.pdf", "irrs/b.pdf", true},
		{"/", "", false},
		{"", "", false},
		{"/eos/../../etc/passwd", "", false},
		{"/../secret.pdf", "", false},
		{"/eos//a.pdf", "", false},
	}
	for _, tt := range tests {
		got, ok := cleanKey(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("cleanKey(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}
