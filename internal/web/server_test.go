package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a7mdelbanna/classboom/internal/config"
	"github.com/a7mdelbanna/classboom/internal/core"
	"github.com/a7mdelbanna/classboom/internal/core/schemas"
)

const testInstitution = "0b6f6a52-93a4-4c4e-8a8d-5d1f0f2b7c11"

const studentsCSV = "Given Name,Surname,E-mail,Notes\n" +
	"Jane,Smith,jane@example.com,\n" +
	",Doe,,\n" +
	"Omar,Hassan,omar@example.com,late joiner\n"

// fakeCreators records created students. When block is set every create
// waits for it to close.
type fakeCreators struct {
	mu      sync.Mutex
	created []core.Record
	tenants []uuid.UUID
	block   chan struct{}
}

func (f *fakeCreators) For(entity string, institutionID uuid.UUID) (core.EntityCreator, error) {
	if entity != schemas.Students {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownEntity, entity)
	}
	return core.CreatorFunc(func(ctx context.Context, rec core.Record) (core.Entity, error) {
		if f.block != nil {
			select {
			case <-f.block:
			case <-ctx.Done():
				return core.Entity{}, ctx.Err()
			}
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.created = append(f.created, rec)
		f.tenants = append(f.tenants, institutionID)
		return core.Entity{ID: uuid.NewString()}, nil
	}), nil
}

func (f *fakeCreators) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Import: config.ImportConfig{
			MaxFileSize:   core.DefaultMaxFileSize,
			MaxRows:       core.DefaultMaxRows,
			BatchSize:     core.DefaultBatchSize,
			Concurrency:   1,
			MaxConcurrent: 2,
			MaxWaitTime:   50 * time.Millisecond,
			Timeout:       time.Minute,
			SessionTTL:    time.Hour,
		},
	}
}

type testEnv struct {
	srv      *Server
	svc      *core.Service
	creators *fakeCreators
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	svc := core.NewService(cfg.Import.ServiceOptions())
	creators := &fakeCreators{}
	srv := NewServer(svc, creators, cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, svc: svc, creators: creators}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/import/sessions", strings.NewReader(`{"entity":"students"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["session_id"])
	return body["session_id"]
}

func uploadRequest(t *testing.T, id, fileName, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import/sessions/"+id+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func importRequest(id string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/import/sessions/"+id+"/import", nil)
	req.Header.Set(InstitutionHeader, testInstitution)
	return req
}

// previewed drives a new session up to the preview step.
func (e *testEnv) previewed(t *testing.T, content string) string {
	t.Helper()
	id := e.createSession(t)
	rec := e.do(t, uploadRequest(t, id, "students.csv", content))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = e.do(t, httptest.NewRequest(http.MethodPost, "/api/import/sessions/"+id+"/preview", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return id
}

type snapshotBody struct {
	Step     string               `json:"step"`
	Headers  []string             `json:"headers"`
	Mappings []core.ColumnMapping `json:"mappings"`
	Preview  *struct {
		Summary core.PreviewSummary `json:"summary"`
	} `json:"preview"`
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) snapshotBody {
	t.Helper()
	var snap snapshotBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap), rec.Body.String())
	return snap
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// Import flow
// =============================================================================

func TestImportFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t)

	rec := env.do(t, uploadRequest(t, id, "students.csv", studentsCSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap := decodeSnapshot(t, rec)
	assert.Equal(t, string(core.StepMapping), snap.Step)
	assert.Equal(t, []string{"Given Name", "Surname", "E-mail", "Notes"}, snap.Headers)
	assert.Contains(t, snap.Mappings, core.ColumnMapping{SourceColumn: "Notes", TargetField: schemas.Notes})

	body := `{"sourceColumn":"Notes","targetField":"ignore"}`
	rec = env.do(t, httptest.NewRequest(http.MethodPut, "/api/import/sessions/"+id+"/mappings", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, decodeSnapshot(t, rec).Mappings, core.ColumnMapping{SourceColumn: "Notes", TargetField: core.Ignore})

	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/api/import/sessions/"+id+"/preview", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap = decodeSnapshot(t, rec)
	assert.Equal(t, string(core.StepPreview), snap.Step)
	require.NotNil(t, snap.Preview)
	assert.Equal(t, core.PreviewSummary{TotalRows: 3, ValidRows: 2, ExcludedRows: 1, ErrorCount: 1}, snap.Preview.Summary)

	rec = env.do(t, importRequest(id))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	result, err := env.svc.WaitForResult(waitCtx(t), id)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.SuccessfulRows)
	assert.Equal(t, 2, env.creators.count())
	assert.Equal(t, testInstitution, env.creators.tenants[0].String())

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/import/sessions/"+id+"/result", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got core.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.TotalRows)
	assert.Equal(t, 0, got.FailedRows)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/import/sessions/"+id+"/errors.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "import-errors-"+id+".csv")
	assert.Contains(t, rec.Body.String(), "3,first_name,validation,First name is required")
	assert.NotContains(t, rec.Body.String(), ",commit,")

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/import/"+id+"/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-status="complete"`)

	rec = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/import/sessions/"+id, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/import/sessions/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "UPL003", decodeError(t, rec).Code)
}

func TestReset(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.previewed(t, studentsCSV)

	rec := env.do(t, httptest.NewRequest(http.MethodPost, "/api/import/sessions/"+id+"/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeSnapshot(t, rec)
	assert.Equal(t, string(core.StepUpload), snap.Step)
	assert.Empty(t, snap.Headers)
	assert.Nil(t, snap.Preview)
}

func TestProgressStream_AfterCompletion(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.previewed(t, studentsCSV)

	require.Equal(t, http.StatusAccepted, env.do(t, importRequest(id)).Code)
	_, err := env.svc.WaitForResult(waitCtx(t), id)
	require.NoError(t, err)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/import/sessions/"+id+"/progress", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	stream := rec.Body.String()
	assert.Contains(t, stream, "id: 100\nevent: progress\n")
	assert.Contains(t, stream, `"done":true`)
	assert.True(t, strings.HasSuffix(stream, "event: complete\ndata: {}\n\n"))
}

func TestProgressStream_UnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/import/sessions/nope/progress", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelImport(t *testing.T) {
	env := newTestEnv(t, nil)
	env.creators.block = make(chan struct{})
	id := env.previewed(t, studentsCSV)

	require.Equal(t, http.StatusAccepted, env.do(t, importRequest(id)).Code)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/import/sessions/"+id+"/result", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/api/import/sessions/"+id+"/reset", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/api/import/sessions/"+id+"/cancel", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	result, err := env.svc.WaitForResult(waitCtx(t), id)
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessfulRows)
	assert.Equal(t, 2, result.FailedRows)
}

func TestStartImport_Busy(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Import.MaxConcurrent = 1
		cfg.Import.MaxWaitTime = 20 * time.Millisecond
	})
	env.creators.block = make(chan struct{})
	first := env.previewed(t, studentsCSV)
	second := env.previewed(t, studentsCSV)

	require.Equal(t, http.StatusAccepted, env.do(t, importRequest(first)).Code)

	rec := env.do(t, importRequest(second))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.Equal(t, "UPL002", decodeError(t, rec).Code)

	close(env.creators.block)
	_, err := env.svc.WaitForResult(waitCtx(t), first)
	require.NoError(t, err)
	require.NoError(t, env.svc.WaitForUploads(waitCtx(t)))

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/import/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Imports  core.UploadLimiterStatus `json:"imports"`
		Sessions int                      `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, core.UploadLimiterStatus{Active: 0, Available: 1, MaxConcurrent: 1}, status.Imports)
	assert.Equal(t, 2, status.Sessions)
}

func TestStartImport_WrongStepDoesNotWaitForSlot(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Import.MaxConcurrent = 1
		cfg.Import.MaxWaitTime = 10 * time.Second
	})
	env.creators.block = make(chan struct{})
	first := env.previewed(t, studentsCSV)
	mapping := env.createSession(t)
	require.Equal(t, http.StatusOK, env.do(t, uploadRequest(t, mapping, "students.csv", studentsCSV)).Code)

	require.Equal(t, http.StatusAccepted, env.do(t, importRequest(first)).Code)

	start := time.Now()
	rec := env.do(t, importRequest(mapping))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(env.creators.block)
	_, err := env.svc.WaitForResult(waitCtx(t), first)
	require.NoError(t, err)
}

// =============================================================================
// Errors
// =============================================================================

func TestErrorResponses(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Import.MaxFileSize = 64
	})

	tests := []struct {
		name   string
		req    func(id string) *http.Request
		status int
		code   string
	}{
		{
			name:   "unknown session",
			req:    func(string) *http.Request { return httptest.NewRequest(http.MethodGet, "/api/import/sessions/missing", nil) },
			status: http.StatusNotFound,
			code:   "UPL003",
		},
		{
			name: "bad create body",
			req: func(string) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/import/sessions", strings.NewReader("{"))
			},
			status: http.StatusBadRequest,
			code:   "UPL007",
		},
		{
			name: "unknown entity",
			req: func(string) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/import/sessions", strings.NewReader(`{"entity":"teachers"}`))
			},
			status: http.StatusNotFound,
			code:   "IMP007",
		},
		{
			name: "no file",
			req: func(id string) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/import/sessions/"+id+"/upload", strings.NewReader("x"))
			},
			status: http.StatusBadRequest,
			code:   "FILE004",
		},
		{
			name:   "file too large",
			req:    func(id string) *http.Request { return uploadRequest(t, id, "students.csv", studentsCSV) },
			status: http.StatusRequestEntityTooLarge,
			code:   "FILE001",
		},
		{
			name:   "unsupported type",
			req:    func(id string) *http.Request { return uploadRequest(t, id, "students.pdf", "a,b\n1,2\n") },
			status: http.StatusBadRequest,
			code:   "FILE003",
		},
		{
			name: "preview before upload",
			req: func(id string) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/import/sessions/"+id+"/preview", nil)
			},
			status: http.StatusConflict,
			code:   "IMP004",
		},
		{
			name: "mapping before upload",
			req: func(id string) *http.Request {
				body := `{"sourceColumn":"Email","targetField":"email"}`
				return httptest.NewRequest(http.MethodPut, "/api/import/sessions/"+id+"/mappings", strings.NewReader(body))
			},
			status: http.StatusConflict,
			code:   "IMP004",
		},
		{
			name: "mapping without target",
			req: func(id string) *http.Request {
				return httptest.NewRequest(http.MethodPut, "/api/import/sessions/"+id+"/mappings", strings.NewReader(`{"sourceColumn":"Email"}`))
			},
			status: http.StatusBadRequest,
			code:   "UPL007",
		},
		{
			name: "import without institution",
			req: func(id string) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/import/sessions/"+id+"/import", nil)
			},
			status: http.StatusBadRequest,
			code:   "UPL006",
		},
		{
			name:   "import before preview",
			req:    importRequest,
			status: http.StatusConflict,
			code:   "IMP004",
		},
		{
			name: "cancel when idle",
			req: func(id string) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/import/sessions/"+id+"/cancel", nil)
			},
			status: http.StatusConflict,
			code:   "IMP008",
		},
		{
			name: "result before import",
			req: func(id string) *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/import/sessions/"+id+"/result", nil)
			},
			status: http.StatusConflict,
			code:   "IMP008",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := env.createSession(t)
			rec := env.do(t, tt.req(id))

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decodeError(t, rec)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Message)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestUpdateMapping_UnknownColumn(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t)
	require.Equal(t, http.StatusOK, env.do(t, uploadRequest(t, id, "students.csv", studentsCSV)).Code)

	body := `{"sourceColumn":"Height","targetField":"notes"}`
	rec := env.do(t, httptest.NewRequest(http.MethodPut, "/api/import/sessions/"+id+"/mappings", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "IMP005", decodeError(t, rec).Code)

	body = `{"sourceColumn":"Notes","targetField":"height"}`
	rec = env.do(t, httptest.NewRequest(http.MethodPut, "/api/import/sessions/"+id+"/mappings", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "IMP006", decodeError(t, rec).Code)
}

func TestPreview_NotReady(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t)
	require.Equal(t, http.StatusOK, env.do(t, uploadRequest(t, id, "students.csv", "Email\njane@example.com\n")).Code)

	rec := env.do(t, httptest.NewRequest(http.MethodPost, "/api/import/sessions/"+id+"/preview", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "IMP002", decodeError(t, rec).Code)
}

func TestStartImport_NoValidRows(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.previewed(t, "First Name,Last Name\n,Smith\n")

	rec := env.do(t, importRequest(id))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "IMP003", decodeError(t, rec).Code)
	assert.Equal(t, 0, env.svc.UploadLimiterStatus().Active)
}

func TestHTMXErrorFragment(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/import/missing/summary", nil)
	req.Header.Set("HX-Request", "true")
	rec := env.do(t, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Code: UPL003")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&core.LimitError{Kind: core.LimitFileSize}, http.StatusRequestEntityTooLarge},
		{&core.LimitError{Kind: core.LimitRows}, http.StatusUnprocessableEntity},
		{&core.ParseError{Reason: "file is empty"}, http.StatusBadRequest},
		{fmt.Errorf("lookup: %w", core.ErrSessionNotFound), http.StatusNotFound},
		{&core.TransitionError{From: core.StepImporting, Action: "reset"}, http.StatusConflict},
		{core.ErrNotReady, http.StatusUnprocessableEntity},
		{core.ErrNoValidRows, http.StatusUnprocessableEntity},
		{core.ErrUnknownColumn, http.StatusBadRequest},
		{core.ErrTooManyUploads, http.StatusServiceUnavailable},
		{errRateLimited, http.StatusTooManyRequests},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

// =============================================================================
// Catalogue endpoints
// =============================================================================

func TestListSchemas(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/import/schemas", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []SchemaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))

	var students *SchemaResponse
	for i := range got {
		if got[i].Entity == schemas.Students {
			students = &got[i]
		}
	}
	require.NotNil(t, students)
	assert.Equal(t, FieldResponse{Name: schemas.FirstName, Label: "First name", Required: true}, students.Fields[0])
}

func TestSampleDownload(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/import/sample/students", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="students_import_template.csv"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "First name,Last name,Email"))

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/import/sample/teachers", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createSession(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":1}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

// =============================================================================
// Middleware
// =============================================================================

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Security.RequireAPIKey = true
		cfg.Security.APIKeys = []string{"key-one"}
	})

	tests := []struct {
		key  string
		want int
	}{
		{"", http.StatusUnauthorized},
		{"wrong", http.StatusForbidden},
		{"key-one", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/import/schemas", nil)
		if tt.key != "" {
			req.Header.Set("X-API-Key", tt.key)
		}
		assert.Equal(t, tt.want, env.do(t, req).Code, "key %q", tt.key)
	}

	assert.Equal(t, http.StatusOK, env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, UploadLimit: 1}
	})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	}

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	other := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	other.RemoteAddr = "198.51.100.7:4000"
	assert.Equal(t, http.StatusOK, env.do(t, other).Code)
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	defer rl.stop()

	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.allow("a"))
}

func TestInstitutionID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	_, err := institutionID(req)
	assert.ErrorIs(t, err, errMissingInstitution)

	req.Header.Set(InstitutionHeader, "not-a-uuid")
	_, err = institutionID(req)
	assert.ErrorIs(t, err, errMissingInstitution)

	req.Header.Set(InstitutionHeader, uuid.Nil.String())
	_, err = institutionID(req)
	assert.ErrorIs(t, err, errMissingInstitution)

	req.Header.Set(InstitutionHeader, " "+testInstitution+" ")
	id, err := institutionID(req)
	require.NoError(t, err)
	assert.Equal(t, testInstitution, id.String())
}

func TestWithRequestMetadata(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("User-Agent", "importer/1.0")

	req = req.WithContext(context.WithValue(req.Context(), chimw.RequestIDKey, "req-42"))

	ctx := WithRequestMetadata(context.Background(), req)
	assert.Equal(t, core.RequestMetadata{
		IPAddress: req.RemoteAddr,
		UserAgent: "importer/1.0",
		RequestID: "req-42",
	}, core.RequestMetadataFromContext(ctx))
}
