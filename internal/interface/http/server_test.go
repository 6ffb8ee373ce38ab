package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attendance-tracker/internal/application/command"
	"github.com/alem-hub/attendance-tracker/internal/application/query"
	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/metrics"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/attendance-tracker/internal/interface/http/handlers"
	"github.com/alem-hub/attendance-tracker/internal/interface/http/response"
	"github.com/alem-hub/attendance-tracker/pkg/logger"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Wednesday 14 October 2026, mid-morning.
var now = timeutil.Date(2026, 10, 14).Add(10 * time.Hour)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details string          `json:"details"`
}

type testServer struct {
	t      *testing.T
	server *Server
	store  *memory.Store
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()

	store := memory.New()
	clock := timeutil.FixedClock{At: now}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	deps := command.Deps{Store: store, Clock: clock, Logger: logger.Nop(), Metrics: m}

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := NewServer(cfg, Dependencies{
		Engine:         command.NewEngine(deps),
		Subjects:       command.NewSubjectHandler(deps),
		GetSubject:     query.NewGetSubjectHandler(store, nil, nil),
		Records:        query.NewListRecordsHandler(store),
		Schedule:       query.NewListScheduleHandler(store),
		Analytics:      query.NewBuildAnalyticsHandler(store, clock, nil, m),
		Logger:         logger.Nop(),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	require.NoError(t, err)
	return &testServer{t: t, server: srv, store: store}
}

func (ts *testServer) do(method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	ts.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (ts *testServer) createSubject(body map[string]any) attendance.Subject {
	ts.t.Helper()
	w, env := ts.do(http.MethodPost, "/api/v1/subjects", body)
	require.Equal(ts.t, http.StatusCreated, w.Code, w.Body.String())
	var sub attendance.Subject
	require.NoError(ts.t, json.Unmarshal(env.Data, &sub))
	return sub
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECTS
// ══════════════════════════════════════════════════════════════════════════════

func TestSubjectsLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	folder := ts.createSubject(map[string]any{"name": "Semester 1", "is_folder": true})
	sub := ts.createSubject(map[string]any{"name": "Physics", "parent_id": folder.ID, "required_attendance": 80})
	assert.Equal(t, 80, sub.RequiredAttendance)
	assert.Equal(t, folder.ID, sub.ParentID)

	w, env := ts.do(http.MethodGet, "/api/v1/subjects/"+sub.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeOK, env.Code)
	assert.Equal(t, "Physics", decode[attendance.Subject](t, env).Name)

	w, env = ts.do(http.MethodGet, "/api/v1/subjects?roots=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	roots := decode[struct {
		Items []attendance.Subject `json:"items"`
		Total int                  `json:"total"`
	}](t, env)
	require.Equal(t, 1, roots.Total)
	assert.Equal(t, folder.ID, roots.Items[0].ID)

	w, env = ts.do(http.MethodPatch, "/api/v1/subjects/"+sub.ID, map[string]any{"name": "Physics II"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Physics II", decode[attendance.Subject](t, env).Name)

	w, env = ts.do(http.MethodDelete, "/api/v1/subjects/"+folder.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	deleted := decode[struct {
		Deleted []string `json:"deleted"`
	}](t, env)
	assert.ElementsMatch(t, []string{folder.ID, sub.ID}, deleted.Deleted)

	w, env = ts.do(http.MethodGet, "/api/v1/subjects/"+sub.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeNotFound, env.Code)
}

func TestCreateSubject_Validation(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{"malformed json", "{"},
		{"empty name", map[string]any{"name": "  "}},
		{"threshold above 100", map[string]any{"name": "x", "required_attendance": 101}},
		{"unknown parent", map[string]any{"name": "x", "parent_id": "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := ts.do(http.MethodPost, "/api/v1/subjects", tt.body)
			assert.Contains(t, []int{http.StatusBadRequest, http.StatusNotFound}, w.Code)
			assert.NotEqual(t, response.CodeOK, env.Code)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestSchedule(t *testing.T) {
	ts := newTestServer(t, nil)
	sub := ts.createSubject(map[string]any{"name": "Physics"})

	w, env := ts.do(http.MethodPut, "/api/v1/subjects/"+sub.ID+"/schedule", map[string]any{"weekdays": []int{3, 1, 3}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), `"total":2`)

	w, env = ts.do(http.MethodGet, "/api/v1/subjects/"+sub.ID+"/schedule", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"total":2`)

	w, _ = ts.do(http.MethodPut, "/api/v1/subjects/"+sub.ID+"/schedule", map[string]any{"weekdays": []int{9}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE AND HISTORY
// ══════════════════════════════════════════════════════════════════════════════

func TestMarkUndoRedo(t *testing.T) {
	ts := newTestServer(t, nil)
	sub := ts.createSubject(map[string]any{"name": "Physics"})
	markPath := "/api/v1/subjects/" + sub.ID + "/attendance"

	w, env := ts.do(http.MethodPost, markPath, map[string]any{"status": "present"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	mark := decode[MarkResponse](t, env)
	assert.Equal(t, "2026-10-14", mark.Date)
	assert.Equal(t, "create", mark.Transition)
	assert.Equal(t, attendance.Counters{Present: 1}, mark.Counters)

	w, env = ts.do(http.MethodPost, markPath, map[string]any{"status": "absent", "date": "2026-10-14"})
	require.Equal(t, http.StatusOK, w.Code)
	mark = decode[MarkResponse](t, env)
	assert.Equal(t, "replace", mark.Transition)
	assert.Equal(t, attendance.Counters{Absent: 1}, mark.Counters)

	w, env = ts.do(http.MethodPost, "/api/v1/history/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	undo := decode[HistoryResponse](t, env)
	require.True(t, undo.Applied)
	assert.Equal(t, attendance.Counters{Present: 1}, *undo.Counters)
	assert.True(t, undo.CanUndo)
	assert.True(t, undo.CanRedo)

	w, env = ts.do(http.MethodPost, "/api/v1/history/redo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	redo := decode[HistoryResponse](t, env)
	require.True(t, redo.Applied)
	assert.Equal(t, attendance.Counters{Absent: 1}, *redo.Counters)

	w, env = ts.do(http.MethodGet, "/api/v1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := decode[HistoryStateResponse](t, env)
	assert.Len(t, state.Undo, 2)
	assert.Empty(t, state.Redo)

	w, _ = ts.do(http.MethodDelete, "/api/v1/history", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, env = ts.do(http.MethodPost, "/api/v1/history/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[HistoryResponse](t, env).Applied)

	stored, err := ts.store.GetSubject(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, attendance.Counters{Absent: 1}, stored.Counters())
}

func TestMarkStatus_Errors(t *testing.T) {
	ts := newTestServer(t, nil)
	sub := ts.createSubject(map[string]any{"name": "Physics"})
	folder := ts.createSubject(map[string]any{"name": "Semester", "is_folder": true})

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"unknown status", sub.ID, map[string]any{"status": "late"}, http.StatusBadRequest},
		{"missing status", sub.ID, map[string]any{}, http.StatusBadRequest},
		{"bad date", sub.ID, map[string]any{"status": "present", "date": "14/10/2026"}, http.StatusBadRequest},
		{"unknown subject", "missing", map[string]any{"status": "present"}, http.StatusNotFound},
		{"folder", folder.ID, map[string]any{"status": "present"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := ts.do(http.MethodPost, "/api/v1/subjects/"+tt.path+"/attendance", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.NotEqual(t, response.CodeOK, env.Code)
		})
	}
}

func TestSetStatusAndRecords(t *testing.T) {
	ts := newTestServer(t, nil)
	sub := ts.createSubject(map[string]any{"name": "Physics"})

	w, env := ts.do(http.MethodPut, "/api/v1/subjects/"+sub.ID+"/attendance/2026-10-12",
		map[string]any{"status": "absent", "repeat_count": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec := decode[attendance.Record](t, env)
	assert.Equal(t, attendance.StatusAbsent, rec.Status)
	assert.Equal(t, 2, rec.RepeatCount)

	// The raw write leaves counters alone.
	stored, err := ts.store.GetSubject(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, attendance.Counters{}, stored.Counters())

	w, _ = ts.do(http.MethodPost, "/api/v1/subjects/"+sub.ID+"/attendance", map[string]any{"status": "present"})
	require.Equal(t, http.StatusOK, w.Code)

	w, env = ts.do(http.MethodGet, "/api/v1/subjects/"+sub.ID+"/records?from=2026-10-13", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"total":1`)

	w, env = ts.do(http.MethodGet, "/api/v1/records?from=2026-10-01&to=2026-10-31", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"total":2`)

	w, _ = ts.do(http.MethodGet, "/api/v1/records", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(http.MethodGet, "/api/v1/records?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(http.MethodPut, "/api/v1/subjects/"+sub.ID+"/attendance/not-a-date", map[string]any{"status": "absent"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRawWritesCanBeDisabled(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.EnableRawWrites = false })
	sub := ts.createSubject(map[string]any{"name": "Physics"})

	w, _ := ts.do(http.MethodPut, "/api/v1/subjects/"+sub.ID+"/attendance/2026-10-12", map[string]any{"status": "absent"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyticsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	sub := ts.createSubject(map[string]any{"name": "Physics"})

	w, _ := ts.do(http.MethodPut, "/api/v1/subjects/"+sub.ID+"/schedule", map[string]any{"weekdays": []int{1}})
	require.Equal(t, http.StatusOK, w.Code)
	for _, day := range []string{"2026-10-12", "2026-10-13", "2026-10-14"} {
		w, _ := ts.do(http.MethodPost, "/api/v1/subjects/"+sub.ID+"/attendance", map[string]any{"status": "present", "date": day})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, env := ts.do(http.MethodGet, "/api/v1/subjects/"+sub.ID+"/analytics?horizon_end=2026-10-31", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[query.AnalyticsReportDTO](t, env)
	assert.Equal(t, 3, report.PresentCount)
	assert.InDelta(t, 100.0, report.AttendancePercent, 1e-9)
	assert.Equal(t, 3, report.CurrentStreak)
	assert.Equal(t, 2, report.RemainingClasses)

	w, _ = ts.do(http.MethodGet, "/api/v1/subjects/"+sub.ID+"/analytics?horizon_end=soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(http.MethodGet, "/api/v1/subjects/missing/analytics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// OPERATIONAL ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	w, env := ts.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "v1", decode[handlers.HealthStatus](t, env).Version)
	assert.NotEmpty(t, w.Header().Get(handlers.RequestIDHeader))

	w, _ = ts.do(http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	sub := ts.createSubject(map[string]any{"name": "Physics"})
	w, _ = ts.do(http.MethodPost, "/api/v1/subjects/"+sub.ID+"/attendance", map[string]any{"status": "present"})
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "attendance_marks_total")
}

func TestHealth_Unhealthy(t *testing.T) {
	ts := newTestServer(t, nil)
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("postgres", func(context.Context) error { return assert.AnError })
	ts.server.deps.HealthChecker = checker

	w, env := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, response.CodeUnavailable, env.Code)

	w, _ = ts.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		w, _ := ts.do(http.MethodGet, "/live", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w, env := ts.do(http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, response.CodeRateLimited, env.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestWriteError(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"not found", shared.ErrSubjectNotFound, http.StatusNotFound, response.CodeNotFound},
		{"exists", shared.ErrSubjectExists, http.StatusConflict, response.CodeConflict},
		{"validation", shared.ErrInvalidThreshold, http.StatusBadRequest, response.CodeBadRequest},
		{"conflict", shared.ErrConcurrentModification, http.StatusConflict, response.CodeConflict},
		{"reconciliation", shared.ErrCorruptRecord, http.StatusUnprocessableEntity, response.CodeReconciliation},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, response.CodeTimeout},
		{"persistence", shared.WrapError("attendance", "Write", shared.ErrPersistence, "entity store failure", assert.AnError),
			http.StatusInternalServerError, response.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			ts.server.writeError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var env envelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.Equal(t, tt.code, env.Code)
		})
	}
}

func TestNewServer_RequiresHandlers(t *testing.T) {
	_, err := NewServer(DefaultConfig(), Dependencies{})
	assert.Error(t, err)
}
