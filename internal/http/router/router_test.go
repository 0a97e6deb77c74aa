package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/gradebook-api/internal/config"
	"github.com/aanand-mishra/gradebook-api/internal/fixture"
	"github.com/aanand-mishra/gradebook-api/internal/metrics"
	"github.com/aanand-mishra/gradebook-api/internal/service/gradebook"
	"github.com/aanand-mishra/gradebook-api/internal/storage"
	"github.com/aanand-mishra/gradebook-api/internal/storage/sqlite"
	"github.com/aanand-mishra/gradebook-api/internal/types"
	"github.com/aanand-mishra/gradebook-api/internal/utils/response"
)

// The fixture scripts are the ones shipped in config/local.yaml: student 1
// (Eric Roby) with one grade of 100 in every subject.
const configPath = "../../../config/local.yaml"

type testEnv struct {
	handler http.Handler
	store   storage.Storage
	metrics *metrics.Metrics
}

// newTestEnv opens a fresh SQLite database, runs the fixture setup and
// registers its teardown with t.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	store, err := sqlite.New(filepath.Join(t.TempDir(), "gradebook.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := fixture.New(store, cfg.Fixtures)
	require.NoError(t, f.Setup(context.Background()))
	t.Cleanup(func() {
		assert.NoError(t, f.Teardown(context.Background()))
	})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewMetrics()
	svc := gradebook.New(store, log, m)

	return &testEnv{
		handler: New(svc, store, m, cfg.HTTPServer, log),
		store:   store,
		metrics: m,
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func postGradeForm(grade, gradeType, studentID string) *http.Request {
	form := url.Values{}
	form.Set("grade", grade)
	form.Set("gradeType", gradeType)
	form.Set("studentId", studentID)

	req := httptest.NewRequest(http.MethodPost, "/grades", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireNotFound(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode[response.ErrorResponse](t, rec)
	assert.Equal(t, 404, body.Status)
	assert.Equal(t, "Student or Grade was not found", body.Message)
}

func TestGetStudents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.store.CreateStudent(ctx, "Chad", "Darby", "chad@luv2code.com")
	require.NoError(t, err)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Len(t, decode[[]types.Student](t, rec), 2)

	_, err = env.store.GetStudentByEmail(ctx, "chad@luv2code.com")
	assert.NoError(t, err, "should have been saved")
}

func TestCreateStudent(t *testing.T) {
	env := newTestEnv(t)

	body := `{"firstname":"Chad","lastname":"Darby","emailAddress":"chad@luv2code.com"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	students := decode[[]types.Student](t, rec)
	require.Len(t, students, 2)
	assert.Equal(t, "Chad", students[1].Firstname)

	saved, err := env.store.GetStudentByEmail(context.Background(), "chad@luv2code.com")
	require.NoError(t, err, "student should have been saved already")
	assert.Equal(t, "Darby", saved.Lastname)
}

func TestCreateStudentRejectsInvalidBody(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "empty body", body: "", message: "request body is empty"},
		{name: "malformed json", body: `{"firstname":`, message: ""},
		{name: "missing email", body: `{"firstname":"Chad","lastname":"Darby"}`, message: "field emailAddress is required"},
		{name: "bad email", body: `{"firstname":"Chad","lastname":"Darby","emailAddress":"chad"}`, message: "field emailAddress must be a valid email address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			got := decode[response.ErrorResponse](t, rec)
			assert.Equal(t, 400, got.Status)
			if tt.message != "" {
				assert.Equal(t, tt.message, got.Message)
			}
		})
	}

	students, err := env.store.GetStudents(context.Background())
	require.NoError(t, err)
	assert.Len(t, students, 1)
}

func TestCreateStudentDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)

	body := `{"firstname":"Other","lastname":"Eric","emailAddress":"eric.roby@luv2code_school.com"}`
	rec := env.do(t, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 409, decode[response.ErrorResponse](t, rec).Status)
}

func TestCreateStudentWithUnderscoreDomain(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, httptest.NewRequest(http.MethodDelete, "/student/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := `{"firstname":"Eric","lastname":"Roby","emailAddress":"eric.roby@luv2code_school.com"}`
	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	students := decode[[]types.Student](t, rec)
	require.Len(t, students, 1)
	assert.Equal(t, "eric.roby@luv2code_school.com", students[0].EmailAddress)
}

func TestDeleteNonExistingStudent(t *testing.T) {
	env := newTestEnv(t)

	exists, err := env.store.StudentExists(context.Background(), 2)
	require.NoError(t, err)
	require.False(t, exists)

	requireNotFound(t, env.do(t, httptest.NewRequest(http.MethodDelete, "/student/2", nil)))
}

func TestDeleteExistingStudent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student, err := env.store.GetStudentByID(ctx, 1)
	require.NoError(t, err)

	rec := env.do(t, httptest.NewRequest(http.MethodDelete, "/student/1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Len(t, decode[[]types.Student](t, rec), 0)

	exists, err := env.store.StudentExists(ctx, student.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	for _, gradeType := range types.GradeTypes {
		grades, err := env.store.GetGradesByStudentID(ctx, gradeType, student.ID)
		require.NoError(t, err)
		assert.Empty(t, grades, "%s grades should be deleted with the student", gradeType)
	}
}

func TestMalformedIDIsNotFound(t *testing.T) {
	env := newTestEnv(t)

	requireNotFound(t, env.do(t, httptest.NewRequest(http.MethodDelete, "/student/abc", nil)))
	requireNotFound(t, env.do(t, httptest.NewRequest(http.MethodGet, "/studentInformation/-1", nil)))
}

func TestStudentInformationNonExistingStudent(t *testing.T) {
	env := newTestEnv(t)

	requireNotFound(t, env.do(t, httptest.NewRequest(http.MethodGet, "/studentInformation/2", nil)))
}

func TestStudentInformationExistingStudent(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.store.CreateStudent(context.Background(), "Ali", "Hamzayev", "alihmzyv@gmail.com")
	require.NoError(t, err)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/studentInformation/"+strconv.FormatInt(id, 10), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[types.GradebookStudent](t, rec)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Ali", got.Firstname)
	assert.Equal(t, "Hamzayev", got.Lastname)
	assert.Equal(t, "alihmzyv@gmail.com", got.EmailAddress)
	assert.Empty(t, got.StudentGrades.MathGradeResults)
	assert.Zero(t, got.StudentGrades.MathGradeAverage)
}

func TestStudentInformationIncludesGradesAndAverages(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/studentInformation/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// Check the wire names, not just what decodes into our own types.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "Eric", raw["firstname"])
	assert.Equal(t, "eric.roby@luv2code_school.com", raw["emailAddress"])

	grades, ok := raw["studentGrades"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"mathGradeResults", "scienceGradeResults", "historyGradeResults"} {
		assert.Len(t, grades[key], 1, key)
	}
	assert.Equal(t, 100.0, grades["mathGradeAverage"])
}

func TestCreateGradeNonExistingStudent(t *testing.T) {
	env := newTestEnv(t)

	exists, err := env.store.StudentExists(context.Background(), 2)
	require.NoError(t, err)
	require.False(t, exists)

	requireNotFound(t, env.do(t, postGradeForm("90.0", "math", "2")))
}

func TestCreateGradeNotInRange(t *testing.T) {
	env := newTestEnv(t)

	for _, value := range []string{"100.1", "100.0001", "512.75", "999.9", "-0.5"} {
		t.Run(value, func(t *testing.T) {
			requireNotFound(t, env.do(t, postGradeForm(value, "math", "1")))
		})
	}

	grades, err := env.store.GetGradesByStudentID(context.Background(), types.GradeMath, 1)
	require.NoError(t, err)
	assert.Len(t, grades, 1)
}

func TestCreateGradeNonExistingGradeType(t *testing.T) {
	env := newTestEnv(t)

	requireNotFound(t, env.do(t, postGradeForm("90.0", "gibberish", "1")))
	requireNotFound(t, env.do(t, postGradeForm("90.0", "", "1")))
}

func TestCreateGradeMalformedForm(t *testing.T) {
	env := newTestEnv(t)

	requireNotFound(t, env.do(t, postGradeForm("ninety", "math", "1")))
	requireNotFound(t, env.do(t, postGradeForm("90.0", "math", "one")))
	requireNotFound(t, env.do(t, postGradeForm("NaN", "math", "1")))
}

func TestCreateGradeValid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	student, err := env.store.GetStudentByID(ctx, 1)
	require.NoError(t, err)
	before, err := env.store.GetGradesByStudentID(ctx, types.GradeMath, student.ID)
	require.NoError(t, err)
	require.Len(t, before, 1)

	rec := env.do(t, postGradeForm("90.0", "math", "1"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[types.GradebookStudent](t, rec)
	assert.Equal(t, student.ID, got.ID)
	assert.Equal(t, student.Firstname, got.Firstname)
	assert.Equal(t, student.Lastname, got.Lastname)
	assert.Equal(t, student.EmailAddress, got.EmailAddress)
	assert.Len(t, got.StudentGrades.MathGradeResults, 2)
	assert.Equal(t, 95.0, got.StudentGrades.MathGradeAverage)

	after, err := env.store.GetGradesByStudentID(ctx, types.GradeMath, student.ID)
	require.NoError(t, err)
	assert.Len(t, after, 2)
}

func TestCreateGradeAcceptsBounds(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, postGradeForm("0", "history", "1"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, postGradeForm("100", "history", "1"))
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[types.GradebookStudent](t, rec)
	assert.Len(t, got.StudentGrades.HistoryGradeResults, 3)
	assert.Equal(t, 66.67, got.StudentGrades.HistoryGradeAverage)
}

func TestCreateGradeMultipartForm(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("grade", "80.5"))
	require.NoError(t, mw.WriteField("gradeType", "science"))
	require.NoError(t, mw.WriteField("studentId", "1"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/grades", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := env.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[types.GradebookStudent](t, rec)
	require.Len(t, got.StudentGrades.ScienceGradeResults, 2)
	assert.Equal(t, 80.5, got.StudentGrades.ScienceGradeResults[1].Grade)
}

func TestDeleteGrade(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, httptest.NewRequest(http.MethodDelete, "/grades/1/math", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[types.GradebookStudent](t, rec)
	assert.Equal(t, int64(1), got.ID)
	assert.Empty(t, got.StudentGrades.MathGradeResults)
	assert.Len(t, got.StudentGrades.ScienceGradeResults, 1)

	requireNotFound(t, env.do(t, httptest.NewRequest(http.MethodDelete, "/grades/1/math", nil)))
	requireNotFound(t, env.do(t, httptest.NewRequest(http.MethodDelete, "/grades/1/gibberish", nil)))
	requireNotFound(t, env.do(t, httptest.NewRequest(http.MethodDelete, "/grades/x/science", nil)))
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, rec))
}

func TestMetricsRecordsRoutesAndRejections(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, postGradeForm("150", "math", "1"))
	env.do(t, postGradeForm("90", "math", "1"))

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `gradebook_grades_rejected_total{reason="value"} 1`)
	assert.Contains(t, body, `gradebook_grades_created_total{grade_type="math"} 1`)
	assert.Contains(t, body, `gradebook_http_requests_total{method="POST",route="POST /grades",status="404"} 1`)
}

type panickingService struct {
	gradebook.Service
}

func (panickingService) ListStudents(context.Context) ([]types.Student, error) {
	panic("storage exploded")
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func TestPanicIsCountedAsServerError(t *testing.T) {
	m := metrics.NewMetrics()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(panickingService{}, okPinger{}, m, config.HTTPServer{}, log)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `gradebook_http_requests_total{method="GET",route="GET /{$}",status="500"} 1`)
	assert.NotContains(t, body, `route="GET /{$}",status="200"`)
}

func TestThrottledRequestsAreCounted(t *testing.T) {
	m := metrics.NewMetrics()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.HTTPServer{RateLimit: config.RateLimit{RPS: 1.0 / 3600, Burst: 1}}
	h := New(panickingService{}, okPinger{}, m, cfg, log)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "429")))
}
