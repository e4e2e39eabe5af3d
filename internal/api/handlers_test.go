package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/yourorg/avail-checker/internal/db"
	"github.com/yourorg/avail-checker/internal/export"
	"github.com/yourorg/avail-checker/internal/gate"
	"github.com/yourorg/avail-checker/internal/queue"
	"github.com/yourorg/avail-checker/internal/scheduler"
	"github.com/yourorg/avail-checker/internal/types"
)

func init() { gin.SetMode(gin.TestMode) }

// takenChecker reports every domain available except those containing "taken".
type takenChecker struct{ delay time.Duration }

func (c takenChecker) Check(_ context.Context, d string) types.CheckOutcome {
	time.Sleep(c.delay)
	return types.CheckOutcome{Domain: d, Available: !strings.Contains(d, "taken")}
}

func newRouter(t *testing.T, delay time.Duration, opts ...Option) (*gin.Engine, *queue.Queue) {
	t.Helper()
	s := scheduler.New(gate.New(4), takenChecker{delay: delay}, scheduler.Config{ChunkSize: 2}, nil)
	q := queue.New(s, queue.WithProgressInterval(0))
	r := gin.New()
	NewHandler(q, []string{".br", ".com.br"}, opts...).Register(r)
	return r, q
}

func multipartFile(t *testing.T, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func progress(t *testing.T, r http.Handler) types.Progress {
	t.Helper()
	w := do(r, httptest.NewRequest(http.MethodGet, "/api/progress", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var p types.Progress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func TestUploadCheckDownload(t *testing.T) {
	r, _ := newRouter(t, 0)
	csv := "Coluna A,Dominio\nloja,Loja.com.br\nblog,taken.com.br\nfora,example.org\nsite,site.br\n"
	body, ct := multipartFile(t, "dominios.csv", csv)
	req := httptest.NewRequest(http.MethodPost, "/api/upload-excel", body)
	req.Header.Set("Content-Type", ct)

	w := do(r, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Message      string `json:"message"`
		TotalDomains int    `json:"totalDomains"`
		RunID        string `json:"runId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.TotalDomains)
	assert.NotEmpty(t, resp.RunID)
	assert.Contains(t, resp.Message, "3 domínios")

	require.Eventually(t, func() bool { return !progress(t, r).Processing }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, types.Progress{Total: 3, Processed: 3, Available: 2}, progress(t, r))

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/download-results", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), export.FileName)

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Coluna A", "Dominio"}, rows[0])
	assert.ElementsMatch(t, [][]string{{"loja", "loja.com.br"}, {"site", "site.br"}}, rows[1:])
}

func TestUploadRejectsEmptyList(t *testing.T) {
	r, q := newRouter(t, 0)
	body, ct := multipartFile(t, "dominios.csv", "a,example.org\nb,example.com\n")
	req := httptest.NewRequest(http.MethodPost, "/api/upload-excel", body)
	req.Header.Set("Content-Type", ct)

	w := do(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, q.Progress().Processing)
	assert.Equal(t, 0, q.Progress().Total)
}

func TestUploadRejectsMissingFileAndFormat(t *testing.T) {
	r, _ := newRouter(t, 0)
	w := do(r, httptest.NewRequest(http.MethodPost, "/api/upload-excel", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct := multipartFile(t, "logo.png", "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	req := httptest.NewRequest(http.MethodPost, "/api/upload-excel", body)
	req.Header.Set("Content-Type", ct)
	w = do(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearResults(t *testing.T) {
	r, q := newRouter(t, 0)
	run, err := q.AddDomains([]types.DomainItem{{Label: "x", Domain: "x.com.br"}})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, run.Wait(ctx))

	w := do(r, httptest.NewRequest(http.MethodPost, "/api/clear-results", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, types.Progress{}, progress(t, r))
}

func TestHealthAndRunsDisabled(t *testing.T) {
	r, _ := newRouter(t, 0)
	w := do(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "run history is not mounted without a repo")
}

type memRuns struct{ recs []db.RunRecord }

func (m *memRuns) Start(context.Context, string, time.Time) error { return nil }
func (m *memRuns) Finish(context.Context, types.RunSummary, string) error {
	return nil
}
func (m *memRuns) Get(_ context.Context, id string) (db.RunRecord, error) {
	for _, r := range m.recs {
		if r.ID == id {
			return r, nil
		}
	}
	return db.RunRecord{}, db.ErrNotFound
}
func (m *memRuns) ListRecent(context.Context, int) ([]db.RunRecord, error) { return m.recs, nil }

func TestRuns(t *testing.T) {
	repo := &memRuns{recs: []db.RunRecord{{ID: "r1", Status: "completed", Total: 2, Processed: 2}}}
	r, _ := newRouter(t, 0, WithRunRepo(repo))

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var recs []db.RunRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	assert.Equal(t, repo.recs, recs)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/runs/r1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamProgress(t *testing.T) {
	r, q := newRouter(t, time.Millisecond)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/progress/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	require.True(t, sc.Scan())
	assert.Equal(t, "event:progress", sc.Text(), "snapshot first")

	_, err = q.AddDomains([]types.DomainItem{{Label: "a", Domain: "a.com.br"}, {Label: "b", Domain: "b.com.br"}, {Label: "c", Domain: "c.com.br"}})
	require.NoError(t, err)

	var complete string
	for sc.Scan() {
		line := sc.Text()
		if line == "event:complete" {
			require.True(t, sc.Scan())
			complete = strings.TrimPrefix(sc.Text(), "data:")
			break
		}
	}
	require.NotEmpty(t, complete, "stream ended before the complete event")
	var ev types.Event
	require.NoError(t, json.Unmarshal([]byte(complete), &ev))
	assert.Equal(t, types.EventComplete, ev.Type)
	assert.Equal(t, types.Progress{Total: 3, Processed: 3, Available: 3}, ev.Progress)
}
