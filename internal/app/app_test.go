package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/yourorg/avail-checker/internal/config"
	"github.com/yourorg/avail-checker/internal/export"
	"github.com/yourorg/avail-checker/internal/types"
)

func testConfig(t *testing.T, upstream string) config.Config {
	t.Helper()
	cfg := config.FromEnv()
	cfg.Checker.BaseURL = upstream
	cfg.Checker.Retry.Timeout = 200 * time.Millisecond
	cfg.Checker.Retry.RetryDelay = time.Millisecond
	cfg.Cache.Backend = "memory"
	cfg.Concurrency = 4
	cfg.Scheduler.ChunkSize = 3
	cfg.Scheduler.ChunkPause = 0
	cfg.DNSServer = ""
	cfg.DB.DSN, cfg.DB.Host = "", ""
	cfg.ExportURI = "file://" + t.TempDir()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestEnginePublishesExport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/taken.com.br") {
			_, _ = w.Write([]byte(`{"status":1}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"AVAILABLE"}`))
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL+"/v2/ajax/avail/raw")
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Runs)

	run, err := a.Queue.AddDomains([]types.DomainItem{
		{Label: "um", Domain: "livre.com.br"},
		{Label: "dois", Domain: "taken.com.br"},
		{Label: "tres", Domain: "outro.br"},
	})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, run.Wait(ctx))
	assert.Equal(t, types.Progress{Total: 3, Processed: 3, Available: 2}, a.Queue.Progress())
	assert.Equal(t, 0, a.Gate.InFlight())

	path := filepath.Join(strings.TrimPrefix(cfg.ExportURI, "file://"), run.ID()+".xlsx")
	_, err = os.Stat(path)
	require.NoError(t, err, "completed run must be published")
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestNewRejectsBadUpstream(t *testing.T) {
	cfg := testConfig(t, "http://example.invalid")
	cfg.Checker.BaseURL = "not a url"
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}
