package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/archivoor/pkg/archivestore"
	"github.com/ethpandaops/archivoor/pkg/config"
	"github.com/ethpandaops/archivoor/pkg/source"
)

type fixture struct {
	handler    http.Handler
	store      archivestore.Store
	campaignID uint
	passedID   uint
	failedID   uint
	csvID      uint
}

func boolPtr(v bool) *bool { return &v }

func int64Ptr(v int64) *int64 { return &v }

func newFixture(t *testing.T, mutate func(cfg *config.APIConfig)) *fixture {
	t.Helper()

	ctx := context.Background()
	dir := t.TempDir()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	st := archivestore.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: filepath.Join(dir, "archive.db")},
	})
	require.NoError(t, st.Start(ctx))
	t.Cleanup(func() { _ = st.Stop() })

	root := filepath.Join(dir, "output")
	csvPath := filepath.Join(root, "camp_010124_100000", "test_b", "b_combined.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(csvPath), 0o755))
	require.NoError(t, os.WriteFile(csvPath, []byte("timestamp,Pass\n1,false\n"), 0o644))

	date := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	f := &fixture{store: st}

	var err error

	f.campaignID, err = st.UpsertCampaign(ctx, "camp_010124_100000", &date)
	require.NoError(t, err)

	f.passedID, err = st.UpsertTest(ctx, &archivestore.Test{
		CampaignID:     f.campaignID,
		TestName:       "a",
		TestPath:       "camp_010124_100000/test_a",
		Status:         "passed",
		StartTimestamp: int64Ptr(1000),
	})
	require.NoError(t, err)

	f.failedID, err = st.UpsertTest(ctx, &archivestore.Test{
		CampaignID:     f.campaignID,
		TestName:       "b",
		TestPath:       "camp_010124_100000/test_b",
		Status:         "failed",
		StartTimestamp: int64Ptr(2000),
		Docstring:      "checks b",
	})
	require.NoError(t, err)

	require.NoError(t, st.ReplaceTestParams(ctx, f.failedID, map[string]string{"mode": "fast"}))
	require.NoError(t, st.ReplaceTestFailures(ctx, f.failedID, []string{"timeout"}))
	require.NoError(t, st.ReplaceTestResults(ctx, f.failedID, []archivestore.TestResult{
		{RowIndex: 0, Pass: boolPtr(true), FullDataJSON: `{"Pass":"true"}`},
		{RowIndex: 2, Pass: boolPtr(false), FailureMessages: "timeout"},
	}))
	require.NoError(t, st.ReplaceTestLogs(ctx, f.failedID, []archivestore.TestLog{
		{RowIndex: 1, Level: "INFO", Message: "start"},
		{RowIndex: 3, Level: "ERROR", Message: "timeout"},
	}))

	f.csvID, err = st.RecordArtefact(ctx, &archivestore.Artefact{
		TestID:       &f.failedID,
		ArtefactType: archivestore.ArtefactCSV,
		FilePath:     csvPath,
		FileHash:     "abc",
	})
	require.NoError(t, err)

	require.NoError(t, st.AppendProcessingLog(ctx, &archivestore.ProcessingLog{
		RunID: "run-1", Level: archivestore.LevelInfo, Action: "run_started",
	}))

	reader, err := source.NewLocalReader(root)
	require.NoError(t, err)

	cfg := &config.APIConfig{
		RateLimit: config.RateLimitConfig{
			RequestsPerMinute: config.DefaultRequestsPerMinute,
		},
		Pagination: config.PaginationConfig{DefaultLimit: 2, MaxLimit: 3},
	}

	if mutate != nil {
		mutate(cfg)
	}

	srv := NewServer(log, cfg, st, reader).(*server)
	t.Cleanup(func() { close(srv.done) })

	f.handler = srv.buildRouter()

	return f
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())

	return v
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleStats(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/api/v1/stats/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	st := decode[statsResponse](t, rec)
	assert.Equal(t, int64(1), st.Campaigns)
	assert.Equal(t, int64(2), st.Tests)
	assert.Equal(t, int64(1), st.TestsFailed)
	assert.InDelta(t, 50.0, st.PassRate, 1e-9)
	assert.Equal(t, int64(2), st.Results)
	assert.Equal(t, int64(1), st.Artefacts)
}

func TestHandleCampaigns(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/api/v1/campaigns")
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[pageResponse[campaignResponse]](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "camp_010124_100000", list.Items[0].Name)
	assert.Equal(t, int64(2), list.Items[0].TotalTests)
	assert.Equal(t, int64(1), list.Items[0].PassedTests)
	assert.Equal(t, 2, list.Limit)

	rec = f.get(t, "/api/v1/campaigns/"+itoa(f.campaignID))
	require.Equal(t, http.StatusOK, rec.Code)

	c := decode[campaignResponse](t, rec)
	assert.Equal(t, int64(1), c.FailedTests)

	rec = f.get(t, "/api/v1/campaigns/"+itoa(f.campaignID)+"/tests?status=failed")
	require.Equal(t, http.StatusOK, rec.Code)

	tests := decode[pageResponse[testSummaryResponse]](t, rec)
	require.Len(t, tests.Items, 1)
	assert.Equal(t, "b", tests.Items[0].TestName)
	assert.Equal(t, int64(1), tests.Items[0].FailureCount)
}

func TestHandleErrors(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "unknown campaign", target: "/api/v1/campaigns/999", status: http.StatusNotFound},
		{name: "unknown campaign tests", target: "/api/v1/campaigns/999/tests", status: http.StatusNotFound},
		{name: "non numeric id", target: "/api/v1/tests/abc", status: http.StatusBadRequest},
		{name: "zero id", target: "/api/v1/tests/0", status: http.StatusBadRequest},
		{name: "unknown test", target: "/api/v1/tests/999", status: http.StatusNotFound},
		{name: "unknown test results", target: "/api/v1/tests/999/results", status: http.StatusNotFound},
		{name: "negative offset", target: "/api/v1/tests?offset=-1", status: http.StatusBadRequest},
		{name: "zero limit", target: "/api/v1/tests?limit=0", status: http.StatusBadRequest},
		{name: "bad start_from", target: "/api/v1/tests?start_from=yesterday", status: http.StatusBadRequest},
		{name: "bad sort", target: "/api/v1/campaigns?sort=size", status: http.StatusBadRequest},
		{name: "bad export format", target: "/api/v1/export/failures?format=xml", status: http.StatusBadRequest},
		{name: "unknown artefact", target: "/api/v1/artefacts/999/content", status: http.StatusNotFound},
		{name: "unknown route", target: "/api/v1/nope", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, f.get(t, tt.target).Code)
		})
	}
}

func TestHandleListTests(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		query  string
		expect []string
	}{
		{name: "newest first", query: "", expect: []string{"b", "a"}},
		{name: "oldest first", query: "?order=asc", expect: []string{"a", "b"}},
		{name: "status", query: "?status=passed", expect: []string{"a"}},
		{name: "search by failure", query: "?q=time", expect: []string{"b"}},
		{name: "start window", query: "?start_from=1500&start_to=2500", expect: []string{"b"}},
		{name: "limit", query: "?limit=1", expect: []string{"b"}},
		{name: "offset", query: "?limit=1&offset=1", expect: []string{"a"}},
		{name: "campaign filter", query: "?campaign_id=" + itoa(f.campaignID), expect: []string{"b", "a"}},
		{name: "other campaign", query: "?campaign_id=999", expect: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(t, "/api/v1/tests"+tt.query)
			require.Equal(t, http.StatusOK, rec.Code)

			list := decode[pageResponse[testSummaryResponse]](t, rec)

			names := make([]string, 0, len(list.Items))
			for _, item := range list.Items {
				names = append(names, item.TestName)
			}

			assert.Equal(t, tt.expect, names)
		})
	}
}

func TestHandleGetTest(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/api/v1/tests/"+itoa(f.failedID))
	require.Equal(t, http.StatusOK, rec.Code)

	detail := decode[testDetailResponse](t, rec)
	assert.Equal(t, "camp_010124_100000", detail.CampaignName)
	assert.Equal(t, map[string]string{"mode": "fast"}, detail.Params)
	assert.Equal(t, []string{"timeout"}, detail.Failures)
	assert.Equal(t, "checks b", detail.Docstring)

	rec = f.get(t, "/api/v1/tests/"+itoa(f.failedID)+"/failures")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"timeout"`)
}

func TestHandleTestRows(t *testing.T) {
	f := newFixture(t, nil)
	base := "/api/v1/tests/" + itoa(f.failedID)

	rec := f.get(t, base+"/results")
	require.Equal(t, http.StatusOK, rec.Code)

	results := decode[pageResponse[resultResponse]](t, rec)
	require.Len(t, results.Items, 2)
	assert.Equal(t, 0, results.Items[0].RowIndex)
	assert.JSONEq(t, `{"Pass":"true"}`, string(results.Items[0].Data))
	assert.Equal(t, 2, results.Items[1].RowIndex)
	assert.Nil(t, results.Items[1].Data)

	// Limits above the cap are clamped.
	rec = f.get(t, base+"/results?limit=50")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[pageResponse[resultResponse]](t, rec).Limit)

	rec = f.get(t, base+"/logs?level=error")
	require.Equal(t, http.StatusOK, rec.Code)

	logs := decode[pageResponse[logResponse]](t, rec)
	require.Len(t, logs.Items, 1)
	assert.Equal(t, "timeout", logs.Items[0].Message)

	rec = f.get(t, base+"/logs?offset=1")
	require.Equal(t, http.StatusOK, rec.Code)

	logs = decode[pageResponse[logResponse]](t, rec)
	require.Len(t, logs.Items, 1)
	assert.Equal(t, 3, logs.Items[0].RowIndex)
}

func TestHandleArtefacts(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/api/v1/tests/"+itoa(f.failedID)+"/artefacts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "b_combined.csv")

	rec = f.get(t, "/api/v1/artefacts/"+itoa(f.csvID)+"/content")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "timestamp,Pass\n1,false\n", rec.Body.String())
}

func TestHandleArtefactContent_FileGone(t *testing.T) {
	f := newFixture(t, nil)

	a, err := f.store.GetArtefact(context.Background(), f.csvID)
	require.NoError(t, err)
	require.NoError(t, os.Remove(a.FilePath))

	rec := f.get(t, "/api/v1/artefacts/"+itoa(f.csvID)+"/content")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleFailures(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/api/v1/failures/common")
	require.Equal(t, http.StatusOK, rec.Code)

	common := decode[map[string][]commonFailureResponse](t, rec)
	require.Len(t, common["failures"], 1)
	assert.Equal(t, "timeout", common["failures"][0].Message)
	assert.Equal(t, []string{"b"}, common["failures"][0].TestNames)

	rec = f.get(t, "/api/v1/export/failures")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "failures.csv")

	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, exportColumns, records[0])
	assert.Equal(t, "camp_010124_100000", records[1][0])
	assert.Equal(t, "timeout", records[1][6])

	rec = f.get(t, "/api/v1/export/failures?format=json&campaign_id=999")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"failures":[]}`, rec.Body.String())
}

func TestHandleProcessingLog(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.get(t, "/api/v1/processing-log?run_id=run-1")
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[pageResponse[processingLogResponse]](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "run_started", list.Items[0].Action)

	rec = f.get(t, "/api/v1/processing-log?run_id=other")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[pageResponse[processingLogResponse]](t, rec).Items)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(cfg *config.APIConfig) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.RequestsPerMinute = 1
	})

	assert.Equal(t, http.StatusOK, f.get(t, "/api/v1/stats/summary").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.get(t, "/api/v1/stats/summary").Code)

	// Health checks are never limited.
	assert.Equal(t, http.StatusOK, f.get(t, "/api/v1/health").Code)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, func(cfg *config.APIConfig) {
		cfg.CORSOrigins = []string{"https://dash.example"}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://dash.example")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		expected   string
	}{
		{name: "remote addr", remoteAddr: "10.0.0.1:1234", expected: "10.0.0.1"},
		{name: "forwarded chain", remoteAddr: "10.0.0.1:1234", xff: "1.2.3.4, 5.6.7.8", expected: "1.2.3.4"},
		{name: "single forwarded", remoteAddr: "10.0.0.1:1234", xff: "1.2.3.4", expected: "1.2.3.4"},
		{name: "no port", remoteAddr: "10.0.0.1", expected: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr

			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			assert.Equal(t, tt.expected, extractIP(req))
		})
	}
}

func TestServer_StartStop(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	srv := NewServer(log, &config.APIConfig{Listen: "127.0.0.1:0"}, nil, nil)
	require.NoError(t, srv.Start(context.Background()))

	assert.NotEmpty(t, srv.Addr())
	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop(), "stopping twice is a no-op")
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
