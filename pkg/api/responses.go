package api

import (
	"encoding/json"
	"time"

	"github.com/ethpandaops/archivoor/pkg/archivestore"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// pageResponse wraps one page of a list endpoint.
type pageResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type statsResponse struct {
	Campaigns          int64   `json:"campaigns"`
	Tests              int64   `json:"tests"`
	TestsPassed        int64   `json:"tests_passed"`
	TestsFailed        int64   `json:"tests_failed"`
	TestsUnknown       int64   `json:"tests_unknown"`
	PassRate           float64 `json:"pass_rate"`
	Results            int64   `json:"results"`
	Logs               int64   `json:"logs"`
	Failures           int64   `json:"failures"`
	Artefacts          int64   `json:"artefacts"`
	ArtefactsProcessed int64   `json:"artefacts_processed"`
}

func newStatsResponse(st *archivestore.Stats) statsResponse {
	return statsResponse{
		Campaigns:          st.Campaigns,
		Tests:              st.Tests,
		TestsPassed:        st.TestsPassed,
		TestsFailed:        st.TestsFailed,
		TestsUnknown:       st.TestsUnknown,
		PassRate:           st.PassRate(),
		Results:            st.Results,
		Logs:               st.Logs,
		Failures:           st.Failures,
		Artefacts:          st.Artefacts,
		ArtefactsProcessed: st.ArtefactsProcessed,
	}
}

type campaignResponse struct {
	ID           uint       `json:"id"`
	Name         string     `json:"name"`
	Date         *time.Time `json:"date"`
	CreatedAt    time.Time  `json:"created_at"`
	TotalTests   int64      `json:"total_tests"`
	PassedTests  int64      `json:"passed_tests"`
	FailedTests  int64      `json:"failed_tests"`
	UnknownTests int64      `json:"unknown_tests"`
}

func newCampaignResponse(c archivestore.CampaignSummary) campaignResponse {
	return campaignResponse{
		ID:           c.ID,
		Name:         c.Name,
		Date:         c.Date,
		CreatedAt:    c.CreatedAt,
		TotalTests:   c.TotalTests,
		PassedTests:  c.PassedTests,
		FailedTests:  c.FailedTests,
		UnknownTests: c.UnknownTests,
	}
}

type testSummaryResponse struct {
	ID             uint   `json:"id"`
	CampaignID     uint   `json:"campaign_id"`
	CampaignName   string `json:"campaign_name"`
	TestName       string `json:"test_name"`
	TestPath       string `json:"test_path"`
	Status         string `json:"status"`
	StartTime      string `json:"start_time,omitempty"`
	StartTimestamp *int64 `json:"start_timestamp"`
	FailureCount   int64  `json:"failure_count"`
}

func newTestSummaryResponse(t archivestore.TestSummary) testSummaryResponse {
	return testSummaryResponse{
		ID:             t.ID,
		CampaignID:     t.CampaignID,
		CampaignName:   t.CampaignName,
		TestName:       t.TestName,
		TestPath:       t.TestPath,
		Status:         t.Status,
		StartTime:      t.StartTime,
		StartTimestamp: t.StartTimestamp,
		FailureCount:   t.FailureCount,
	}
}

type testDetailResponse struct {
	ID             uint              `json:"id"`
	CampaignID     uint              `json:"campaign_id"`
	CampaignName   string            `json:"campaign_name"`
	TestName       string            `json:"test_name"`
	TestPath       string            `json:"test_path"`
	Status         string            `json:"status"`
	StartTime      string            `json:"start_time,omitempty"`
	StartTimestamp *int64            `json:"start_timestamp"`
	Docstring      string            `json:"docstring,omitempty"`
	AnalyzerPath   string            `json:"analyzer_path,omitempty"`
	Params         map[string]string `json:"params"`
	Failures       []string          `json:"failures"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func newTestDetailResponse(t *archivestore.Test) testDetailResponse {
	resp := testDetailResponse{
		ID:             t.ID,
		CampaignID:     t.CampaignID,
		TestName:       t.TestName,
		TestPath:       t.TestPath,
		Status:         t.Status,
		StartTime:      t.StartTime,
		StartTimestamp: t.StartTimestamp,
		Docstring:      t.Docstring,
		AnalyzerPath:   t.AnalyzerPath,
		Params:         make(map[string]string, len(t.Params)),
		Failures:       make([]string, 0, len(t.Failures)),
		UpdatedAt:      t.UpdatedAt,
	}

	if t.Campaign != nil {
		resp.CampaignName = t.Campaign.Name
	}

	for _, p := range t.Params {
		resp.Params[p.ParamName] = p.ParamValue
	}

	for _, f := range t.Failures {
		resp.Failures = append(resp.Failures, f.Message)
	}

	return resp
}

type resultResponse struct {
	RowIndex           int             `json:"row_index"`
	Timestamp          *int64          `json:"timestamp"`
	TimestampFormatted string          `json:"timestamp_formatted,omitempty"`
	Pass               *bool           `json:"pass"`
	CommandMethod      string          `json:"command_method,omitempty"`
	CommandStr         string          `json:"command_str,omitempty"`
	RawResponse        string          `json:"raw_response,omitempty"`
	PeakFrequency      *float64        `json:"peak_frequency"`
	PeakAmplitude      *float64        `json:"peak_amplitude"`
	FailureMessages    string          `json:"failure_messages,omitempty"`
	Data               json.RawMessage `json:"data,omitempty"`
}

func newResultResponse(r archivestore.TestResult) resultResponse {
	return resultResponse{
		RowIndex:           r.RowIndex,
		Timestamp:          r.Timestamp,
		TimestampFormatted: r.TimestampFormatted,
		Pass:               r.Pass,
		CommandMethod:      r.CommandMethod,
		CommandStr:         r.CommandStr,
		RawResponse:        r.RawResponse,
		PeakFrequency:      r.PeakFrequency,
		PeakAmplitude:      r.PeakAmplitude,
		FailureMessages:    r.FailureMessages,
		Data:               rawSnapshot(r.FullDataJSON),
	}
}

type logResponse struct {
	RowIndex           int             `json:"row_index"`
	Timestamp          *int64          `json:"timestamp"`
	TimestampFormatted string          `json:"timestamp_formatted,omitempty"`
	Level              string          `json:"level"`
	Message            string          `json:"message"`
	LogType            string          `json:"log_type,omitempty"`
	LineNumber         *int64          `json:"line_number"`
	Data               json.RawMessage `json:"data,omitempty"`
}

func newLogResponse(l archivestore.TestLog) logResponse {
	return logResponse{
		RowIndex:           l.RowIndex,
		Timestamp:          l.Timestamp,
		TimestampFormatted: l.TimestampFormatted,
		Level:              l.Level,
		Message:            l.Message,
		LogType:            l.LogType,
		LineNumber:         l.LineNumber,
		Data:               rawSnapshot(l.FullDataJSON),
	}
}

// rawSnapshot passes a stored row snapshot through unchanged when it is
// valid JSON.
func rawSnapshot(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return nil
	}

	return json.RawMessage(s)
}

type artefactResponse struct {
	ID          uint       `json:"id"`
	Type        string     `json:"type"`
	FilePath    string     `json:"file_path"`
	FileHash    string     `json:"file_hash"`
	FileSize    int64      `json:"file_size"`
	Processed   bool       `json:"processed"`
	ProcessedAt *time.Time `json:"processed_at"`
}

func newArtefactResponse(a archivestore.Artefact) artefactResponse {
	return artefactResponse{
		ID:          a.ID,
		Type:        a.ArtefactType,
		FilePath:    a.FilePath,
		FileHash:    a.FileHash,
		FileSize:    a.FileSize,
		Processed:   a.Processed,
		ProcessedAt: a.ProcessedAt,
	}
}

type commonFailureResponse struct {
	Message     string   `json:"message"`
	Occurrences int64    `json:"occurrences"`
	TestNames   []string `json:"test_names"`
}

type failureRecordResponse struct {
	CampaignName string     `json:"campaign_name"`
	CampaignDate *time.Time `json:"campaign_date"`
	TestName     string     `json:"test_name"`
	TestPath     string     `json:"test_path"`
	Status       string     `json:"status"`
	StartTime    string     `json:"start_time,omitempty"`
	Message      string     `json:"failure_message"`
}

type processingLogResponse struct {
	ID        uint      `json:"id"`
	RunID     string    `json:"run_id"`
	Level     string    `json:"level"`
	Action    string    `json:"action"`
	Path      string    `json:"path,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newProcessingLogResponse(e archivestore.ProcessingLog) processingLogResponse {
	return processingLogResponse{
		ID:        e.ID,
		RunID:     e.RunID,
		Level:     e.Level,
		Action:    e.Action,
		Path:      e.Path,
		Message:   e.Message,
		CreatedAt: e.CreatedAt,
	}
}
