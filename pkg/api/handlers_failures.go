package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const defaultCommonFailures = 20

func (s *server) handleCommonFailures(w http.ResponseWriter, r *http.Request) {
	limit := defaultCommonFailures

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			badRequest(w, fmt.Errorf("invalid limit"))

			return
		}

		limit = min(n, s.cfg.Pagination.MaxLimit)
	}

	failures, err := s.store.CommonFailures(r.Context(), limit)
	if err != nil {
		s.writeStoreError(w, "failures", err)

		return
	}

	items := make([]commonFailureResponse, 0, len(failures))

	for _, f := range failures {
		names := f.TestNames
		if names == nil {
			names = []string{}
		}

		items = append(items, commonFailureResponse{
			Message:     f.Message,
			Occurrences: f.Occurrences,
			TestNames:   names,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"failures": items})
}

// exportColumns is the header of the CSV failure export.
var exportColumns = []string{
	"campaign_name", "campaign_date", "test_name", "test_path",
	"status", "start_time", "failure_message",
}

// handleExportFailures exports every failure message with its test and
// campaign as CSV (default) or JSON.
func (s *server) handleExportFailures(w http.ResponseWriter, r *http.Request) {
	var campaignID *uint

	if v := r.URL.Query().Get("campaign_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			badRequest(w, fmt.Errorf("invalid campaign_id"))

			return
		}

		id := uint(n)
		campaignID = &id
	}

	format := r.URL.Query().Get("format")
	if format != "" && format != "csv" && format != "json" {
		badRequest(w, fmt.Errorf("invalid format %q", format))

		return
	}

	records, err := s.store.ListFailureRecords(r.Context(), campaignID)
	if err != nil {
		s.writeStoreError(w, "failures", err)

		return
	}

	if format == "json" {
		items := make([]failureRecordResponse, 0, len(records))
		for _, rec := range records {
			items = append(items, failureRecordResponse(rec))
		}

		writeJSON(w, http.StatusOK, map[string]any{"failures": items})

		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="failures.csv"`)

	cw := csv.NewWriter(w)

	if err := cw.Write(exportColumns); err != nil {
		return
	}

	for _, rec := range records {
		var date string
		if rec.CampaignDate != nil {
			date = rec.CampaignDate.Format(time.RFC3339)
		}

		if err := cw.Write([]string{
			rec.CampaignName, date, rec.TestName, rec.TestPath,
			rec.Status, rec.StartTime, rec.Message,
		}); err != nil {
			return
		}
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		s.log.WithError(err).Debug("Failure export interrupted")
	}
}

func (s *server) handleProcessingLog(w http.ResponseWriter, r *http.Request) {
	page, err := s.parsePage(r)
	if err != nil {
		badRequest(w, err)

		return
	}

	entries, err := s.store.ListProcessingLog(r.Context(), r.URL.Query().Get("run_id"), page)
	if err != nil {
		s.writeStoreError(w, "processing log", err)

		return
	}

	items := make([]processingLogResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, newProcessingLogResponse(e))
	}

	writeJSON(w, http.StatusOK, pageResponse[processingLogResponse]{
		Items:  items,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}
