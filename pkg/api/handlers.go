package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ethpandaops/archivoor/pkg/archivestore"
)

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// writeStoreError maps a store error to a response.
func (s *server) writeStoreError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, archivestore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{what + " not found"})

		return
	}

	s.log.WithError(err).Error("Store query failed")
	writeJSON(w, http.StatusInternalServerError,
		errorResponse{"querying " + what + ": " + err.Error()})
}

// parseID reads a positive numeric URL parameter.
func parseID(r *http.Request, name string) (uint, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}

	return uint(v), nil
}

// parsePage reads limit and offset, applying the configured default and
// cap.
func (s *server) parsePage(r *http.Request) (archivestore.Page, error) {
	page := archivestore.Page{Limit: s.cfg.Pagination.DefaultLimit}
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, fmt.Errorf("invalid limit")
		}

		page.Limit = min(n, s.cfg.Pagination.MaxLimit)
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, fmt.Errorf("invalid offset")
		}

		page.Offset = n
	}

	return page, nil
}

func parseOptionalInt64(r *http.Request, name string) (*int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", name)
	}

	return &n, nil
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
}

// --- Public handlers ---

// handleHealth reports whether the store answers queries.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.Stats(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeStoreError(w, "stats", err)

		return
	}

	writeJSON(w, http.StatusOK, newStatsResponse(st))
}

// --- Campaigns ---

func (s *server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, err := s.parsePage(r)
	if err != nil {
		badRequest(w, err)

		return
	}

	q := archivestore.CampaignQuery{
		Page:      page,
		Ascending: r.URL.Query().Get("order") == "asc",
	}

	switch sort := r.URL.Query().Get("sort"); sort {
	case "", "date", "name":
		q.OrderBy = sort
	default:
		badRequest(w, fmt.Errorf("invalid sort %q", sort))

		return
	}

	campaigns, err := s.store.ListCampaigns(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, "campaigns", err)

		return
	}

	items := make([]campaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		items = append(items, newCampaignResponse(c))
	}

	writeJSON(w, http.StatusOK, pageResponse[campaignResponse]{
		Items:  items,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

func (s *server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, err)

		return
	}

	c, err := s.store.GetCampaign(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "campaign", err)

		return
	}

	tests, err := s.store.ListTests(r.Context(), archivestore.TestQuery{
		CampaignID:  &id,
		OldestFirst: true,
	})
	if err != nil {
		s.writeStoreError(w, "tests", err)

		return
	}

	resp := campaignResponse{
		ID:         c.ID,
		Name:       c.Name,
		Date:       c.Date,
		CreatedAt:  c.CreatedAt,
		TotalTests: int64(len(tests)),
	}

	for _, t := range tests {
		switch t.Status {
		case "passed":
			resp.PassedTests++
		case "failed":
			resp.FailedTests++
		default:
			resp.UnknownTests++
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleCampaignTests(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, err)

		return
	}

	if _, err := s.store.GetCampaign(r.Context(), id); err != nil {
		s.writeStoreError(w, "campaign", err)

		return
	}

	s.listTests(w, r, &id)
}

// --- Tests ---

func (s *server) handleListTests(w http.ResponseWriter, r *http.Request) {
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

	s.listTests(w, r, campaignID)
}

func (s *server) listTests(
	w http.ResponseWriter, r *http.Request, campaignID *uint,
) {
	page, err := s.parsePage(r)
	if err != nil {
		badRequest(w, err)

		return
	}

	params := r.URL.Query()

	q := archivestore.TestQuery{
		Page:        page,
		CampaignID:  campaignID,
		Status:      params.Get("status"),
		Search:      params.Get("q"),
		OldestFirst: params.Get("order") == "asc",
	}

	if q.StartFrom, err = parseOptionalInt64(r, "start_from"); err != nil {
		badRequest(w, err)

		return
	}

	if q.StartTo, err = parseOptionalInt64(r, "start_to"); err != nil {
		badRequest(w, err)

		return
	}

	tests, err := s.store.ListTests(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, "tests", err)

		return
	}

	items := make([]testSummaryResponse, 0, len(tests))
	for _, t := range tests {
		items = append(items, newTestSummaryResponse(t))
	}

	writeJSON(w, http.StatusOK, pageResponse[testSummaryResponse]{
		Items:  items,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

func (s *server) handleGetTest(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, err)

		return
	}

	t, err := s.store.GetTest(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "test", err)

		return
	}

	writeJSON(w, http.StatusOK, newTestDetailResponse(t))
}

func (s *server) handleTestResults(w http.ResponseWriter, r *http.Request) {
	id, page, ok := s.testPage(w, r)
	if !ok {
		return
	}

	rows, err := s.store.ListResults(r.Context(), id, page)
	if err != nil {
		s.writeStoreError(w, "results", err)

		return
	}

	items := make([]resultResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, newResultResponse(row))
	}

	writeJSON(w, http.StatusOK, pageResponse[resultResponse]{
		Items:  items,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

func (s *server) handleTestLogs(w http.ResponseWriter, r *http.Request) {
	id, page, ok := s.testPage(w, r)
	if !ok {
		return
	}

	rows, err := s.store.ListLogs(r.Context(), id, r.URL.Query().Get("level"), page)
	if err != nil {
		s.writeStoreError(w, "logs", err)

		return
	}

	items := make([]logResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, newLogResponse(row))
	}

	writeJSON(w, http.StatusOK, pageResponse[logResponse]{
		Items:  items,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

// testPage resolves the test ID and page of a per-test row listing and
// checks the test exists.
func (s *server) testPage(
	w http.ResponseWriter, r *http.Request,
) (uint, archivestore.Page, bool) {
	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, err)

		return 0, archivestore.Page{}, false
	}

	page, err := s.parsePage(r)
	if err != nil {
		badRequest(w, err)

		return 0, archivestore.Page{}, false
	}

	if _, err := s.store.GetTest(r.Context(), id); err != nil {
		s.writeStoreError(w, "test", err)

		return 0, archivestore.Page{}, false
	}

	return id, page, true
}

func (s *server) handleTestFailures(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, err)

		return
	}

	if _, err := s.store.GetTest(r.Context(), id); err != nil {
		s.writeStoreError(w, "test", err)

		return
	}

	failures, err := s.store.ListFailures(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "failures", err)

		return
	}

	if failures == nil {
		failures = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"test_id":  id,
		"failures": failures,
	})
}
