package archivestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Page bounds a list query. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) apply(db *gorm.DB) *gorm.DB {
	if p.Limit > 0 {
		db = db.Limit(p.Limit)
	}

	if p.Offset > 0 {
		db = db.Offset(p.Offset)
	}

	return db
}

// Stats holds aggregate counts across the whole store.
type Stats struct {
	Campaigns          int64
	Tests              int64
	TestsPassed        int64
	TestsFailed        int64
	TestsUnknown       int64
	Results            int64
	Logs               int64
	Failures           int64
	Artefacts          int64
	ArtefactsProcessed int64
}

// PassRate is the percentage of passed tests, 0 when there are none.
func (s *Stats) PassRate() float64 {
	if s.Tests == 0 {
		return 0
	}

	return float64(s.TestsPassed) / float64(s.Tests) * 100
}

// CampaignQuery selects and orders campaigns.
type CampaignQuery struct {
	Page
	// OrderBy is "date" (default) or "name".
	OrderBy   string
	Ascending bool
}

// CampaignSummary is a campaign with its test counts by status.
type CampaignSummary struct {
	ID           uint
	Name         string
	Date         *time.Time
	CreatedAt    time.Time
	TotalTests   int64
	PassedTests  int64
	FailedTests  int64
	UnknownTests int64
}

// TestQuery filters tests across campaigns.
type TestQuery struct {
	Page
	CampaignID *uint
	Status     string
	// Search matches the test name or any of its failure messages.
	Search string
	// StartFrom and StartTo bound the start timestamp in epoch millis.
	StartFrom *int64
	StartTo   *int64
	// OldestFirst orders by start time ascending instead of descending.
	OldestFirst bool
}

// TestSummary is a list view of a test.
type TestSummary struct {
	ID             uint
	TestName       string
	TestPath       string
	Status         string
	StartTime      string
	StartTimestamp *int64
	CampaignID     uint
	CampaignName   string
	FailureCount   int64
}

// CommonFailure is a failure message with the number of tests reporting it.
type CommonFailure struct {
	Message     string
	Occurrences int64
	TestNames   []string
}

// FailureRecord is one failure message with its test and campaign.
type FailureRecord struct {
	CampaignName string
	CampaignDate *time.Time
	TestName     string
	TestPath     string
	Status       string
	StartTime    string
	Message      string
}

// IsUnchanged reports whether path was recorded with the same hash and
// has been processed.
func (s *store) IsUnchanged(
	ctx context.Context, path, hash string,
) (bool, error) {
	var count int64

	if err := s.db.WithContext(ctx).
		Model(&Artefact{}).
		Where("file_path = ? AND file_hash = ? AND processed = ?",
			path, hash, true).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking artefact %q: %w", path, err)
	}

	return count > 0, nil
}

// DeleteCampaign removes a campaign by name. Its artefacts are marked
// unprocessed so the next import brings the campaign back from disk.
func (s *store) DeleteCampaign(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tests := tx.Model(&Test{}).
			Select("tests.id").
			Joins("JOIN campaigns ON campaigns.id = tests.campaign_id").
			Where("campaigns.name = ?", name)

		if err := tx.Model(&Artefact{}).
			Where("test_id IN (?)", tests).
			Updates(map[string]any{
				"processed":    false,
				"processed_at": nil,
			}).Error; err != nil {
			return fmt.Errorf("resetting artefacts of campaign %q: %w", name, err)
		}

		result := tx.Where("name = ?", name).Delete(&Campaign{})
		if result.Error != nil {
			return fmt.Errorf("deleting campaign %q: %w", name, result.Error)
		}

		if result.RowsAffected == 0 {
			return fmt.Errorf("campaign %q: %w", name, ErrNotFound)
		}

		return nil
	})
}

// Stats returns aggregate counts.
func (s *store) Stats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	st := &Stats{}

	counts := []struct {
		model     any
		processed bool
		dest      *int64
	}{
		{&Campaign{}, false, &st.Campaigns},
		{&Test{}, false, &st.Tests},
		{&TestResult{}, false, &st.Results},
		{&TestLog{}, false, &st.Logs},
		{&FailureMessage{}, false, &st.Failures},
		{&Artefact{}, false, &st.Artefacts},
		{&Artefact{}, true, &st.ArtefactsProcessed},
	}

	for _, c := range counts {
		q := db.Model(c.model)
		if c.processed {
			q = q.Where("processed = ?", true)
		}

		if err := q.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("counting: %w", err)
		}
	}

	var byStatus []struct {
		Status string
		N      int64
	}

	if err := db.Model(&Test{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("counting tests by status: %w", err)
	}

	for _, row := range byStatus {
		switch row.Status {
		case "passed":
			st.TestsPassed = row.N
		case "failed":
			st.TestsFailed = row.N
		default:
			st.TestsUnknown += row.N
		}
	}

	return st, nil
}

// ListCampaigns returns campaigns with per-status test counts.
func (s *store) ListCampaigns(
	ctx context.Context, q CampaignQuery,
) ([]CampaignSummary, error) {
	order := "campaigns.date"
	if q.OrderBy == "name" {
		order = "campaigns.name"
	}

	if q.Ascending {
		order += " ASC"
	} else {
		order += " DESC"
	}

	var rows []CampaignSummary

	db := s.db.WithContext(ctx).
		Table("campaigns").
		Select(`campaigns.id, campaigns.name, campaigns.date, campaigns.created_at,
			COUNT(tests.id) AS total_tests,
			COALESCE(SUM(CASE WHEN tests.status = 'passed' THEN 1 ELSE 0 END), 0) AS passed_tests,
			COALESCE(SUM(CASE WHEN tests.status = 'failed' THEN 1 ELSE 0 END), 0) AS failed_tests,
			COALESCE(SUM(CASE WHEN tests.status = 'unknown' THEN 1 ELSE 0 END), 0) AS unknown_tests`).
		Joins("LEFT JOIN tests ON tests.campaign_id = campaigns.id").
		Group("campaigns.id, campaigns.name, campaigns.date, campaigns.created_at").
		Order(order).
		Order("campaigns.id")

	if err := q.apply(db).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing campaigns: %w", err)
	}

	return rows, nil
}

// GetCampaign returns a campaign by ID.
func (s *store) GetCampaign(ctx context.Context, id uint) (*Campaign, error) {
	var c Campaign

	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("campaign %d: %w", id, ErrNotFound)
		}

		return nil, fmt.Errorf("getting campaign: %w", err)
	}

	return &c, nil
}

// ListTests returns tests matching the query.
func (s *store) ListTests(
	ctx context.Context, q TestQuery,
) ([]TestSummary, error) {
	db := s.db.WithContext(ctx).
		Table("tests").
		Select(`tests.id, tests.test_name, tests.test_path, tests.status,
			tests.start_time, tests.start_timestamp, tests.campaign_id,
			campaigns.name AS campaign_name,
			(SELECT COUNT(*) FROM failure_messages fm WHERE fm.test_id = tests.id) AS failure_count`).
		Joins("JOIN campaigns ON campaigns.id = tests.campaign_id")

	if q.CampaignID != nil {
		db = db.Where("tests.campaign_id = ?", *q.CampaignID)
	}

	if q.Status != "" {
		db = db.Where("tests.status = ?", q.Status)
	}

	if q.StartFrom != nil {
		db = db.Where("tests.start_timestamp >= ?", *q.StartFrom)
	}

	if q.StartTo != nil {
		db = db.Where("tests.start_timestamp <= ?", *q.StartTo)
	}

	if q.Search != "" {
		like := "%" + escapeLike(q.Search) + "%"
		db = db.Where(`(tests.test_name LIKE ? ESCAPE '!' OR EXISTS (
			SELECT 1 FROM failure_messages fm
			WHERE fm.test_id = tests.id AND fm.message LIKE ? ESCAPE '!'))`,
			like, like)
	}

	if q.OldestFirst {
		db = db.Order("tests.start_timestamp ASC").Order("tests.id ASC")
	} else {
		db = db.Order("tests.start_timestamp DESC").Order("tests.id DESC")
	}

	var rows []TestSummary
	if err := q.apply(db).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing tests: %w", err)
	}

	return rows, nil
}

// GetTest returns a test with its campaign, params and failures loaded.
func (s *store) GetTest(ctx context.Context, id uint) (*Test, error) {
	var t Test

	if err := s.db.WithContext(ctx).
		Preload("Campaign").
		Preload("Params", func(db *gorm.DB) *gorm.DB {
			return db.Order("param_name")
		}).
		Preload("Failures", func(db *gorm.DB) *gorm.DB {
			return db.Order("id")
		}).
		First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("test %d: %w", id, ErrNotFound)
		}

		return nil, fmt.Errorf("getting test: %w", err)
	}

	return &t, nil
}

// ListResults returns a test's result rows in file order.
func (s *store) ListResults(
	ctx context.Context, testID uint, page Page,
) ([]TestResult, error) {
	var rows []TestResult

	db := s.db.WithContext(ctx).
		Where("test_id = ?", testID).
		Order("row_index")

	if err := page.apply(db).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}

	return rows, nil
}

// ListLogs returns a test's log rows in file order, optionally filtered
// by level.
func (s *store) ListLogs(
	ctx context.Context, testID uint, level string, page Page,
) ([]TestLog, error) {
	var rows []TestLog

	db := s.db.WithContext(ctx).
		Where("test_id = ?", testID).
		Order("row_index")

	if level != "" {
		db = db.Where("level = ?", strings.ToUpper(level))
	}

	if err := page.apply(db).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing logs: %w", err)
	}

	return rows, nil
}

// ListFailures returns a test's failure messages in insertion order.
func (s *store) ListFailures(
	ctx context.Context, testID uint,
) ([]string, error) {
	var msgs []string

	if err := s.db.WithContext(ctx).
		Model(&FailureMessage{}).
		Where("test_id = ?", testID).
		Order("id").
		Pluck("message", &msgs).Error; err != nil {
		return nil, fmt.Errorf("listing failures: %w", err)
	}

	return msgs, nil
}

// ListArtefacts returns the artefacts linked to a test.
func (s *store) ListArtefacts(
	ctx context.Context, testID uint,
) ([]Artefact, error) {
	var rows []Artefact

	if err := s.db.WithContext(ctx).
		Where("test_id = ?", testID).
		Order("file_path").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing artefacts: %w", err)
	}

	return rows, nil
}

// GetArtefact returns a tracked artefact by ID.
func (s *store) GetArtefact(ctx context.Context, id uint) (*Artefact, error) {
	var a Artefact

	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("artefact %d: %w", id, ErrNotFound)
		}

		return nil, fmt.Errorf("getting artefact: %w", err)
	}

	return &a, nil
}

// commonFailureTestNames caps the test names returned per failure.
const commonFailureTestNames = 10

// CommonFailures returns the most frequent failure messages.
func (s *store) CommonFailures(
	ctx context.Context, limit int,
) ([]CommonFailure, error) {
	db := s.db.WithContext(ctx)

	var rows []struct {
		Message     string
		Occurrences int64
	}

	q := db.Model(&FailureMessage{}).
		Select("message, COUNT(*) AS occurrences").
		Where("message <> ''").
		Group("message").
		Order("occurrences DESC").
		Order("message")

	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("aggregating failures: %w", err)
	}

	out := make([]CommonFailure, 0, len(rows))

	for _, r := range rows {
		var names []string

		if err := db.Table("tests").
			Distinct("tests.test_name").
			Joins("JOIN failure_messages ON failure_messages.test_id = tests.id").
			Where("failure_messages.message = ?", r.Message).
			Order("tests.test_name").
			Limit(commonFailureTestNames).
			Pluck("tests.test_name", &names).Error; err != nil {
			return nil, fmt.Errorf("listing tests for failure: %w", err)
		}

		out = append(out, CommonFailure{
			Message:     r.Message,
			Occurrences: r.Occurrences,
			TestNames:   names,
		})
	}

	return out, nil
}

// ListFailureRecords returns every failure message joined with its test
// and campaign, optionally restricted to one campaign.
func (s *store) ListFailureRecords(
	ctx context.Context, campaignID *uint,
) ([]FailureRecord, error) {
	db := s.db.WithContext(ctx).
		Table("failure_messages").
		Select(`campaigns.name AS campaign_name, campaigns.date AS campaign_date,
			tests.test_name, tests.test_path, tests.status, tests.start_time,
			failure_messages.message`).
		Joins("JOIN tests ON tests.id = failure_messages.test_id").
		Joins("JOIN campaigns ON campaigns.id = tests.campaign_id").
		Order("campaigns.name").
		Order("tests.test_path").
		Order("failure_messages.id")

	if campaignID != nil {
		db = db.Where("campaigns.id = ?", *campaignID)
	}

	var rows []FailureRecord
	if err := db.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing failure records: %w", err)
	}

	return rows, nil
}

// ListProcessingLog returns processing log entries, newest first. An empty
// runID returns entries of all runs.
func (s *store) ListProcessingLog(
	ctx context.Context, runID string, page Page,
) ([]ProcessingLog, error) {
	db := s.db.WithContext(ctx).Order("id DESC")

	if runID != "" {
		db = db.Where("run_id = ?", runID)
	}

	var rows []ProcessingLog
	if err := page.apply(db).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing processing log: %w", err)
	}

	return rows, nil
}

// escapeLike escapes LIKE wildcards in user input with '!', which needs
// no quoting in any supported dialect.
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
