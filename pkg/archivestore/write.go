package archivestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertCampaign returns the ID of the named campaign, creating it on
// first sight. An existing campaign is never modified.
func (w *writer) UpsertCampaign(
	ctx context.Context, name string, date *time.Time,
) (uint, error) {
	c := Campaign{Name: name}

	if err := w.db.WithContext(ctx).
		Where("name = ?", name).
		Attrs(Campaign{Date: date}).
		FirstOrCreate(&c).Error; err != nil {
		return 0, fmt.Errorf("upserting campaign %q: %w", name, err)
	}

	return c.ID, nil
}

// UpsertTest inserts or updates a test keyed by campaign, name and path.
// Associations on test are ignored; dependent rows are written through
// the Replace* methods.
func (w *writer) UpsertTest(ctx context.Context, test *Test) (uint, error) {
	db := w.db.WithContext(ctx)

	var existing Test

	err := db.
		Where("campaign_id = ? AND test_name = ? AND test_path = ?",
			test.CampaignID, test.TestName, test.TestPath).
		Take(&existing).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := db.Omit(clause.Associations).Create(test).Error; err != nil {
			return 0, fmt.Errorf("creating test %q: %w", test.TestPath, err)
		}

		return test.ID, nil
	case err != nil:
		return 0, fmt.Errorf("looking up test %q: %w", test.TestPath, err)
	}

	if err := db.Model(&existing).Updates(map[string]any{
		"status":          test.Status,
		"start_time":      test.StartTime,
		"start_timestamp": test.StartTimestamp,
		"docstring":       test.Docstring,
		"analyzer_path":   test.AnalyzerPath,
	}).Error; err != nil {
		return 0, fmt.Errorf("updating test %q: %w", test.TestPath, err)
	}

	test.ID = existing.ID

	return test.ID, nil
}

// ReplaceTestParams swaps the params of a test for the given map.
func (w *writer) ReplaceTestParams(
	ctx context.Context, testID uint, params map[string]string,
) error {
	db := w.db.WithContext(ctx)

	if err := db.Where("test_id = ?", testID).
		Delete(&TestParam{}).Error; err != nil {
		return fmt.Errorf("deleting test params: %w", err)
	}

	if len(params) == 0 {
		return nil
	}

	rows := make([]TestParam, 0, len(params))
	for k, v := range params {
		rows = append(rows, TestParam{TestID: testID, ParamName: k, ParamValue: v})
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ParamName < rows[j].ParamName
	})

	if err := db.CreateInBatches(rows, batchSize).Error; err != nil {
		return fmt.Errorf("inserting test params: %w", err)
	}

	return nil
}

// ReplaceTestResults swaps the result rows of a test.
func (w *writer) ReplaceTestResults(
	ctx context.Context, testID uint, rows []TestResult,
) error {
	db := w.db.WithContext(ctx)

	if err := db.Where("test_id = ?", testID).
		Delete(&TestResult{}).Error; err != nil {
		return fmt.Errorf("deleting test results: %w", err)
	}

	if len(rows) == 0 {
		return nil
	}

	for i := range rows {
		rows[i].ID = 0
		rows[i].TestID = testID
	}

	if err := db.CreateInBatches(rows, batchSize).Error; err != nil {
		return fmt.Errorf("inserting test results: %w", err)
	}

	return nil
}

// ReplaceTestLogs swaps the log rows of a test.
func (w *writer) ReplaceTestLogs(
	ctx context.Context, testID uint, rows []TestLog,
) error {
	db := w.db.WithContext(ctx)

	if err := db.Where("test_id = ?", testID).
		Delete(&TestLog{}).Error; err != nil {
		return fmt.Errorf("deleting test logs: %w", err)
	}

	if len(rows) == 0 {
		return nil
	}

	for i := range rows {
		rows[i].ID = 0
		rows[i].TestID = testID
	}

	if err := db.CreateInBatches(rows, batchSize).Error; err != nil {
		return fmt.Errorf("inserting test logs: %w", err)
	}

	return nil
}

// ReplaceTestFailures swaps the failure messages of a test. Empty and
// repeated messages are dropped.
func (w *writer) ReplaceTestFailures(
	ctx context.Context, testID uint, messages []string,
) error {
	db := w.db.WithContext(ctx)

	if err := db.Where("test_id = ?", testID).
		Delete(&FailureMessage{}).Error; err != nil {
		return fmt.Errorf("deleting failure messages: %w", err)
	}

	seen := make(map[string]struct{}, len(messages))
	rows := make([]FailureMessage, 0, len(messages))

	for _, m := range messages {
		if m == "" {
			continue
		}

		if _, ok := seen[m]; ok {
			continue
		}

		seen[m] = struct{}{}
		rows = append(rows, FailureMessage{TestID: testID, Message: m})
	}

	if len(rows) == 0 {
		return nil
	}

	if err := db.CreateInBatches(rows, batchSize).Error; err != nil {
		return fmt.Errorf("inserting failure messages: %w", err)
	}

	return nil
}

// RecordArtefact inserts or updates the artefact keyed by FilePath and
// leaves it unprocessed. A nil TestID keeps any existing test link.
func (w *writer) RecordArtefact(ctx context.Context, a *Artefact) (uint, error) {
	db := w.db.WithContext(ctx)

	var existing Artefact

	err := db.Where("file_path = ?", a.FilePath).Take(&existing).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		a.ID = 0
		a.Processed = false
		a.ProcessedAt = nil

		if err := db.Create(a).Error; err != nil {
			return 0, fmt.Errorf("creating artefact %q: %w", a.FilePath, err)
		}

		return a.ID, nil
	case err != nil:
		return 0, fmt.Errorf("looking up artefact %q: %w", a.FilePath, err)
	}

	updates := map[string]any{
		"artefact_type": a.ArtefactType,
		"file_hash":     a.FileHash,
		"file_size":     a.FileSize,
		"processed":     false,
		"processed_at":  nil,
	}

	if a.TestID != nil {
		updates["test_id"] = *a.TestID
	}

	if err := db.Model(&existing).Updates(updates).Error; err != nil {
		return 0, fmt.Errorf("updating artefact %q: %w", a.FilePath, err)
	}

	a.ID = existing.ID

	return a.ID, nil
}

// MarkProcessed flags an artefact as fully ingested.
func (w *writer) MarkProcessed(ctx context.Context, artefactID uint) error {
	now := time.Now().UTC()

	result := w.db.WithContext(ctx).
		Model(&Artefact{}).
		Where("id = ?", artefactID).
		Updates(map[string]any{
			"processed":    true,
			"processed_at": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("marking artefact processed: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("artefact %d: %w", artefactID, ErrNotFound)
	}

	return nil
}

// AppendProcessingLog writes one processing log entry.
func (w *writer) AppendProcessingLog(
	ctx context.Context, entry *ProcessingLog,
) error {
	if err := w.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("writing processing log: %w", err)
	}

	return nil
}
