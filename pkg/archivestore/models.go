package archivestore

import "time"

// Campaign is one test-harness session, keyed by its directory name.
type Campaign struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:255;not null;uniqueIndex:idx_campaigns_name"`
	Date      *time.Time
	CreatedAt time.Time
}

// Test is one executed test case within a campaign.
type Test struct {
	ID         uint      `gorm:"primaryKey"`
	CampaignID uint      `gorm:"not null;uniqueIndex:idx_tests_identity;index:idx_tests_campaign_name"`
	Campaign   *Campaign `gorm:"constraint:OnDelete:CASCADE"`
	TestName   string    `gorm:"size:191;not null;uniqueIndex:idx_tests_identity;index:idx_tests_campaign_name"`
	TestPath   string    `gorm:"size:255;not null;uniqueIndex:idx_tests_identity"`
	Status     string    `gorm:"size:16;not null;default:unknown;index"`

	// StartTime is the start time as written by the harness.
	StartTime      string `gorm:"size:64;index"`
	StartTimestamp *int64 `gorm:"index"`

	Docstring    string `gorm:"type:text"`
	AnalyzerPath string `gorm:"size:1024"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Params    []TestParam      `gorm:"constraint:OnDelete:CASCADE"`
	Results   []TestResult     `gorm:"constraint:OnDelete:CASCADE"`
	Logs      []TestLog        `gorm:"constraint:OnDelete:CASCADE"`
	Failures  []FailureMessage `gorm:"constraint:OnDelete:CASCADE"`
	Artefacts []Artefact       `gorm:"constraint:OnDelete:SET NULL"`
}

// TestParam is one named configuration value of a test.
type TestParam struct {
	ID         uint   `gorm:"primaryKey"`
	TestID     uint   `gorm:"not null;uniqueIndex:idx_test_params_key"`
	ParamName  string `gorm:"size:191;not null;uniqueIndex:idx_test_params_key"`
	ParamValue string `gorm:"type:text"`
}

// TestResult is a decomposed measurement/outcome row.
type TestResult struct {
	ID                 uint   `gorm:"primaryKey"`
	TestID             uint   `gorm:"not null;uniqueIndex:idx_test_results_row"`
	RowIndex           int    `gorm:"not null;uniqueIndex:idx_test_results_row"`
	Timestamp          *int64 `gorm:"index"`
	TimestampFormatted string `gorm:"size:64"`
	Pass               *bool  `gorm:"index"`
	CommandMethod      string `gorm:"size:255"`
	CommandStr         string `gorm:"type:text"`
	RawResponse        string `gorm:"type:text"`
	PeakFrequency      *float64
	PeakAmplitude      *float64
	FailureMessages    string `gorm:"type:text"`
	FullDataJSON       string `gorm:"type:text"`
}

// TestLog is a decomposed diagnostic log row.
type TestLog struct {
	ID                 uint   `gorm:"primaryKey"`
	TestID             uint   `gorm:"not null;uniqueIndex:idx_test_logs_row"`
	RowIndex           int    `gorm:"not null;uniqueIndex:idx_test_logs_row"`
	Timestamp          *int64 `gorm:"index"`
	TimestampFormatted string `gorm:"size:64"`
	Level              string `gorm:"size:32;index"`
	Message            string `gorm:"type:text"`
	LogType            string `gorm:"size:64"`
	LineNumber         *int64
	FullDataJSON       string `gorm:"type:text"`
}

// FailureMessage is a distinct failure string of a test.
type FailureMessage struct {
	ID      uint   `gorm:"primaryKey"`
	TestID  uint   `gorm:"not null;index"`
	Message string `gorm:"type:text;not null"`
}

// Artefact types.
const (
	ArtefactCSV          = "csv"
	ArtefactJSON         = "json"
	ArtefactAnalyzerHTML = "analyzer_html"
	ArtefactLog          = "log"
	ArtefactScreenshot   = "screenshot"
)

// Artefact is a tracked input file. FilePath is the dedup key.
type Artefact struct {
	ID           uint   `gorm:"primaryKey"`
	TestID       *uint  `gorm:"index"`
	ArtefactType string `gorm:"size:32;not null"`
	FilePath     string `gorm:"size:512;not null;uniqueIndex:idx_artefacts_path"`
	FileHash     string `gorm:"size:128;not null;index"`
	FileSize     int64
	Processed    bool `gorm:"not null;default:false"`
	ProcessedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Processing log levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// ProcessingLog is one audit entry written by an import run.
type ProcessingLog struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"size:36;not null;index"`
	Level     string `gorm:"size:16;not null"`
	Action    string `gorm:"size:64;not null"`
	Path      string `gorm:"size:1024"`
	Message   string `gorm:"type:text"`
	CreatedAt time.Time
}

// TableName keeps the singular table name.
func (ProcessingLog) TableName() string {
	return "processing_log"
}
