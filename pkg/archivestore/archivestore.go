package archivestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ethpandaops/archivoor/pkg/config"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// batchSize bounds the rows per INSERT statement for bulk writes.
const batchSize = 200

// Writer holds the write operations used while importing one test. Every
// method is usable both directly and inside Store.Transaction.
type Writer interface {
	UpsertCampaign(ctx context.Context, name string, date *time.Time) (uint, error)
	UpsertTest(ctx context.Context, test *Test) (uint, error)

	ReplaceTestParams(ctx context.Context, testID uint, params map[string]string) error
	ReplaceTestResults(ctx context.Context, testID uint, rows []TestResult) error
	ReplaceTestLogs(ctx context.Context, testID uint, rows []TestLog) error
	ReplaceTestFailures(ctx context.Context, testID uint, messages []string) error

	RecordArtefact(ctx context.Context, a *Artefact) (uint, error)
	MarkProcessed(ctx context.Context, artefactID uint) error

	AppendProcessingLog(ctx context.Context, entry *ProcessingLog) error
}

// Store provides persistence for imported test artefacts.
type Store interface {
	Writer

	Start(ctx context.Context) error
	Stop() error

	// Transaction runs fn in a single database transaction. fn must only
	// use the Writer it is given.
	Transaction(ctx context.Context, fn func(tx Writer) error) error

	// IsUnchanged reports whether path was recorded with the same hash and
	// has been processed.
	IsUnchanged(ctx context.Context, path, hash string) (bool, error)

	// DeleteCampaign removes a campaign and, through cascading foreign
	// keys, everything derived from it. Artefacts are kept and unlinked.
	DeleteCampaign(ctx context.Context, name string) error

	Stats(ctx context.Context) (*Stats, error)

	ListCampaigns(ctx context.Context, q CampaignQuery) ([]CampaignSummary, error)
	GetCampaign(ctx context.Context, id uint) (*Campaign, error)
	ListTests(ctx context.Context, q TestQuery) ([]TestSummary, error)
	GetTest(ctx context.Context, id uint) (*Test, error)
	ListResults(ctx context.Context, testID uint, page Page) ([]TestResult, error)
	ListLogs(ctx context.Context, testID uint, level string, page Page) ([]TestLog, error)
	ListFailures(ctx context.Context, testID uint) ([]string, error)
	ListArtefacts(ctx context.Context, testID uint) ([]Artefact, error)
	GetArtefact(ctx context.Context, id uint) (*Artefact, error)
	CommonFailures(ctx context.Context, limit int) ([]CommonFailure, error)
	ListFailureRecords(ctx context.Context, campaignID *uint) ([]FailureRecord, error)
	ListProcessingLog(ctx context.Context, runID string, page Page) ([]ProcessingLog, error)
}

// Compile-time interface checks.
var (
	_ Store  = (*store)(nil)
	_ Writer = (*writer)(nil)
)

type store struct {
	writer

	log logrus.FieldLogger
	cfg *config.DatabaseConfig
}

// writer implements Writer on top of either the root connection or an
// open transaction.
type writer struct {
	db *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "archivestore"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(s.cfg.SQLite.Path))
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	case "mysql":
		dsn := fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			s.cfg.MySQL.User,
			s.cfg.MySQL.Password,
			s.cfg.MySQL.Host,
			s.cfg.MySQL.Port,
			s.cfg.MySQL.Database,
		)
		dialector = mysql.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening archive database: %w", err)
	}

	if s.cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		// Single writer; the foreign_keys pragma is per connection.
		sqlDB.SetMaxOpenConns(1)
	}

	s.db = db

	// Parents first so foreign keys reference existing tables.
	if err := s.db.WithContext(ctx).AutoMigrate(
		&Campaign{},
		&Test{},
		&TestParam{},
		&TestResult{},
		&TestLog{},
		&FailureMessage{},
		&Artefact{},
		&ProcessingLog{},
	); err != nil {
		return fmt.Errorf("running archive migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).
		Info("Archive database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// Transaction runs fn inside one transaction. Any error returned by fn
// rolls back every write it made.
func (s *store) Transaction(
	ctx context.Context, fn func(tx Writer) error,
) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&writer{db: tx})
	})
}

// sqliteDSN enables foreign key enforcement and a busy timeout so readers
// in other processes wait instead of failing.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
