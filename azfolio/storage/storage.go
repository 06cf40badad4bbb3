package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ezquant/azfolio/azfolio/backtest"
)

var ErrSessionNotFound = errors.New("storage: session not found")

// RunRecord is a persisted simulation run of a session.
type RunRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Session   string `gorm:"uniqueIndex:idx_session_key;not null"`
	Key       string `gorm:"column:run_key;uniqueIndex:idx_session_key;not null"`
	CreatedAt time.Time

	AssetList      []string         `gorm:"serializer:json"`
	InitialWeights []float64        `gorm:"serializer:json"`
	Dynamic        backtest.Metrics `gorm:"embedded;embeddedPrefix:dynamic_"`
	Static         backtest.Metrics `gorm:"embedded;embeddedPrefix:static_"`
	EqualWeight    backtest.Metrics `gorm:"embedded;embeddedPrefix:eq_"`

	TestStart           string
	TestEnd             string
	TradingPeriodLength string
}

func (r RunRecord) Run() backtest.Run {
	return backtest.Run{
		AssetList:           r.AssetList,
		InitialWeights:      r.InitialWeights,
		Dynamic:             r.Dynamic,
		Static:              r.Static,
		EqualWeight:         r.EqualWeight,
		TestStart:           r.TestStart,
		TestEnd:             r.TestEnd,
		TradingPeriodLength: r.TradingPeriodLength,
	}
}

// Runs stores simulation runs grouped by session in SQLite.
type Runs struct {
	db *gorm.DB
}

// FromMemory opens a private in-memory database.
func FromMemory() (*Runs, error) {
	return open(":memory:")
}

// FromFile opens or creates the database at path.
func FromFile(path string) (*Runs, error) {
	return open(path)
}

func open(dsn string) (*Runs, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// every connection to :memory: would see its own database
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &Runs{db: db}, nil
}

func (s *Runs) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save inserts the run under session and key, replacing a run already stored with the same key.
func (s *Runs) Save(session, key string, run backtest.Run) error {
	record := RunRecord{
		Session:             session,
		Key:                 key,
		AssetList:           run.AssetList,
		InitialWeights:      run.InitialWeights,
		Dynamic:             run.Dynamic,
		Static:              run.Static,
		EqualWeight:         run.EqualWeight,
		TestStart:           run.TestStart,
		TestEnd:             run.TestEnd,
		TradingPeriodLength: run.TradingPeriodLength,
	}

	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session"}, {Name: "run_key"}},
		UpdateAll: true,
	}).Create(&record)
	if result.Error != nil {
		return fmt.Errorf("storage: save %s/%s: %w", session, key, result.Error)
	}
	return nil
}

// List returns the runs of a session keyed like a history file.
func (s *Runs) List(session string) (backtest.History, error) {
	var records []RunRecord
	if err := s.db.Where("session = ?", session).Order("run_key").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", session, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, session)
	}

	history := make(backtest.History, len(records))
	for _, record := range records {
		history[record.Key] = record.Run()
	}
	return history, nil
}

// Sessions returns the stored session names in alphabetical order.
func (s *Runs) Sessions() ([]string, error) {
	var sessions []string
	err := s.db.Model(&RunRecord{}).Distinct("session").Order("session").Pluck("session", &sessions).Error
	if err != nil {
		return nil, fmt.Errorf("storage: sessions: %w", err)
	}
	return sessions, nil
}

// Count returns the number of runs stored for session.
func (s *Runs) Count(session string) (int64, error) {
	var count int64
	err := s.db.Model(&RunRecord{}).Where("session = ?", session).Count(&count).Error
	return count, err
}
