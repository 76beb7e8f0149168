package usage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// TokenUsageModel is the GORM row for the token_usage table.
type TokenUsageModel struct {
	ID        uint           `gorm:"primaryKey"`
	Provider  string         `gorm:"size:100;not null;index"`
	Model     string         `gorm:"size:100;not null;index"`
	Tokens    int            `gorm:"not null;default:0"`
	Timestamp time.Time      `gorm:"not null;index"`
	Metadata  datatypes.JSON `gorm:"type:jsonb"`
}

// TableName keeps the historical table name so existing reporting queries
// keep working.
func (TokenUsageModel) TableName() string { return "token_usage" }

// GormStore implements Recorder on GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migration for the usage table.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&TokenUsageModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Append inserts one usage row.
func (s *GormStore) Append(rec Record) error {
	row := TokenUsageModel{
		Provider:  rec.Provider,
		Model:     rec.Model,
		Tokens:    rec.Tokens,
		Timestamp: rec.Timestamp,
	}
	if rec.Metadata != nil {
		data, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		row.Metadata = datatypes.JSON(data)
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("append usage: %w", err)
	}
	return nil
}

// Last returns the newest usage row.
func (s *GormStore) Last() (Record, bool, error) {
	var row TokenUsageModel
	err := s.db.Order("timestamp DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("load last usage: %w", err)
	}
	return rowToRecord(row), true, nil
}

// Totals sums tokens grouped by provider and model.
func (s *GormStore) Totals() ([]Total, error) {
	var totals []Total
	err := s.db.Model(&TokenUsageModel{}).
		Select("provider, model, SUM(tokens) AS tokens").
		Group("provider").
		Group("model").
		Order("provider, model").
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("sum usage: %w", err)
	}
	return totals, nil
}

func rowToRecord(row TokenUsageModel) Record {
	rec := Record{
		Provider:  row.Provider,
		Model:     row.Model,
		Tokens:    row.Tokens,
		Timestamp: row.Timestamp,
	}
	if len(row.Metadata) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(row.Metadata, &meta); err == nil {
			rec.Metadata = meta
		}
	}
	return rec
}
