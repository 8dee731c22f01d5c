package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type ModelUsageRecord struct {
	ID            uint   `gorm:"primaryKey"`
	UserID        string `gorm:"uniqueIndex:idx_model_usage_day;size:64"`
	ModelID       string `gorm:"uniqueIndex:idx_model_usage_day;size:128"`
	Day           string `gorm:"uniqueIndex:idx_model_usage_day;size:10"`
	TokensUsed    int
	RequestsCount int
	TotalCost     float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ContextUsageRecord struct {
	ID                  uint   `gorm:"primaryKey"`
	UserID              string `gorm:"uniqueIndex:idx_context_usage_day;size:64"`
	Context             string `gorm:"uniqueIndex:idx_context_usage_day;size:32"`
	Day                 string `gorm:"uniqueIndex:idx_context_usage_day;size:10"`
	TokensUsed          int
	RequestsCount       int
	TotalCost           float64
	Errors              int
	RateLimitHits       int
	AverageResponseTime float64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// GormLedger persists the ledger through gorm. Increments are single
// INSERT ... ON CONFLICT DO UPDATE statements, so concurrent writers for the
// same key never lose updates.
type GormLedger struct {
	db *gorm.DB
}

// OpenSQLite opens (and creates) the usage database under dir.
func OpenSQLite(dir string) (*gorm.DB, error) {
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := gorm.Open(
		sqlite.Open(filepath.Join(dir, "ai-usage.db")), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func NewGormLedger(db *gorm.DB) (*GormLedger, error) {
	if err := db.AutoMigrate(&ModelUsageRecord{}, &ContextUsageRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger tables: %w", err)
	}
	return &GormLedger{db: db}, nil
}

func (l *GormLedger) GetModelUsage(ctx context.Context, userID, modelID, day string) (ModelUsage, error) {
	var rec ModelUsageRecord
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND model_id = ? AND day = ?", userID, modelID, day).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ModelUsage{UserID: userID, ModelID: modelID, Day: day}, nil
	}
	if err != nil {
		return ModelUsage{}, fmt.Errorf("failed to read model usage: %w", err)
	}
	return rec.toUsage(), nil
}

func (l *GormLedger) ModelUsageForDay(ctx context.Context, userID, day string) ([]ModelUsage, error) {
	var recs []ModelUsageRecord
	if err := l.db.WithContext(ctx).
		Where("user_id = ? AND day = ?", userID, day).
		Order("model_id").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list model usage: %w", err)
	}
	out := make([]ModelUsage, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toUsage())
	}
	return out, nil
}

func (l *GormLedger) AddModelUsage(ctx context.Context, userID, modelID, day string, tokens int, cost float64) error {
	rec := ModelUsageRecord{
		UserID:        userID,
		ModelID:       modelID,
		Day:           day,
		TokensUsed:    tokens,
		RequestsCount: 1,
		TotalCost:     cost,
	}
	err := l.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "model_id"}, {Name: "day"}},
			DoUpdates: clause.Assignments(
				map[string]interface{}{
					"tokens_used":    gorm.Expr("tokens_used + ?", tokens),
					"requests_count": gorm.Expr("requests_count + 1"),
					"total_cost":     gorm.Expr("total_cost + ?", cost),
					"updated_at":     time.Now(),
				},
			),
		},
	).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to add model usage: %w", err)
	}
	return nil
}

func (l *GormLedger) GetContextUsage(ctx context.Context, userID, usageContext, day string) (ContextUsage, error) {
	var rec ContextUsageRecord
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND context = ? AND day = ?", userID, usageContext, day).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ContextUsage{UserID: userID, Context: usageContext, Day: day}, nil
	}
	if err != nil {
		return ContextUsage{}, fmt.Errorf("failed to read context usage: %w", err)
	}
	return rec.toUsage(), nil
}

func (l *GormLedger) ContextUsageForDay(ctx context.Context, userID, day string) ([]ContextUsage, error) {
	var recs []ContextUsageRecord
	if err := l.db.WithContext(ctx).
		Where("user_id = ? AND day = ?", userID, day).
		Order("context").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list context usage: %w", err)
	}
	out := make([]ContextUsage, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toUsage())
	}
	return out, nil
}

func (l *GormLedger) RecordContextRequest(
	ctx context.Context, userID, usageContext, day string, sample ContextSample,
) error {
	failed := 0
	if sample.Failed {
		failed = 1
	}
	ms := millis(sample.ResponseTime)
	rec := ContextUsageRecord{
		UserID:              userID,
		Context:             usageContext,
		Day:                 day,
		TokensUsed:          sample.Tokens,
		RequestsCount:       1,
		TotalCost:           sample.Cost,
		Errors:              failed,
		AverageResponseTime: ms,
	}
	// SET expressions see the pre-update row, so the average uses the old count.
	err := l.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "context"}, {Name: "day"}},
			DoUpdates: clause.Assignments(
				map[string]interface{}{
					"tokens_used":    gorm.Expr("tokens_used + ?", sample.Tokens),
					"requests_count": gorm.Expr("requests_count + 1"),
					"total_cost":     gorm.Expr("total_cost + ?", sample.Cost),
					"errors":         gorm.Expr("errors + ?", failed),
					"average_response_time": gorm.Expr(
						"(average_response_time * requests_count + ?) / (requests_count + 1)", ms,
					),
					"updated_at": time.Now(),
				},
			),
		},
	).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to record context request: %w", err)
	}
	return nil
}

func (l *GormLedger) RecordRateLimitHit(ctx context.Context, userID, usageContext, day string) error {
	rec := ContextUsageRecord{
		UserID:        userID,
		Context:       usageContext,
		Day:           day,
		RateLimitHits: 1,
	}
	err := l.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "context"}, {Name: "day"}},
			DoUpdates: clause.Assignments(
				map[string]interface{}{
					"rate_limit_hits": gorm.Expr("rate_limit_hits + 1"),
					"updated_at":      time.Now(),
				},
			),
		},
	).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to record rate limit hit: %w", err)
	}
	return nil
}

func (r ModelUsageRecord) toUsage() ModelUsage {
	return ModelUsage{
		UserID:        r.UserID,
		ModelID:       r.ModelID,
		Day:           r.Day,
		TokensUsed:    r.TokensUsed,
		RequestsCount: r.RequestsCount,
		TotalCost:     r.TotalCost,
	}
}

func (r ContextUsageRecord) toUsage() ContextUsage {
	return ContextUsage{
		UserID:              r.UserID,
		Context:             r.Context,
		Day:                 r.Day,
		TokensUsed:          r.TokensUsed,
		RequestsCount:       r.RequestsCount,
		TotalCost:           r.TotalCost,
		Errors:              r.Errors,
		RateLimitHits:       r.RateLimitHits,
		AverageResponseTime: r.AverageResponseTime,
	}
}
