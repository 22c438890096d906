package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"ddmbound/internal/store"
	storemodel "ddmbound/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type runModel = storemodel.RunModel
type stepModel = storemodel.StepModel

// GormStore implements run/step storage using Gorm + SQLite.
type GormStore struct {
	db *gorm.DB
}

var _ store.RunStore = (*GormStore)(nil)

// NewGormStore initializes a new GormStore instance.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &stepModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a session writes while the HTTP server reads.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertRun creates a run row; re-inserting the same id overwrites it.
func (s *GormStore) InsertRun(ctx context.Context, run store.Run) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id 必填")
	}
	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = store.RunStatusRunning
	}
	m := newRunModel(run)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

// AppendStep stores one update; step.ID is filled from the insert.
func (s *GormStore) AppendStep(ctx context.Context, step *store.Step) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	if step == nil {
		return nil
	}
	if strings.TrimSpace(step.RunID) == "" {
		return fmt.Errorf("run id 必填")
	}
	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now()
	}
	m, err := newStepModel(*step)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		res := tx.Model(&runModel{}).
			Where("id = ?", step.RunID).
			Updates(map[string]interface{}{
				"completed":        gorm.Expr("completed + 1"),
				"last_reward_rate": step.RewardRate,
				"final_slope":      step.Slope,
				"final_intercept":  step.Intercept,
				"updated_at":       step.CreatedAt.UnixMilli(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		step.ID = m.ID
		return nil
	})
}

// FinishRun writes the terminal status and summary.
func (s *GormStore) FinishRun(ctx context.Context, id string, status store.RunStatus, summary store.RunSummary) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	now := time.Now().UnixMilli()
	res := s.db.WithContext(ctx).
		Model(&runModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           string(status),
			"completed":        summary.Completed,
			"final_slope":      summary.FinalSlope,
			"final_intercept":  summary.FinalIntercept,
			"best_reward_rate": summary.BestRewardRate,
			"last_reward_rate": summary.LastRewardRate,
			"message":          summary.Message,
			"updated_at":       now,
			"completed_at":     now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *GormStore) GetRun(ctx context.Context, id string) (store.Run, error) {
	if s == nil || s.db == nil {
		return store.Run{}, fmt.Errorf("gorm store 未初始化")
	}
	var m runModel
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Run{}, store.ErrNotFound
	}
	if err != nil {
		return store.Run{}, err
	}
	return runModelToRecord(m), nil
}

// ListRuns returns the most recent runs first.
func (s *GormStore) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var models []runModel
	if err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.Run, 0, len(models))
	for _, m := range models {
		out = append(out, runModelToRecord(m))
	}
	return out, nil
}

// ListSteps returns steps of a run in iteration order. limit <= 0 returns all steps.
func (s *GormStore) ListSteps(ctx context.Context, runID string, limit int) ([]store.Step, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	q := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("iteration ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []stepModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.Step, 0, len(models))
	for _, m := range models {
		rec, err := stepModelToRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// --------------------------- Model Helpers ------------------------------

func ensureDir(path string) error {
	dir := filepathDir(path)
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func newRunModel(rec store.Run) runModel {
	m := runModel{
		ID:             rec.ID,
		Name:           rec.Name,
		Method:         rec.Method,
		Status:         string(rec.Status),
		Seed:           rec.Seed,
		Iterations:     rec.Iterations,
		Completed:      rec.Completed,
		InitSlope:      rec.InitSlope,
		InitIntercept:  rec.InitIntercept,
		FinalSlope:     rec.FinalSlope,
		FinalIntercept: rec.FinalIntercept,
		BestRewardRate: rec.BestRewardRate,
		LastRewardRate: rec.LastRewardRate,
		ConfigJSON:     datatypes.JSON(mustJSONBytes(string(rec.Config))),
		Message:        rec.Message,
		CreatedAt:      timeToMillis(&rec.CreatedAt),
		UpdatedAt:      timeToMillis(&rec.UpdatedAt),
	}
	if !rec.CompletedAt.IsZero() {
		v := rec.CompletedAt.UnixMilli()
		m.CompletedAt = &v
	}
	return m
}

func runModelToRecord(m runModel) store.Run {
	rec := store.Run{
		ID:             m.ID,
		Name:           m.Name,
		Method:         m.Method,
		Status:         store.RunStatus(m.Status),
		Seed:           m.Seed,
		Iterations:     m.Iterations,
		Completed:      m.Completed,
		InitSlope:      m.InitSlope,
		InitIntercept:  m.InitIntercept,
		FinalSlope:     m.FinalSlope,
		FinalIntercept: m.FinalIntercept,
		BestRewardRate: m.BestRewardRate,
		LastRewardRate: m.LastRewardRate,
		Config:         json.RawMessage(jsonBytesToString(m.ConfigJSON)),
		Message:        m.Message,
		CreatedAt:      millisToTime(m.CreatedAt),
		UpdatedAt:      millisToTime(m.UpdatedAt),
	}
	if m.CompletedAt != nil {
		rec.CompletedAt = millisToTime(*m.CompletedAt)
	}
	return rec
}

func newStepModel(rec store.Step) (stepModel, error) {
	walks := []byte("[]")
	if len(rec.Walks) > 0 {
		raw, err := json.Marshal(rec.Walks)
		if err != nil {
			return stepModel{}, fmt.Errorf("encode walks failed: %w", err)
		}
		walks = raw
	}
	return stepModel{
		RunID:           rec.RunID,
		Iteration:       rec.Iteration,
		WindowSlope:     rec.WindowSlope,
		WindowIntercept: rec.WindowIntercept,
		Slope:           rec.Slope,
		Intercept:       rec.Intercept,
		RewardRate:      rec.RewardRate,
		WindowRate:      rec.WindowRate,
		Accuracy:        rec.Accuracy,
		MeanRT:          rec.MeanRT,
		Trials:          rec.Trials,
		Explored:        rec.Explored,
		Jumped:          rec.Jumped,
		Samples:         rec.Samples,
		DSlope:          rec.DSlope,
		DIntercept:      rec.DIntercept,
		WalksJSON:       datatypes.JSON(walks),
		CreatedAt:       timeToMillis(&rec.CreatedAt),
	}, nil
}

func stepModelToRecord(m stepModel) (store.Step, error) {
	rec := store.Step{
		ID:              m.ID,
		RunID:           m.RunID,
		Iteration:       m.Iteration,
		WindowSlope:     m.WindowSlope,
		WindowIntercept: m.WindowIntercept,
		Slope:           m.Slope,
		Intercept:       m.Intercept,
		RewardRate:      m.RewardRate,
		WindowRate:      m.WindowRate,
		Accuracy:        m.Accuracy,
		MeanRT:          m.MeanRT,
		Trials:          m.Trials,
		Explored:        m.Explored,
		Jumped:          m.Jumped,
		Samples:         m.Samples,
		DSlope:          m.DSlope,
		DIntercept:      m.DIntercept,
		CreatedAt:       millisToTime(m.CreatedAt),
	}
	if len(m.WalksJSON) > 0 {
		if err := json.Unmarshal(m.WalksJSON, &rec.Walks); err != nil {
			return store.Step{}, fmt.Errorf("decode walks failed: %w", err)
		}
		if len(rec.Walks) == 0 {
			rec.Walks = nil
		}
	}
	return rec, nil
}

// --------------------------- Helper Functions ------------------------------------

func mustJSONBytes(raw string) []byte {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []byte("{}")
	}
	return []byte(raw)
}

func jsonBytesToString(data datatypes.JSON) string {
	if len(data) == 0 {
		return "{}"
	}
	return string(data)
}

func timeToMillis(t *time.Time) int64 {
	if t == nil || t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}

func filepathDir(path string) string {
	last := strings.LastIndex(path, "/")
	if last == -1 {
		last = strings.LastIndex(path, "\\")
	}
	if last == -1 {
		return ""
	}
	return path[:last]
}
