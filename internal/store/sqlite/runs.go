package sqlite

import (
	"context"
	"errors"
	"time"

	"breakbot/internal/store/model"
)

func (s *SqliteStore) SaveRun(ctx context.Context, run *model.BacktestRunModel) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if run.CreatedAtUnix == 0 {
		run.CreatedAtUnix = time.Now().Unix()
	}
	return s.db.WithContext(ctx).Create(run).Error
}

func (s *SqliteStore) ListRuns(ctx context.Context, limit int) ([]model.BacktestRunModel, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []model.BacktestRunModel
	if err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
