package sqlite

import (
	"context"
	"errors"
	"time"

	"breakbot/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SavePosition upserts the single live position row.
func (s *SqliteStore) SavePosition(ctx context.Context, p *model.PositionModel) error {
	if p == nil {
		return errors.New("position cannot be nil")
	}
	now := time.Now().Unix()
	p.ID = model.PositionSingletonID
	if p.CreatedAtUnix == 0 {
		p.CreatedAtUnix = now
	}
	p.UpdatedAtUnix = now
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(p).Error
}

func (s *SqliteStore) LoadPosition(ctx context.Context) (*model.PositionModel, error) {
	var p model.PositionModel
	err := s.db.WithContext(ctx).
		Where("id = ?", model.PositionSingletonID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SqliteStore) DeletePosition(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("id = ?", model.PositionSingletonID).
		Delete(&model.PositionModel{}).Error
}
