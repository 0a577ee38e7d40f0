package database

import (
	"context"

	"github.com/ZJUSCT/slotgarage/internal/database/models"
	"github.com/ZJUSCT/slotgarage/internal/ranking"
	"gorm.io/gorm"
)

// TimingStore persists circuit leaderboard positions for the ranking tracker.
type TimingStore struct {
	db *gorm.DB
}

func NewTimingStore(db *gorm.DB) *TimingStore {
	return &TimingStore{db: db}
}

var _ ranking.Store = (*TimingStore)(nil)

func (s *TimingStore) CircuitTimings(ctx context.Context, circuit string) ([]models.CircuitTiming, error) {
	var timings []models.CircuitTiming
	err := s.db.WithContext(ctx).
		Preload("Vehicle").
		Where("circuit = ? AND best_lap_time IS NOT NULL", circuit).
		Order("created_at asc, id asc").
		Find(&timings).Error
	if err != nil {
		return nil, err
	}
	return timings, nil
}

func (s *TimingStore) UpdatePosition(ctx context.Context, timingID string, u ranking.PositionUpdate) error {
	result := s.db.WithContext(ctx).Model(&models.CircuitTiming{}).
		Where("id = ?", timingID).
		Updates(map[string]interface{}{
			"current_position":    u.CurrentPosition,
			"previous_position":   u.PreviousPosition,
			"position_change":     u.PositionChange,
			"position_updated_at": u.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *TimingStore) ClearPositions(ctx context.Context, timingIDs []string) error {
	if len(timingIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.CircuitTiming{}).
		Where("id IN ?", timingIDs).
		Updates(map[string]interface{}{
			"current_position":  nil,
			"previous_position": nil,
			"position_change":   nil,
		}).Error
}
