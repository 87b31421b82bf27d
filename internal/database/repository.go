package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HistoryRepository persists playback session outcomes
type HistoryRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a repository over the given connection
func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// RecordSession writes one finished session summary
func (r *HistoryRepository) RecordSession(entry *PlaybackHistory) error {
	if entry.ID == "" {
		return fmt.Errorf("history entry requires an ID")
	}
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record playback history: %w", err)
	}
	return nil
}

// RecentSessions returns the most recent session summaries, newest first
func (r *HistoryRepository) RecentSessions(limit int) ([]PlaybackHistory, error) {
	if limit <= 0 {
		limit = 20
	}

	var entries []PlaybackHistory
	err := r.db.Order("ended_at DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query playback history: %w", err)
	}
	return entries, nil
}

// SaveResumePosition upserts the last playback position for a media file
func (r *HistoryRepository) SaveResumePosition(mediaPath string, frame uint32, positionSecs float64) error {
	pos := ResumePosition{
		MediaPath:    mediaPath,
		FrameNumber:  frame,
		PositionSecs: positionSecs,
		UpdatedAt:    time.Now(),
	}

	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "media_path"}},
		UpdateAll: true,
	}).Create(&pos).Error
	if err != nil {
		return fmt.Errorf("failed to save resume position: %w", err)
	}
	return nil
}

// GetResumePosition returns the stored resume position for a media file,
// or (nil, nil) when none exists.
func (r *HistoryRepository) GetResumePosition(mediaPath string) (*ResumePosition, error) {
	var pos ResumePosition
	err := r.db.First(&pos, "media_path = ?", mediaPath).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query resume position: %w", err)
	}
	return &pos, nil
}
