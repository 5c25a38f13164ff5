package dao

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"taf/internal/server/model"
)

type ScheduleDao interface {
	// insert or replace by key
	Upsert(ctx context.Context, schedule *model.Schedule) error
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context) ([]*model.Schedule, error)
}

type scheduleDAO struct {
	db *gorm.DB
}

func NewScheduleDao(db *gorm.DB) ScheduleDao {
	return &scheduleDAO{db: db}
}

func (d *scheduleDAO) Upsert(ctx context.Context, schedule *model.Schedule) error {
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "schedule_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"kind", "env", "selection", "target_url", "hour", "minute", "day_of_week", "updated_at",
		}),
	}).Create(schedule).Error
}

func (d *scheduleDAO) Delete(ctx context.Context, key string) (bool, error) {
	res := d.db.WithContext(ctx).Where("schedule_key = ?", key).Delete(&model.Schedule{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (d *scheduleDAO) List(ctx context.Context) ([]*model.Schedule, error) {
	var schedules []*model.Schedule
	if err := d.db.WithContext(ctx).Order("schedule_key").Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}
