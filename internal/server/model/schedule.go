package model

import "time"

type ScheduleKind string

const (
	ScheduleDaily  ScheduleKind = "daily"
	ScheduleWeekly ScheduleKind = "weekly"
)

// Schedule is a persisted recurring trigger, re-registered at startup.
type Schedule struct {
	Key         string       `gorm:"column:schedule_key;primaryKey;type:varchar(255)" json:"key"`
	Kind        ScheduleKind `gorm:"column:kind;type:varchar(16);not null" json:"kind"`
	Environment string       `gorm:"column:env;type:varchar(64);not null" json:"environment"`
	Selection   string       `gorm:"column:selection;type:varchar(255);not null;default:''" json:"selection"`
	TargetURL   *string      `gorm:"column:target_url;type:varchar(512)" json:"target_url,omitempty"`
	Hour        int          `gorm:"column:hour;not null" json:"hour"`
	Minute      int          `gorm:"column:minute;not null" json:"minute"`
	DayOfWeek   string       `gorm:"column:day_of_week;type:varchar(16)" json:"day_of_week,omitempty"`
	CreatedAt   time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (Schedule) TableName() string {
	return "recurring_schedules"
}
