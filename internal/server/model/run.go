package model

import "time"

type RunStatus string

const (
	StatusScheduled RunStatus = "scheduled"
	StatusRunning   RunStatus = "running"
	StatusFinished  RunStatus = "finished"
	StatusFailed    RunStatus = "failed"
	StatusError     RunStatus = "error"
	StatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether a run in this status carries a finished_at.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusError, StatusCancelled:
		return true
	}
	return false
}

func (s RunStatus) Valid() bool {
	return s == StatusScheduled || s == StatusRunning || s.IsTerminal()
}

type TriggerType string

const (
	TriggerImmediate TriggerType = "immediate"
	TriggerOnce      TriggerType = "once"
	TriggerDaily     TriggerType = "daily"
	TriggerWeekly    TriggerType = "weekly"
	TriggerRerun     TriggerType = "rerun"
)

// Run is one execution of a selection of tests against an environment.
type Run struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Environment  string      `gorm:"column:env;type:varchar(64);not null;index" json:"environment"`
	Selection    string      `gorm:"column:selection;type:varchar(255);not null;default:''" json:"selection"`
	TargetURL    *string     `gorm:"column:target_url;type:varchar(512)" json:"target_url,omitempty"`
	Status       RunStatus   `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	TriggerType  TriggerType `gorm:"column:trigger_type;type:varchar(16);not null" json:"trigger_type"`
	ScheduleKey  string      `gorm:"column:schedule_key;type:varchar(255)" json:"schedule_key,omitempty"`
	ExitCode     *int        `gorm:"column:exit_code" json:"exit_code,omitempty"`
	ArtifactRef  *string     `gorm:"column:artifact_ref;type:varchar(255)" json:"artifact_ref,omitempty"`
	CreatedAt    time.Time   `gorm:"column:created_at" json:"created_at"`
	ScheduledFor *time.Time  `gorm:"column:scheduled_for" json:"scheduled_for,omitempty"`
	FinishedAt   *time.Time  `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

func (Run) TableName() string {
	return "test_runs"
}
