package api

const TimeLayout = "2006-01-02 15:04:05"

type TriggerRequest struct {
	Mode        string  `json:"mode"` // immediate, once, daily, weekly
	Environment string  `json:"environment"`
	Selection   string  `json:"selection"`
	TargetURL   *string `json:"target_url,omitempty"`
	FireAt      string  `json:"fire_at,omitempty"`     // once, RFC3339 or TimeLayout in server time zone
	Time        string  `json:"time,omitempty"`        // daily/weekly, HH:MM
	DayOfWeek   string  `json:"day_of_week,omitempty"` // weekly
}

type TriggerResponse struct {
	RunID       uint   `json:"run_id,omitempty"`
	ScheduleKey string `json:"schedule_key,omitempty"`
}

type RunBrief struct {
	ID           uint    `json:"id"`
	Environment  string  `json:"environment"`
	Selection    string  `json:"selection"`
	TargetURL    *string `json:"target_url,omitempty"`
	Status       string  `json:"status"`
	TriggerType  string  `json:"trigger_type"`
	ScheduleKey  string  `json:"schedule_key,omitempty"`
	ExitCode     *int    `json:"exit_code,omitempty"`
	ArtifactRef  *string `json:"artifact_ref,omitempty"`
	CreatedAt    string  `json:"created_at"`
	ScheduledFor string  `json:"scheduled_for,omitempty"`
	FinishedAt   string  `json:"finished_at,omitempty"`
	Duration     string  `json:"duration"`
}

type Stats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
}

type Schedule struct {
	Key         string  `json:"key"`
	Kind        string  `json:"kind"`
	Environment string  `json:"environment"`
	Selection   string  `json:"selection"`
	TargetURL   *string `json:"target_url,omitempty"`
	Time        string  `json:"time"`
	DayOfWeek   string  `json:"day_of_week,omitempty"`
	NextRun     string  `json:"next_run"`
}

type Environment struct {
	Name    string `json:"name"`
	EnvName string `json:"env_name"`
	BaseURL string `json:"base_url"`
	Timeout int    `json:"timeout"`
}

type TestCatalog struct {
	Suites        map[string][]string `json:"suites"`
	Tags          map[string][]string `json:"tags"`
	RobotFiles    []string            `json:"robot_files"`
	ResourceFiles []string            `json:"resource_files"`
}
