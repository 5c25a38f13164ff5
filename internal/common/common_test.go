package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ROBOT_ROOT", "/srv/robot")
	t.Setenv("DB_PORT", "")
	t.Setenv("EXECUTOR_TIMEOUT", "")
	t.Setenv("RUNNER_COMMAND", "")

	cfg := LoadConfig()
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 0, cfg.DBPort)
	assert.Equal(t, []string{"python", "/srv/robot/runner/run_tests.py"}, cfg.RunnerCommand)
	assert.Equal(t, "/srv/robot/artifacts/robot/runs", cfg.ArtifactsRoot)
	assert.Equal(t, "/srv/robot/config", cfg.ConfigDir)
	assert.Equal(t, time.Duration(0), cfg.ExecutorTimeout)
	assert.Equal(t, time.Second, cfg.SchedulerTick)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("RUNNER_COMMAND", "robot-runner --quiet")
	t.Setenv("EXECUTOR_TIMEOUT", "90m")
	t.Setenv("MAX_CONCURRENT_RUNS", "not-a-number")

	cfg := LoadConfig()
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 6543, cfg.DBPort)
	assert.Equal(t, []string{"robot-runner", "--quiet"}, cfg.RunnerCommand)
	assert.Equal(t, 90*time.Minute, cfg.ExecutorTimeout)
	assert.Equal(t, 0, cfg.MaxConcurrentRuns)
}

func TestLocation(t *testing.T) {
	assert.Equal(t, time.Local, Config{}.Location())
	assert.Equal(t, time.Local, Config{Timezone: "Nowhere/Invalid"}.Location())
	assert.Equal(t, "UTC", Config{Timezone: "UTC"}.Location().String())
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in           string
		hour, minute int
		ok           bool
	}{
		{"06:30", 6, 30, true},
		{"23:59:59", 23, 59, true},
		{"7", 7, 0, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"", 0, 0, false},
		{"ab:cd", 0, 0, false},
	}
	for _, c := range cases {
		h, m, err := ParseClock(c.in)
		if !c.ok {
			assert.Error(t, err, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		assert.Equal(t, c.hour, h, c.in)
		assert.Equal(t, c.minute, m, c.in)
	}
}

func TestFormatRunDuration(t *testing.T) {
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		t := start.Add(d)
		return &t
	}

	assert.Equal(t, "45s", FormatRunDuration("passed", start, at(45*time.Second)))
	assert.Equal(t, "2m", FormatRunDuration("failed", start, at(2*time.Minute)))
	assert.Equal(t, "1m 5s", FormatRunDuration("error", start, at(65*time.Second)))
	assert.Equal(t, "-", FormatRunDuration("scheduled", start, nil))
	assert.Contains(t, FormatRunDuration("running", start, nil), "Running since")
}

func TestErrNo(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewErrNo(RunNotExists))
	assert.True(t, IsErrNo(err, RunNotExists))
	assert.False(t, IsErrNo(err, ScheduleNotExists))
	assert.Equal(t, RunNotExists, ConvertErr(err).ErrCode)

	e := ConvertErr(errors.New("disk full"))
	assert.Equal(t, ServiceErr, e.ErrCode)
	assert.Equal(t, "disk full", e.ErrMsg)

	e = ConvertErr(NewErrNoMsg(ScheduleInvalid, "bad day"))
	assert.Equal(t, "schedule invalid: bad day", e.ErrMsg)
}

func TestErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, NewErrNo(RunNotExists))
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, RunNotExists, resp.Code)
	assert.Equal(t, "run not exists", resp.Message)
	assert.Nil(t, resp.Data)
}
