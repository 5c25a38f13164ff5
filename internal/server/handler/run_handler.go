package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"taf/internal/common"
	"taf/internal/server/dao"
	"taf/internal/server/model"
	"taf/internal/server/scheduler"
	"taf/internal/server/service"
	"taf/pkg/api"
)

type RunHandler struct {
	svc *service.RunService
	loc *time.Location
}

func NewRunHandler(svc *service.RunService, loc *time.Location) *RunHandler {
	return &RunHandler{svc: svc, loc: loc}
}

func (h *RunHandler) Register(r gin.IRouter) {
	r.POST("/runs", h.Trigger)
	r.GET("/runs", h.ListRuns)
	r.GET("/runs/:id", h.GetRun)
	r.POST("/runs/:id/cancel", h.Cancel)
	r.POST("/runs/:id/rerun", h.Rerun)
	r.GET("/runs/:id/report", h.Report)
	r.GET("/stats", h.Stats)
	r.GET("/schedules", h.ListSchedules)
	r.DELETE("/schedules/:key", h.RemoveSchedule)
	r.GET("/environments", h.ListEnvironments)
	r.GET("/tests", h.ListTests)
	r.POST("/tests", h.UploadTests)
}

func (h *RunHandler) Trigger(c *gin.Context) {
	var req api.TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, common.NewErrNo(common.RequestInvalid))
		return
	}

	sreq := service.TriggerRequest{
		Mode:        service.TriggerMode(req.Mode),
		Environment: req.Environment,
		Selection:   strings.TrimSpace(req.Selection),
		TargetURL:   req.TargetURL,
		Time:        req.Time,
		DayOfWeek:   req.DayOfWeek,
	}
	if req.FireAt != "" {
		fireAt, err := parseFireAt(req.FireAt, h.loc)
		if err != nil {
			common.Error(c, common.NewErrNoMsg(common.ScheduleInvalid, err.Error()))
			return
		}
		sreq.FireAt = &fireAt
	}

	res, err := h.svc.Trigger(c, sreq)
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, api.TriggerResponse{RunID: res.RunID, ScheduleKey: res.ScheduleKey})
}

func (h *RunHandler) ListRuns(c *gin.Context) {
	opts := dao.ListOptions{
		Status:      model.RunStatus(c.Query("status")),
		Environment: c.Query("env"),
	}
	if opts.Status != "" && !opts.Status.Valid() {
		common.Error(c, common.NewErrNoMsg(common.RequestInvalid, "unknown status "+string(opts.Status)))
		return
	}
	var err error
	if opts.Limit, err = queryInt(c, "limit", 100); err != nil {
		common.Error(c, common.NewErrNo(common.RequestInvalid))
		return
	}
	if opts.Offset, err = queryInt(c, "offset", 0); err != nil {
		common.Error(c, common.NewErrNo(common.RequestInvalid))
		return
	}

	runs, err := h.svc.List(c, opts)
	if err != nil {
		common.Error(c, err)
		return
	}
	briefs := make([]api.RunBrief, 0, len(runs))
	for _, run := range runs {
		briefs = append(briefs, toRunBrief(run))
	}
	common.Success(c, briefs)
}

func (h *RunHandler) GetRun(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}
	run, err := h.svc.GetStatus(c, id)
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, toRunBrief(run))
}

func (h *RunHandler) Cancel(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}
	if err := h.svc.Cancel(c, id); err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, nil)
}

func (h *RunHandler) Rerun(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}
	newID, err := h.svc.Rerun(c, id)
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, api.TriggerResponse{RunID: newID})
}

// Report serves the robot log page; ?download=1 sends it as an attachment.
func (h *RunHandler) Report(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}
	path, err := h.svc.ReportPath(c, id)
	if err != nil {
		common.Error(c, err)
		return
	}
	if download, _ := strconv.ParseBool(c.Query("download")); download {
		c.FileAttachment(path, fmt.Sprintf("report-%s.html", filepath.Base(filepath.Dir(path))))
		return
	}
	c.File(path)
}

func (h *RunHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c)
	if err != nil {
		common.Error(c, err)
		return
	}
	out := api.Stats{Total: stats.Total, ByStatus: make(map[string]int64, len(stats.ByStatus))}
	for status, n := range stats.ByStatus {
		out.ByStatus[string(status)] = n
	}
	common.Success(c, out)
}

func (h *RunHandler) ListSchedules(c *gin.Context) {
	entries := h.svc.Schedules()
	out := make([]api.Schedule, 0, len(entries))
	for _, e := range entries {
		out = append(out, toSchedule(e))
	}
	common.Success(c, out)
}

func (h *RunHandler) RemoveSchedule(c *gin.Context) {
	if err := h.svc.RemoveSchedule(c, c.Param("key")); err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, nil)
}

func (h *RunHandler) ListEnvironments(c *gin.Context) {
	envs, err := h.svc.Environments()
	if err != nil {
		common.Error(c, err)
		return
	}
	out := make([]api.Environment, 0, len(envs))
	for _, e := range envs {
		out = append(out, api.Environment{Name: e.Name, EnvName: e.EnvName, BaseURL: e.BaseURL, Timeout: e.Timeout})
	}
	common.Success(c, out)
}

func (h *RunHandler) ListTests(c *gin.Context) {
	res, err := h.svc.Tests()
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, api.TestCatalog{
		Suites:        res.Suites,
		Tags:          res.Tags,
		RobotFiles:    res.RobotFiles,
		ResourceFiles: res.ResourceFiles,
	})
}

// UploadTests stores multipart "files" (.robot or .resource).
func (h *RunHandler) UploadTests(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		common.Error(c, common.NewErrNoMsg(common.RequestInvalid, "no files uploaded"))
		return
	}
	saved := make([]string, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			common.Error(c, err)
			return
		}
		err = h.svc.UploadTest(fh.Filename, f)
		f.Close()
		if err != nil {
			common.Error(c, err)
			return
		}
		saved = append(saved, filepath.Base(fh.Filename))
	}
	common.Success(c, saved)
}

func Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func runID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		common.Error(c, common.NewErrNoMsg(common.RequestInvalid, "invalid run id"))
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

var fireAtLayouts = []string{
	api.TimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04", // html datetime-local
	"2006-01-02 15:04",
}

func parseFireAt(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range fireAtLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid fire time %q", s)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Local().Format(api.TimeLayout)
}

func toRunBrief(run *model.Run) api.RunBrief {
	return api.RunBrief{
		ID:           run.ID,
		Environment:  run.Environment,
		Selection:    run.Selection,
		TargetURL:    run.TargetURL,
		Status:       string(run.Status),
		TriggerType:  string(run.TriggerType),
		ScheduleKey:  run.ScheduleKey,
		ExitCode:     run.ExitCode,
		ArtifactRef:  run.ArtifactRef,
		CreatedAt:    formatTime(&run.CreatedAt),
		ScheduledFor: formatTime(run.ScheduledFor),
		FinishedAt:   formatTime(run.FinishedAt),
		Duration:     common.FormatRunDuration(string(run.Status), run.CreatedAt, run.FinishedAt),
	}
}

func toSchedule(e scheduler.RecurringEntry) api.Schedule {
	return api.Schedule{
		Key:         e.Key,
		Kind:        string(e.Spec.Kind),
		Environment: e.Spec.Environment,
		Selection:   e.Spec.Selection,
		TargetURL:   e.Spec.TargetURL,
		Time:        fmt.Sprintf("%02d:%02d", e.Spec.Hour, e.Spec.Minute),
		DayOfWeek:   e.Spec.DayOfWeek,
		NextRun:     e.Next.Format(api.TimeLayout),
	}
}
