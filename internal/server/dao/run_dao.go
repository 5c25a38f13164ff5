package dao

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"taf/internal/common"
	"taf/internal/server/model"
)

// StatusUpdate is a partial update of a run; nil fields are left untouched.
type StatusUpdate struct {
	Status      model.RunStatus
	ArtifactRef *string
	ExitCode    *int
	FinishedAt  *time.Time
}

func (u StatusUpdate) columns() map[string]interface{} {
	cols := map[string]interface{}{"status": u.Status}
	if u.ArtifactRef != nil {
		cols["artifact_ref"] = *u.ArtifactRef
	}
	if u.ExitCode != nil {
		cols["exit_code"] = *u.ExitCode
	}
	if u.FinishedAt != nil {
		cols["finished_at"] = *u.FinishedAt
	}
	return cols
}

type ListOptions struct {
	Status      model.RunStatus
	Environment string
	Limit       int
	Offset      int
}

type RunDao interface {
	// create run, assigns the id
	Create(ctx context.Context, run *model.Run) error
	GetByID(ctx context.Context, id uint) (*model.Run, error)
	UpdateStatus(ctx context.Context, id uint, update StatusUpdate) error
	// update only when the run is still in one of the from statuses
	TransitionStatus(ctx context.Context, id uint, from []model.RunStatus, update StatusUpdate) (bool, error)
	List(ctx context.Context, opts ListOptions) ([]*model.Run, error)
	CountByStatus(ctx context.Context) (map[model.RunStatus]int64, error)
}

type runDAO struct {
	db *gorm.DB
}

func NewRunDao(db *gorm.DB) RunDao {
	return &runDAO{db: db}
}

func (d *runDAO) Create(ctx context.Context, run *model.Run) error {
	return d.db.WithContext(ctx).Create(run).Error
}

func (d *runDAO) GetByID(ctx context.Context, id uint) (*model.Run, error) {
	var run model.Run
	if err := d.db.WithContext(ctx).Where("id = ?", id).Take(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewErrNo(common.RunNotExists)
		}
		return nil, err
	}
	return &run, nil
}

func (d *runDAO) UpdateStatus(ctx context.Context, id uint, update StatusUpdate) error {
	res := d.db.WithContext(ctx).Model(&model.Run{}).Where("id = ?", id).Updates(update.columns())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.NewErrNo(common.RunNotExists)
	}
	return nil
}

func (d *runDAO) TransitionStatus(ctx context.Context, id uint, from []model.RunStatus, update StatusUpdate) (bool, error) {
	statuses := make([]string, 0, len(from))
	for _, s := range from {
		statuses = append(statuses, string(s))
	}
	res := d.db.WithContext(ctx).Model(&model.Run{}).
		Where("id = ? AND status IN ?", id, statuses).
		Updates(update.columns())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (d *runDAO) List(ctx context.Context, opts ListOptions) ([]*model.Run, error) {
	q := d.db.WithContext(ctx).Model(&model.Run{})
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.Environment != "" {
		q = q.Where("env = ?", opts.Environment)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	var runs []*model.Run
	if err := q.Order("id DESC").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (d *runDAO) CountByStatus(ctx context.Context) (map[model.RunStatus]int64, error) {
	var rows []struct {
		Status model.RunStatus
		Total  int64
	}
	err := d.db.WithContext(ctx).Model(&model.Run{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[model.RunStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}
