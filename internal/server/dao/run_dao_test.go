package dao_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taf/internal/common"
	"taf/internal/server/dao"
	"taf/internal/server/dao/daotest"
	"taf/internal/server/model"
)

func newRun(env string, status model.RunStatus) *model.Run {
	return &model.Run{
		Environment: env,
		Selection:   "smoke",
		Status:      status,
		TriggerType: model.TriggerImmediate,
	}
}

func TestRunDao_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	runs := dao.NewRunDao(daotest.NewTestDB(t))

	url := "https://staging.example.com"
	run := newRun("staging", model.StatusRunning)
	run.TargetURL = &url
	require.NoError(t, runs.Create(ctx, run))
	require.NotZero(t, run.ID)

	got, err := runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "staging", got.Environment)
	assert.Equal(t, "smoke", got.Selection)
	assert.Equal(t, model.StatusRunning, got.Status)
	require.NotNil(t, got.TargetURL)
	assert.Equal(t, url, *got.TargetURL)
	assert.Nil(t, got.FinishedAt)
	assert.Nil(t, got.ArtifactRef)
}

func TestRunDao_GetMissing(t *testing.T) {
	runs := dao.NewRunDao(daotest.NewTestDB(t))

	_, err := runs.GetByID(context.Background(), 42)
	assert.True(t, common.IsErrNo(err, common.RunNotExists))
}

func TestRunDao_UpdateStatusPartial(t *testing.T) {
	ctx := context.Background()
	runs := dao.NewRunDao(daotest.NewTestDB(t))

	run := newRun("dev", model.StatusRunning)
	require.NoError(t, runs.Create(ctx, run))

	ref := "20240101T000000Z_abcd1234"
	code := 1
	now := time.Now()
	require.NoError(t, runs.UpdateStatus(ctx, run.ID, dao.StatusUpdate{
		Status:      model.StatusFailed,
		ArtifactRef: &ref,
		ExitCode:    &code,
		FinishedAt:  &now,
	}))

	got, err := runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	require.NotNil(t, got.ArtifactRef)
	assert.Equal(t, ref, *got.ArtifactRef)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 1, *got.ExitCode)
	assert.NotNil(t, got.FinishedAt)
	// untouched fields survive
	assert.Equal(t, "smoke", got.Selection)

	err = runs.UpdateStatus(ctx, 9999, dao.StatusUpdate{Status: model.StatusError})
	assert.True(t, common.IsErrNo(err, common.RunNotExists))
}

func TestRunDao_TransitionStatusGuard(t *testing.T) {
	ctx := context.Background()
	runs := dao.NewRunDao(daotest.NewTestDB(t))

	run := newRun("dev", model.StatusScheduled)
	require.NoError(t, runs.Create(ctx, run))

	ok, err := runs.TransitionStatus(ctx, run.ID, []model.RunStatus{model.StatusRunning}, dao.StatusUpdate{Status: model.StatusFinished})
	require.NoError(t, err)
	assert.False(t, ok, "wrong source status must not apply")

	ok, err = runs.TransitionStatus(ctx, run.ID, []model.RunStatus{model.StatusScheduled}, dao.StatusUpdate{Status: model.StatusRunning})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, got.Status)

	ok, err = runs.TransitionStatus(ctx, 12345, []model.RunStatus{model.StatusScheduled}, dao.StatusUpdate{Status: model.StatusRunning})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunDao_TransitionStatusSingleWinner(t *testing.T) {
	ctx := context.Background()
	runs := dao.NewRunDao(daotest.NewTestDB(t))

	run := newRun("dev", model.StatusScheduled)
	require.NoError(t, runs.Create(ctx, run))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, target := range []model.RunStatus{model.StatusRunning, model.StatusCancelled, model.StatusRunning, model.StatusCancelled} {
		wg.Add(1)
		go func(target model.RunStatus) {
			defer wg.Done()
			ok, err := runs.TransitionStatus(ctx, run.ID, []model.RunStatus{model.StatusScheduled}, dao.StatusUpdate{Status: target})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(target)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRunDao_ListAndCount(t *testing.T) {
	ctx := context.Background()
	runs := dao.NewRunDao(daotest.NewTestDB(t))

	for _, r := range []*model.Run{
		newRun("dev", model.StatusFinished),
		newRun("dev", model.StatusFailed),
		newRun("staging", model.StatusFinished),
		newRun("staging", model.StatusScheduled),
	} {
		require.NoError(t, runs.Create(ctx, r))
	}

	all, err := runs.List(ctx, dao.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Greater(t, all[0].ID, all[3].ID, "newest first")

	dev, err := runs.List(ctx, dao.ListOptions{Environment: "dev"})
	require.NoError(t, err)
	assert.Len(t, dev, 2)

	finished, err := runs.List(ctx, dao.ListOptions{Status: model.StatusFinished, Limit: 1})
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.Equal(t, "staging", finished[0].Environment)

	counts, err := runs.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[model.StatusFinished])
	assert.Equal(t, int64(1), counts[model.StatusFailed])
	assert.Equal(t, int64(1), counts[model.StatusScheduled])
	assert.Zero(t, counts[model.StatusRunning])
}
