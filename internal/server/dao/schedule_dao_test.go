package dao_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taf/internal/server/dao"
	"taf/internal/server/dao/daotest"
	"taf/internal/server/model"
)

func TestScheduleDao_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	schedules := dao.NewScheduleDao(daotest.NewTestDB(t))

	require.NoError(t, schedules.Upsert(ctx, &model.Schedule{
		Key: "recurring-daily-dev-smoke", Kind: model.ScheduleDaily,
		Environment: "dev", Selection: "smoke", Hour: 2, Minute: 0,
	}))
	require.NoError(t, schedules.Upsert(ctx, &model.Schedule{
		Key: "recurring-daily-dev-smoke", Kind: model.ScheduleDaily,
		Environment: "dev", Selection: "smoke", Hour: 3, Minute: 30,
	}))

	list, err := schedules.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Hour)
	assert.Equal(t, 30, list[0].Minute)
}

func TestScheduleDao_Delete(t *testing.T) {
	ctx := context.Background()
	schedules := dao.NewScheduleDao(daotest.NewTestDB(t))

	require.NoError(t, schedules.Upsert(ctx, &model.Schedule{
		Key: "recurring-weekly-dev-", Kind: model.ScheduleWeekly,
		Environment: "dev", Hour: 8, Minute: 15, DayOfWeek: "mon",
	}))

	ok, err := schedules.Delete(ctx, "recurring-weekly-dev-")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = schedules.Delete(ctx, "recurring-weekly-dev-")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := schedules.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
