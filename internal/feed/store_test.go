package feed_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsnow/internal/database"
	"eventsnow/internal/database/migrations"
	"eventsnow/internal/events/db"
	"eventsnow/internal/feed"
	"eventsnow/internal/logger"
	"eventsnow/internal/models"
)

func TestFeedAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	bunDB, err := database.OpenSQLite(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	defer bunDB.Close()
	require.NoError(t, migrations.EnsureSchema(ctx, bunDB, logger.NewNop()))

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	repo := db.New(bunDB)
	repo.Now = func() time.Time { return now }

	create := func(title, category string, photos ...string) int64 {
		id, err := repo.CreateEvent(ctx, models.NewEvent{
			OrganizerID:  1,
			Category:     category,
			Title:        title,
			Description:  "d",
			EventDate:    "20.06.2025",
			EventTime:    "19:00",
			PhotoFileIDs: photos,
		})
		require.NoError(t, err)
		_, err = repo.ApproveEvent(ctx, id)
		require.NoError(t, err)
		return id
	}

	plain := create("plain", "🎵 Концерт")
	highlighted := create("highlighted", "🎵 Концерт", "h1", "h2")
	top := create("top", "🎵 Концерт", "t1")
	play := create("play", "Спектакль")

	topUntil := now.Add(7 * 24 * time.Hour)
	_, err = repo.SetEventPromoted(ctx, top, models.PromoTop, &topUntil)
	require.NoError(t, err)
	hlUntil := now.Add(3 * 24 * time.Hour)
	_, err = repo.SetEventPromoted(ctx, highlighted, models.PromoHighlight, &hlUntil)
	require.NoError(t, err)

	builder := feed.NewBuilder(repo, time.UTC, 10, logger.NewNop())
	builder.Now = func() time.Time { return now }

	items, err := builder.Build(ctx, feed.Filter{Category: "концерт"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []int64{top, highlighted, plain}, []int64{items[0].Event.ID, items[1].Event.ID, items[2].Event.ID})
	assert.Equal(t, "t1", items[0].CoverPhoto)
	assert.Equal(t, "h1", items[1].CoverPhoto)
	assert.Empty(t, items[2].CoverPhoto)

	items, err = builder.Build(ctx, feed.Filter{OnlyPromoted: true})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, top, items[0].Event.ID)
	assert.Equal(t, highlighted, items[1].Event.ID)

	// eight days later the top placement has expired and the highlight flag still holds
	builder.Now = func() time.Time { return now.Add(8 * 24 * time.Hour) }
	items, err = builder.Build(ctx, feed.Filter{})
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, highlighted, items[0].Event.ID)
	assert.Contains(t, []int64{items[1].Event.ID, items[2].Event.ID, items[3].Event.ID}, play)
}
