package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyplayer/internal/slug"
)

var videoCols = []string{"id", "user_id", "slug", "file_id", "title", "subtitle", "created_at"}

// slugs returns a generator yielding the given values in order.
func slugs(values ...string) slug.Generator {
	i := 0
	return func() (string, error) {
		v := values[i%len(values)]
		i++
		return v, nil
	}
}

func existsRow(b bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"exists"}).AddRow(b)
}

func TestVideoStoreCreateDuplicateFileID(t *testing.T) {
	db, mock := mockDB(t)
	s := NewVideoStore(db)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM videos WHERE file_id`).
		WithArgs("dup_file", int64(0)).WillReturnRows(existsRow(true))

	_, err := s.Create(context.Background(), NewVideo{UserID: 1, Title: "t", FileID: "dup_file"})
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "file_id", ce.Field)
}

func TestVideoStoreCreateRetriesLostSlug(t *testing.T) {
	db, mock := mockDB(t)
	s := NewVideoStore(db)
	s.newSlug = slugs("aaaaaa", "bbbbbb", "cccccc")
	now := time.Now()

	mock.ExpectQuery(`WHERE file_id`).WillReturnRows(existsRow(false))
	// First candidate already in use.
	mock.ExpectQuery(`WHERE slug`).WithArgs("aaaaaa").WillReturnRows(existsRow(true))
	mock.ExpectQuery(`WHERE slug`).WithArgs("bbbbbb").WillReturnRows(existsRow(false))
	// Lost to a concurrent insert between check and insert.
	mock.ExpectQuery(`INSERT INTO videos`).
		WithArgs(int64(3), "bbbbbb", "file", "Title", nil).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "videos_slug_key"})
	mock.ExpectQuery(`WHERE slug`).WithArgs("cccccc").WillReturnRows(existsRow(false))
	mock.ExpectQuery(`INSERT INTO videos`).
		WithArgs(int64(3), "cccccc", "file", "Title", nil).
		WillReturnRows(sqlmock.NewRows(videoCols).AddRow(10, 3, "cccccc", "file", "Title", nil, now))

	v, err := s.Create(context.Background(), NewVideo{UserID: 3, Title: " Title ", FileID: "file"})
	require.NoError(t, err)
	assert.Equal(t, "cccccc", v.Slug)
	assert.Nil(t, v.Subtitle)
}

func TestVideoStoreFindBySlugNotFound(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectQuery(`FROM videos WHERE slug`).WithArgs("nope12").WillReturnRows(sqlmock.NewRows(videoCols))

	_, err := NewVideoStore(db).FindBySlug(context.Background(), "nope12")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVideoStoreDeleteNotOwned(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectQuery(`DELETE FROM videos`).WithArgs(int64(5), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"slug"}))

	_, err := NewVideoStore(db).Delete(context.Background(), 5, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVideoStoreStatsWindows(t *testing.T) {
	db, mock := mockDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`COUNT\(\*\) FILTER`).
		WithArgs(int64(0), now.Add(-24*time.Hour), now.Add(-7*24*time.Hour)).
		WillReturnRows(sqlmock.NewRows([]string{"total", "day", "week"}).AddRow(9, 1, 4))

	st, err := NewVideoStore(db).Stats(context.Background(), 0, now)
	require.NoError(t, err)
	assert.Equal(t, 9, st.Total)
	assert.Equal(t, 1, st.LastDay)
	assert.Equal(t, 4, st.LastWeek)
}

// --- integration ---

func TestVideoStoreLifecycle(t *testing.T) {
	db := testDB(t)
	users := fastUserStore(db)
	s := NewVideoStore(db)
	ctx := context.Background()

	owner, other := "store_test_owner", "store_test_other"
	t.Cleanup(func() { cleanUsers(t, db, owner, other) })

	u1, err := users.Create(ctx, NewUser{Username: owner, Email: owner + "@store-test.local", Password: "secret12"})
	require.NoError(t, err)
	u2, err := users.Create(ctx, NewUser{Username: other, Email: other + "@store-test.local", Password: "secret12"})
	require.NoError(t, err)

	v, err := s.Create(ctx, NewVideo{UserID: u1.ID, Title: "Holiday", FileID: "store_test_file_aaaaaaaaaaaaaaaa", Subtitle: "https://subs/x.vtt"})
	require.NoError(t, err)
	assert.Len(t, v.Slug, slug.Length)
	require.NotNil(t, v.Subtitle)

	_, err = s.Create(ctx, NewVideo{UserID: u2.ID, Title: "Copy", FileID: "store_test_file_aaaaaaaaaaaaaaaa"})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.FindBySlug(ctx, v.Slug)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)

	_, err = s.FindOwned(ctx, v.ID, u2.ID)
	assert.ErrorIs(t, err, ErrNotFound, "other users must not see the video")

	list, total, err := s.List(ctx, VideoFilter{OwnerID: u1.ID, Search: "holi", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)

	updated, err := s.Update(ctx, v.ID, u1.ID, VideoUpdate{Title: "Holiday 2", FileID: v.FileID})
	require.NoError(t, err)
	assert.Equal(t, "Holiday 2", updated.Title)
	assert.Nil(t, updated.Subtitle)

	_, err = s.Update(ctx, v.ID, u2.ID, VideoUpdate{Title: "x", FileID: "store_test_file_bbbbbbbbbbbbbbbb"})
	assert.ErrorIs(t, err, ErrNotFound)

	sl, err := s.Delete(ctx, v.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, v.Slug, sl)
}
