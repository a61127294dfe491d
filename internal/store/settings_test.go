package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyplayer/internal/models"
)

var siteCols = []string{"id", "user_id", "site_title", "favicon_url", "created_at"}

func TestSettingsSaveInsertsWhenAbsent(t *testing.T) {
	db, mock := mockDB(t)
	s := NewSettingsStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE video_settings`).
		WithArgs(int64(2), "https://monetag.com/z", "a.com\nb.com").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO video_settings`).
		WithArgs(int64(2), "https://monetag.com/z", "a.com\nb.com").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE site_settings`).
		WithArgs(int64(2), "My Site", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Save(context.Background(), 2,
		VideoSettingsInput{AdURL: "https://monetag.com/z", Domains: " a.com \n\nb.com"},
		&SiteSettingsInput{SiteTitle: "My Site"},
	)
	require.NoError(t, err)
}

func TestSettingsSaveRollsBackBoth(t *testing.T) {
	db, mock := mockDB(t)
	s := NewSettingsStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE video_settings`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE site_settings`).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := s.Save(context.Background(), 2, VideoSettingsInput{}, &SiteSettingsInput{SiteTitle: "x"})
	assert.Error(t, err)
}

func TestSettingsSaveBlankTitleUsesDefault(t *testing.T) {
	db, mock := mockDB(t)
	s := NewSettingsStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE video_settings`).WithArgs(int64(1), nil, nil).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE site_settings`).
		WithArgs(int64(1), models.DefaultSiteTitle, "/f.ico").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Save(context.Background(), 1, VideoSettingsInput{}, &SiteSettingsInput{FaviconURL: "/f.ico"}))
}

func TestSettingsEffective(t *testing.T) {
	now := time.Now()

	t.Run("admin row for regular viewer", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectQuery(`WHERE u.role = 'admin'`).
			WillReturnRows(sqlmock.NewRows(siteCols).AddRow(3, 1, "Admin Site", nil, now))

		got := NewSettingsStore(db).Effective(context.Background(), 9, false)
		assert.Equal(t, "Admin Site", got.Title())
		assert.Equal(t, models.DefaultFaviconURL, got.Favicon())
	})

	t.Run("admin viewer own row wins", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectQuery(`WHERE u.role = 'admin'`).
			WillReturnRows(sqlmock.NewRows(siteCols).AddRow(3, 1, "Admin Site", nil, now))
		mock.ExpectQuery(`WHERE ss.user_id = \$1`).WithArgs(int64(4)).
			WillReturnRows(sqlmock.NewRows(siteCols).AddRow(2, 4, "Mine", "/mine.ico", now))

		got := NewSettingsStore(db).Effective(context.Background(), 4, true)
		assert.Equal(t, "Mine", got.Title())
		assert.Equal(t, "/mine.ico", got.Favicon())
	})

	t.Run("lookup failure degrades to defaults", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectQuery(`WHERE u.role = 'admin'`).WillReturnError(errors.New("down"))

		got := NewSettingsStore(db).Effective(context.Background(), 0, false)
		assert.Equal(t, models.DefaultSiteTitle, got.Title())
		assert.Equal(t, models.DefaultFaviconURL, got.Favicon())
	})
}

func TestLatestVideoSettingsAbsent(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectQuery(`FROM video_settings`).WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "ad_url", "domains", "created_at", "updated_at"}))

	vs, err := NewSettingsStore(db).LatestVideoSettings(context.Background(), 8)
	require.NoError(t, err)
	assert.Nil(t, vs)
}

// --- integration ---

func TestSettingsStoreRoundTrip(t *testing.T) {
	db := testDB(t)
	users := fastUserStore(db)
	s := NewSettingsStore(db)
	ctx := context.Background()

	name := "store_test_settings"
	t.Cleanup(func() { cleanUsers(t, db, name) })

	u, err := users.Create(ctx, NewUser{Username: name, Email: name + "@store-test.local", Password: "secret12", Role: models.RoleAdmin})
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, u.ID, VideoSettingsInput{AdURL: "https://hilltopads.net/q", Domains: "a.com"}, nil))
	require.NoError(t, s.Save(ctx, u.ID, VideoSettingsInput{Domains: "b.com"}, &SiteSettingsInput{SiteTitle: "Store Test"}))

	vs, err := s.LatestVideoSettings(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, vs)
	assert.Nil(t, vs.AdURL)
	require.NotNil(t, vs.Domains)
	assert.Equal(t, "b.com", *vs.Domains)

	got := s.Effective(ctx, u.ID, true)
	assert.Equal(t, "Store Test", got.Title())
}
