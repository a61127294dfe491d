package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyplayer/internal/cache"
	"proxyplayer/internal/render"
	"proxyplayer/internal/resolver"
	"proxyplayer/internal/route"
	"proxyplayer/internal/session"
	"proxyplayer/internal/store"
)

var userCols = []string{"id", "username", "email", "password_hash", "role", "created_at"}

// formEnv wires the dashboard handler groups against sqlmock and miniredis.
type formEnv struct {
	mock     sqlmock.Sqlmock
	mr       *miniredis.Miniredis
	cache    *cache.PlayerCache
	users    *Users
	settings *Settings
	videos   *Videos
}

func newFormEnv(t *testing.T) *formEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	rn, err := render.New()
	require.NoError(t, err)

	users := store.NewUserStore(db)
	settings := store.NewSettingsStore(db)
	mgr := session.NewManager(session.NewStore(client, false), store.NewRememberTokenStore(db), users, session.Config{})
	pc := cache.NewPlayerCache(client, time.Minute)
	networks := resolver.DefaultAdNetworks

	return &formEnv{
		mock:     mock,
		mr:       mr,
		cache:    pc,
		users:    NewUsers(rn, mgr, users, settings, pc, "", networks),
		settings: NewSettings(rn, mgr, settings, pc, "", networks),
		videos:   NewVideos(rn, mgr, store.NewVideoStore(db), users, settings, pc, ""),
	}
}

// cached puts a rendered player page in the cache and reports a checker
// for whether it is still there.
func (e *formEnv) cached(t *testing.T, slug string) func() bool {
	t.Helper()
	e.cache.Set(context.Background(), slug, []byte("<html>"))
	return func() bool {
		_, ok := e.cache.Get(context.Background(), slug)
		return ok
	}
}

func adminSession() *session.Data {
	return &session.Data{ID: "sess-admin", UserID: 2, Username: "root", Role: "admin"}
}

func userSession() *session.Data {
	return &session.Data{ID: "sess-user", UserID: 5, Username: "bob", Role: "user"}
}

// postForm builds a logged-in form submission.
func postForm(target string, form url.Values, sess *session.Data) *route.Request {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return &route.Request{Request: r, Session: sess, State: session.Authenticated}
}

// uniqueViolation is what pgx reports for a duplicate key.
func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

// assertFlashRedirect checks a redirect to location that left msg as the
// session's flash.
func assertFlashRedirect(t *testing.T, resp *route.Response, sess *session.Data, location, kind, msg string) {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, resp.Status)
	assert.Equal(t, location, resp.Header.Get("Location"))
	require.NotNil(t, sess.Flash)
	assert.Equal(t, kind, sess.Flash.Kind)
	assert.Equal(t, msg, sess.Flash.Message)
}
