package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyplayer/internal/models"
	"proxyplayer/internal/store"
)

// jar records cookies written by the session layer and replays the live
// ones on the next request, like a browser would.
type jar struct {
	cookies map[string]*http.Cookie
	written []*http.Cookie
}

func newJar() *jar { return &jar{cookies: map[string]*http.Cookie{}} }

func (j *jar) SetCookie(c *http.Cookie) {
	j.written = append(j.written, c)
	if c.MaxAge < 0 {
		delete(j.cookies, c.Name)
		return
	}
	j.cookies[c.Name] = c
}

func (j *jar) request() *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	for _, c := range j.cookies {
		r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return r
}

func (j *jar) has(name string) bool {
	_, ok := j.cookies[name]
	return ok
}

func (j *jar) cleared(name string) bool {
	for _, c := range j.written {
		if c.Name == name && c.MaxAge < 0 {
			return true
		}
	}
	return false
}

type fakeTokens struct {
	rows    map[int64]string
	expires map[int64]time.Time
	findErr error
	deleted []string
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{rows: map[int64]string{}, expires: map[int64]time.Time{}}
}

func (f *fakeTokens) Replace(_ context.Context, userID int64, token string, exp time.Time) (*models.RememberToken, error) {
	f.rows[userID] = token
	f.expires[userID] = exp
	return &models.RememberToken{UserID: userID, Token: token, ExpiresAt: exp}, nil
}

func (f *fakeTokens) FindValid(_ context.Context, userID int64, token string, now time.Time) (*models.RememberToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.rows[userID] != token || !f.expires[userID].After(now) {
		return nil, store.ErrNotFound
	}
	return &models.RememberToken{UserID: userID, Token: token, ExpiresAt: f.expires[userID]}, nil
}

func (f *fakeTokens) Delete(_ context.Context, userID int64, token string) error {
	if f.rows[userID] == token {
		delete(f.rows, userID)
	}
	f.deleted = append(f.deleted, token)
	return nil
}

type fakeUsers map[int64]*models.User

func (f fakeUsers) FindByID(_ context.Context, id int64) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

type fixture struct {
	mr     *miniredis.Miniredis
	m      *Manager
	tokens *fakeTokens
	users  fakeUsers
	clock  time.Time
	alice  *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &fixture{
		mr:     mr,
		tokens: newFakeTokens(),
		alice:  &models.User{ID: 7, Username: "alice", Role: models.RoleUser},
		clock:  time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
	}
	f.users = fakeUsers{7: f.alice}
	f.m = NewManager(NewStore(client, false), f.tokens, f.users, Config{})
	f.m.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func TestLoginWithoutRemember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := newJar()

	data, err := f.m.Login(ctx, j, j.request(), f.alice, false)
	require.NoError(t, err)
	assert.False(t, data.RememberMe)
	assert.True(t, j.has(CookieName))
	assert.False(t, j.has(RememberTokenCookie))
	assert.True(t, f.mr.Exists(keyPrefix+data.ID))

	got, state := f.m.Resume(ctx, j, j.request())
	assert.Equal(t, Authenticated, state)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Username)
}

func TestIdleSessionExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := newJar()

	data, err := f.m.Login(ctx, j, j.request(), f.alice, false)
	require.NoError(t, err)

	f.advance(12*time.Hour + time.Second)
	got, state := f.m.Resume(ctx, j, j.request())
	assert.Equal(t, Expired, state)
	assert.Nil(t, got)
	assert.ErrorIs(t, state.Err(), ErrExpired)
	assert.False(t, f.mr.Exists(keyPrefix+data.ID))
	assert.False(t, j.has(CookieName))

	_, state = f.m.Resume(ctx, j, j.request())
	assert.Equal(t, Anonymous, state, "expiry is reported once")
}

func TestActivityKeepsSessionAlive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := newJar()

	_, err := f.m.Login(ctx, j, j.request(), f.alice, false)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		f.advance(11 * time.Hour)
		_, state := f.m.Resume(ctx, j, j.request())
		require.Equal(t, Authenticated, state, "request %d", i)
	}
}

func TestRememberedSessionIgnoresIdleTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := newJar()

	_, err := f.m.Login(ctx, j, j.request(), f.alice, true)
	require.NoError(t, err)
	assert.True(t, j.has(RememberTokenCookie))
	assert.Equal(t, "7", j.cookies[RememberUserCookie].Value)
	assert.Equal(t, f.tokens.rows[7], j.cookies[RememberTokenCookie].Value)
	assert.Len(t, j.cookies[RememberTokenCookie].Value, 64)

	f.advance(13 * time.Hour)
	got, state := f.m.Resume(ctx, j, j.request())
	assert.Equal(t, AuthenticatedRemembered, state)
	require.NotNil(t, got)
}

func TestRotationIssuesNewID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := newJar()

	data, err := f.m.Login(ctx, j, j.request(), f.alice, false)
	require.NoError(t, err)
	oldID := data.ID

	f.advance(10 * time.Minute)
	got, _ := f.m.Resume(ctx, j, j.request())
	assert.Equal(t, oldID, got.ID, "no rotation before the interval")

	f.advance(25 * time.Minute)
	got, state := f.m.Resume(ctx, j, j.request())
	require.Equal(t, Authenticated, state)
	assert.NotEqual(t, oldID, got.ID)
	assert.Equal(t, got.ID, j.cookies[CookieName].Value)
	assert.False(t, f.mr.Exists(keyPrefix+oldID))
	assert.Equal(t, f.clock, got.LastRegeneration)
	assert.Equal(t, data.CreatedAt, got.CreatedAt)
}

func TestRememberReplayStartsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := newJar()

	_, err := f.m.Login(ctx, j, j.request(), f.alice, true)
	require.NoError(t, err)

	// Browser restarted: session cookie gone, remember pair kept.
	delete(j.cookies, CookieName)
	f.advance(5 * 24 * time.Hour)

	got, state := f.m.Resume(ctx, j, j.request())
	assert.Equal(t, AuthenticatedRemembered, state)
	require.NotNil(t, got)
	assert.True(t, got.RememberMe)
	assert.True(t, j.has(CookieName))
}

func TestRememberReplayFailures(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		user   string
		setup  func(f *fixture)
		lookup bool
	}{
		{name: "unknown token", token: "nope", user: "7"},
		{name: "malformed user id", token: "tok", user: "abc"},
		{name: "token only", token: "tok"},
		{name: "expired token", token: "tok", user: "7", setup: func(f *fixture) {
			f.tokens.Replace(context.Background(), 7, "tok", f.clock.Add(-time.Minute))
		}},
		{name: "lookup error", token: "tok", user: "7", setup: func(f *fixture) {
			f.tokens.findErr = errors.New("db down")
		}},
		{name: "deleted user", token: "tok", user: "99", setup: func(f *fixture) {
			f.tokens.Replace(context.Background(), 99, "tok", f.clock.Add(time.Hour))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			j := newJar()
			r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
			r.AddCookie(&http.Cookie{Name: RememberTokenCookie, Value: tt.token})
			if tt.user != "" {
				r.AddCookie(&http.Cookie{Name: RememberUserCookie, Value: tt.user})
			}

			got, state := f.m.Resume(context.Background(), j, r)
			assert.Equal(t, Anonymous, state)
			assert.Nil(t, got)
			assert.True(t, j.cleared(RememberTokenCookie))
			assert.True(t, j.cleared(RememberUserCookie))
			assert.False(t, j.has(CookieName))
		})
	}
}

func TestNoCookiesIsAnonymous(t *testing.T) {
	f := newFixture(t)
	j := newJar()

	got, state := f.m.Resume(context.Background(), j, j.request())
	assert.Equal(t, Anonymous, state)
	assert.Nil(t, got)
	assert.ErrorIs(t, state.Err(), ErrNoSession)
	assert.Empty(t, j.written)
}

func TestSecondRememberLoginReplacesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := newJar()

	_, err := f.m.Login(ctx, j, j.request(), f.alice, true)
	require.NoError(t, err)
	first := j.cookies[RememberTokenCookie].Value

	_, err = f.m.Login(ctx, j, j.request(), f.alice, true)
	require.NoError(t, err)
	second := j.cookies[RememberTokenCookie].Value

	assert.NotEqual(t, first, second)
	assert.Len(t, f.tokens.rows, 1)
	assert.Equal(t, second, f.tokens.rows[7])
	assert.Equal(t, 1, len(f.mr.Keys()), "the earlier session is discarded")
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := newJar()

	data, err := f.m.Login(ctx, j, j.request(), f.alice, true)
	require.NoError(t, err)
	token := j.cookies[RememberTokenCookie].Value

	f.m.Logout(ctx, j, j.request(), data)

	assert.False(t, f.mr.Exists(keyPrefix+data.ID))
	assert.Equal(t, []string{token}, f.tokens.deleted)
	assert.Empty(t, f.tokens.rows)
	assert.True(t, j.cleared(CookieName))
	assert.True(t, j.cleared(RememberTokenCookie))
	assert.True(t, j.cleared(RememberUserCookie))

	_, state := f.m.Resume(ctx, j, j.request())
	assert.Equal(t, Anonymous, state)
}

func TestLogoutAfterRotationOnSameRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := newJar()

	_, err := f.m.Login(ctx, j, j.request(), f.alice, false)
	require.NoError(t, err)

	// The logout request itself triggers the rotation.
	f.advance(31 * time.Minute)
	r := j.request()
	data, state := f.m.Resume(ctx, j, r)
	require.Equal(t, Authenticated, state)

	f.m.Logout(ctx, j, r, data)

	assert.Empty(t, f.mr.Keys(), "no session key may outlive logout")
	_, state = f.m.Resume(ctx, j, j.request())
	assert.Equal(t, Anonymous, state)
}

func TestLogoutAfterRememberReplayOnSameRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := newJar()

	_, err := f.m.Login(ctx, j, j.request(), f.alice, true)
	require.NoError(t, err)

	// Browser restarted, then the first request is the logout.
	delete(j.cookies, CookieName)
	f.mr.FlushAll()
	r := j.request()
	data, state := f.m.Resume(ctx, j, r)
	require.Equal(t, AuthenticatedRemembered, state)
	require.Len(t, f.mr.Keys(), 1)

	f.m.Logout(ctx, j, r, data)

	assert.Empty(t, f.mr.Keys(), "the replayed session must be destroyed")
	assert.Empty(t, f.tokens.rows)
	assert.True(t, j.cleared(RememberTokenCookie))
	assert.True(t, j.cleared(RememberUserCookie))
}

func TestDeletedUserEndsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := newJar()

	_, err := f.m.Login(ctx, j, j.request(), f.alice, false)
	require.NoError(t, err)
	delete(f.users, f.alice.ID)

	_, state := f.m.Resume(ctx, j, j.request())
	assert.Equal(t, Anonymous, state)
}

func TestRoleRefreshedFromStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := newJar()

	_, err := f.m.Login(ctx, j, j.request(), f.alice, false)
	require.NoError(t, err)
	f.users[7] = &models.User{ID: 7, Username: "alice", Role: models.RoleAdmin}

	got, _ := f.m.Resume(ctx, j, j.request())
	assert.True(t, got.IsAdmin())
}

func TestFlashIsOneShot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := newJar()

	data, err := f.m.Login(ctx, j, j.request(), f.alice, false)
	require.NoError(t, err)
	f.m.SetFlash(ctx, data, "success", "Video added")

	got, _ := f.m.Resume(ctx, j, j.request())
	flash := f.m.PopFlash(ctx, got)
	require.NotNil(t, flash)
	assert.Equal(t, "Video added", flash.Message)

	got, _ = f.m.Resume(ctx, j, j.request())
	assert.Nil(t, f.m.PopFlash(ctx, got))
}

func TestSessionCookieAttributes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	for _, secure := range []bool{true, false} {
		t.Run(strconv.FormatBool(secure), func(t *testing.T) {
			s := NewStore(client, secure)
			w := httptest.NewRecorder()
			err := s.Create(context.Background(), ResponseCookies(w), httptest.NewRequest(http.MethodGet, "/", nil), &Data{UserID: 1}, time.Minute)
			require.NoError(t, err)

			cookies := w.Result().Cookies()
			require.Len(t, cookies, 1)
			c := cookies[0]
			assert.Equal(t, CookieName, c.Name)
			assert.True(t, c.HttpOnly)
			assert.Equal(t, secure, c.Secure)
			assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
			assert.Len(t, c.Value, 64)
		})
	}
}

func TestStoreLoadMissing(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewStore(client, false)

	_, err := s.Load(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = s.Load(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrNoSession)

	mr.Set(keyPrefix+"bad", "{not json")
	_, err = s.Load(context.Background(), "bad")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoSession))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "anonymous", Anonymous.String())
	assert.Equal(t, "authenticated_remembered", AuthenticatedRemembered.String())
	assert.True(t, Authenticated.LoggedIn())
	assert.False(t, Expired.LoggedIn())
}

func TestContextRoundTrip(t *testing.T) {
	data, state := FromContext(context.Background())
	assert.Nil(t, data)
	assert.Equal(t, Anonymous, state)

	want := &Data{ID: "abc", UserID: 7}
	data, state = FromContext(NewContext(context.Background(), want, AuthenticatedRemembered))
	assert.Same(t, want, data)
	assert.Equal(t, AuthenticatedRemembered, state)
}
