package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otiai10/gatekeeper/internal/config"
	"github.com/otiai10/gatekeeper/internal/principal"
)

func newTestCookies() *Cookies {
	return NewCookies(config.SessionConfig{
		CookieName:       "auth_session",
		MirrorCookieName: "auth_state",
		Duration:         24 * time.Hour,
	}, "example.com")
}

func TestCookies_SetAndRead(t *testing.T) {
	c := newTestCookies()
	artifact := "usr-1:user:1748779200000:00ff:abcd"

	rec := httptest.NewRecorder()
	c.Set(rec, artifact, principal.RoleUser)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)

	primary, mirror := cookies[0], cookies[1]
	assert.Equal(t, "auth_session", primary.Name)
	assert.Equal(t, "usr-1%3Auser%3A1748779200000%3A00ff%3Aabcd", primary.Value)
	assert.True(t, primary.HttpOnly)
	assert.Equal(t, 86400, primary.MaxAge)

	assert.Equal(t, "auth_state", mirror.Name)
	assert.Equal(t, "user", mirror.Value)
	assert.False(t, mirror.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	got, err := c.Read(req)
	require.NoError(t, err)
	assert.Equal(t, artifact, got)
}

func TestCookies_ReadMissing(t *testing.T) {
	c := newTestCookies()

	_, err := c.Read(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrMissing)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth_session", Value: "%zz"})
	_, err = c.Read(req)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCookies_ClearMatchesMintAttributes(t *testing.T) {
	c := newTestCookies()

	minted := httptest.NewRecorder()
	c.Set(minted, "a:b:c:d:e", principal.RoleAdmin)
	cleared := httptest.NewRecorder()
	c.Clear(cleared)

	set := minted.Result().Cookies()
	clr := cleared.Result().Cookies()
	require.Len(t, set, 2)
	require.Len(t, clr, 2)

	for i := range set {
		assert.Equal(t, set[i].Name, clr[i].Name)
		assert.Equal(t, set[i].Domain, clr[i].Domain)
		assert.Equal(t, set[i].Path, clr[i].Path)
		assert.Equal(t, set[i].Secure, clr[i].Secure)
		assert.Equal(t, set[i].HttpOnly, clr[i].HttpOnly)
		assert.Equal(t, set[i].SameSite, clr[i].SameSite)
		assert.Equal(t, "example.com", clr[i].Domain)
		assert.Equal(t, "/", clr[i].Path)
		assert.Equal(t, -1, clr[i].MaxAge)
		assert.Empty(t, clr[i].Value)
	}
}
