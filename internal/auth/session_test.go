package auth

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newSessionRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("noirblog_session", cookie.NewStore([]byte("test-secret"))))

	policy := NewPolicy()
	r.GET("/view", func(c *gin.Context) {
		session := sessions.Default(c)
		state := LoadState(session)
		decision := policy.AuthorizeView(state.Actor(), &state, "/view")
		if err := SaveState(session, state); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, "%s %d", decision.Outcome, state.AnonReads)
	})
	r.GET("/login", func(c *gin.Context) {
		if err := SignIn(sessions.Default(c), 9, "reader"); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})
	r.GET("/logout", func(c *gin.Context) {
		if err := SignOut(sessions.Default(c)); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})
	r.GET("/whoami", func(c *gin.Context) {
		state := LoadState(sessions.Default(c))
		c.String(http.StatusOK, "%d %s %d", state.UserID, state.Username, state.AnonReads)
	})
	return r
}

type cookieClient struct {
	handler http.Handler
	cookies []*http.Cookie
}

func (c *cookieClient) get(t *testing.T, path string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	if set := w.Result().Cookies(); len(set) > 0 {
		c.cookies = set
	}
	return w.Body.String()
}

func TestSessionCounterPersistsAcrossRequests(t *testing.T) {
	client := &cookieClient{handler: newSessionRouter()}

	for i := 1; i <= DefaultReadLimit; i++ {
		require.Equal(t, "granted "+strconv.Itoa(i), client.get(t, "/view"))
	}
	require.Equal(t, "quota-exceeded 5", client.get(t, "/view"))
	require.Equal(t, "quota-exceeded 5", client.get(t, "/view"))

	fresh := &cookieClient{handler: client.handler}
	require.Equal(t, "granted 1", fresh.get(t, "/view"))
}

func TestSignInAndOutKeepCounter(t *testing.T) {
	client := &cookieClient{handler: newSessionRouter()}

	client.get(t, "/view")
	client.get(t, "/view")
	client.get(t, "/login")
	require.Equal(t, "9 reader 2", client.get(t, "/whoami"))

	require.Equal(t, "granted 2", client.get(t, "/view"), "signed-in views do not consume quota")

	client.get(t, "/logout")
	require.Equal(t, "0  2", client.get(t, "/whoami"))
}
