package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/config"
)

func newAdminServer(t *testing.T, fl *stubFleet) *Server {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	srv := newTestServer(t, fl)
	srv.Cfg = config.Config{AdminUsername: "admin", AdminPasswordHash: string(hash)}
	return srv
}

func TestAdminAuth_RejectsBadCredentials(t *testing.T) {
	srv := newAdminServer(t, &stubFleet{})
	h := srv.AdminAuth(srv.ReconnectAllHandler())

	cases := []struct{ user, pass string }{
		{"admin", "wrong"},
		{"stranger", "hunter2"},
		{"", ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/admin/bots/reconnect_all", nil)
		if tc.user != "" {
			req.SetBasicAuth(tc.user, tc.pass)
		}
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s:%s", tc.user, tc.pass)
		assert.Equal(t, `Basic realm="admin"`, rec.Header().Get("WWW-Authenticate"))
	}
}

func TestAdminAuth_PassesValidCredentials(t *testing.T) {
	fl := &stubFleet{}
	srv := newAdminServer(t, fl)
	h := srv.AdminAuth(srv.ReconnectAllHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/bots/reconnect_all", nil)
	req.SetBasicAuth("admin", "hunter2")
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, fl.reconnected)
}

func TestReconnectBotHandler(t *testing.T) {
	fl := &stubFleet{}
	srv := newAdminServer(t, fl)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/bots/reconnect", strings.NewReader(`{"username":"alpha"}`))
	srv.ReconnectBotHandler()(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"alpha"}, fl.reconnects)
}

func TestReconnectBotHandler_RequiresUsername(t *testing.T) {
	srv := newAdminServer(t, &stubFleet{})

	for _, body := range []string{`{}`, `{"username":""}`, `not json`} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/admin/bots/reconnect", strings.NewReader(body))
		srv.ReconnectBotHandler()(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}
