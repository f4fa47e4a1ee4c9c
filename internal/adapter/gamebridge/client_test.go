package gamebridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

func newClient(t *testing.T, handler http.Handler) domain.GameClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	factory := NewFactory(Options{BaseURL: srv.URL, SessionPath: t.TempDir(), Timeout: time.Second})
	return factory(domain.Credential{Username: "alpha", Password: "pw"})
}

func TestClient_LoginSendsSessionFile(t *testing.T) {
	var got loginRequest
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/session/login", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, "alpha", got.Username)
	assert.Contains(t, got.SessionFile, "alpha.session")
}

func TestClient_LoginMapsErrorCodes(t *testing.T) {
	cases := []struct {
		code      string
		kind      domain.TransportErrorKind
		permanent bool
	}{
		{"INVALID_PASSWORD", domain.TransportInvalidPassword, true},
		{"ACCOUNT_DISABLED", domain.TransportAccountDisabled, true},
		{"RATE_LIMIT_EXCEEDED_PERMANENT", domain.TransportRateLimitPermanent, true},
		{"LOGIN_THROTTLED", domain.TransportLoginThrottled, false},
		{"DISCONNECTED", domain.TransportDisconnected, false},
		{"SOMETHING_NEW", domain.TransportTransient, false},
	}
	for _, tc := range cases {
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(bridgeError{Code: tc.code, Message: "nope"})
		}))

		err := c.Login(context.Background())
		require.Error(t, err, tc.code)
		var te *domain.TransportError
		require.ErrorAs(t, err, &te, tc.code)
		assert.Equal(t, tc.kind, te.Kind, tc.code)
		assert.Equal(t, tc.permanent, te.Permanent(), tc.code)
	}
}

func TestClient_InspectDecodesItem(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/inspect", r.URL.Path)
		var req inspectRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "38350177313", req.AssetID)
		_, _ = w.Write([]byte(`{"itemid":"38350177313","defindex":7,"paintseed":661,"paintindex":44,"floatvalue":0.0712}`))
	}))

	info, err := c.Inspect(context.Background(), 76561198084749846, 38350177313, 4631504735516729775)
	require.NoError(t, err)
	assert.Equal(t, uint64(38350177313), info.AssetID)
	require.NotNil(t, info.PaintWear)
	assert.InDelta(t, 0.0712, *info.PaintWear, 1e-9)
}

func TestClient_InspectTimeoutIsTimeoutKind(t *testing.T) {
	release := make(chan struct{})
	c := newClient(t, http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	// Registered after newClient so it runs before the server shutdown
	// and unblocks the parked handler.
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Inspect(ctx, 1, 2, 3)
	require.Error(t, err)
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, domain.TransportTimeout, te.Kind)
}

func TestClient_ConnectionRefusedIsDisconnected(t *testing.T) {
	factory := NewFactory(Options{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	c := factory(domain.Credential{Username: "alpha"})

	err := c.Login(context.Background())
	require.Error(t, err)
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, domain.TransportDisconnected, te.Kind)
}
