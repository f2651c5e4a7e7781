package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/model"
)

func TestClient_LoginInstallsToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/token":
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "tok-123",
				"expires_at":   time.Now().Add(time.Hour),
			})
		case "/scanner/validate":
			gotAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(map[string]any{"status": model.ValidationOK})
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	tok, err := c.Login(context.Background(), "gate-1", "key")
	require.NoError(t, err)
	require.Equal(t, "tok-123", tok.AccessToken)

	st, err := c.Validate(context.Background(), uuid.Must(uuid.NewV4()), "TIX-001")
	require.NoError(t, err)
	require.Equal(t, model.ValidationOK, st)
	require.Equal(t, "Bearer tok-123", gotAuth)
}

func TestClient_StatusMapping(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{http.StatusUnauthorized, errs.ErrUnauthorized},
		{http.StatusForbidden, errs.ErrPermissionDenied},
		{http.StatusTooManyRequests, errs.ErrRateLimited},
		{http.StatusNotFound, errs.ErrNotFound},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
		}))
		c := New(srv.URL, time.Second)
		_, err := c.Validate(context.Background(), uuid.Must(uuid.NewV4()), "x")
		require.ErrorIs(t, err, tc.want)
		require.False(t, IsOffline(err))
		srv.Close()
	}
}

func TestClient_UnreachableIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	c := New(srv.URL, time.Second)
	_, err := c.Validate(context.Background(), uuid.Must(uuid.NewV4()), "x")
	require.Error(t, err)
	require.True(t, IsOffline(err))
}

func TestClient_CheckInRoundtrip(t *testing.T) {
	ticketID := uuid.Must(uuid.NewV4())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req CheckInRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, ticketID, req.TicketID)
		json.NewEncoder(w).Encode(CheckInResult{
			Success: true, Outcome: model.OutcomeAccepted,
			Canonical: &CanonicalRecord{TicketID: ticketID, DeviceID: "gate-1"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	res, err := c.CheckIn(context.Background(), CheckInRequest{TicketID: ticketID})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, model.OutcomeAccepted, res.Outcome)
	require.Equal(t, "gate-1", res.Canonical.DeviceID)
}
