package servicedesk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/florianilch/deskclient/internal/authclient"
	"github.com/florianilch/deskclient/internal/servicedesk"
	"github.com/florianilch/deskclient/internal/tokenstore"
)

func newClient(t *testing.T, handler http.HandlerFunc) *servicedesk.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := tokenstore.NewMemoryStore(tokenstore.Tokens{AccessToken: "valid", RefreshToken: "r1"})
	api, err := authclient.New(srv.URL+"/api/v1", store)
	require.NoError(t, err)
	return servicedesk.New(api)
}

func TestParseResource(t *testing.T) {
	r, err := servicedesk.ParseResource(" Tickets ")
	require.NoError(t, err)
	require.Equal(t, servicedesk.Tickets, r)

	_, err = servicedesk.ParseResource("invoices")
	require.ErrorIs(t, err, servicedesk.ErrUnknownResource)
}

func TestList(t *testing.T) {
	var gotQuery url.Values
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/problems", r.URL.Path)
		require.Equal(t, "Bearer valid", r.Header.Get("Authorization"))
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":7,"title":"Mail queue stuck"}]`))
	})

	out, err := client.List(context.Background(), servicedesk.Problems, url.Values{"status": {"open"}})
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":7,"title":"Mail queue stuck"}]`, string(out))
	require.Equal(t, "open", gotQuery.Get("status"))
}

func TestGet(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/assets/LAP-0042" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"id":"LAP-0042","type":"laptop"}`))
	})

	out, err := client.Get(context.Background(), servicedesk.Assets, "LAP-0042")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"LAP-0042","type":"laptop"}`, string(out))

	_, err = client.Get(context.Background(), servicedesk.Assets, "missing")
	var statusErr *authclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	_, err = client.Get(context.Background(), servicedesk.Assets, "")
	require.Error(t, err)
}

func TestUnknownResource(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	})

	_, err := client.List(context.Background(), servicedesk.Resource("invoices"), nil)
	require.ErrorIs(t, err, servicedesk.ErrUnknownResource)
}
