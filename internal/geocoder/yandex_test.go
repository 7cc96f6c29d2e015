package geocoder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov-go/pizzeria-bot/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(config.GeocoderConfig{BaseURL: srv.URL, APIKey: "test-key"})
}

func TestResolve_ParsesLonLatOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "Москва, Красная площадь", r.URL.Query().Get("geocode"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"GeoObjectCollection":{"featureMember":[
			{"GeoObject":{"Point":{"pos":"37.617635 55.755814"}}}
		]}}}`))
	})

	coord, err := client.Resolve(context.Background(), "Москва, Красная площадь")
	require.NoError(t, err)
	assert.InDelta(t, 55.755814, coord.Lat, 1e-9)
	assert.InDelta(t, 37.617635, coord.Lon, 1e-9)
}

func TestResolve_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response":{"GeoObjectCollection":{"featureMember":[]}}}`))
	})

	_, err := client.Resolve(context.Background(), "там, не знаю где")
	require.ErrorIs(t, err, ErrAddressNotFound)
}

func TestResolve_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.Resolve(context.Background(), "Москва")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAddressNotFound)
}
