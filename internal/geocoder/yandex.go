// Package geocoder resolves free-text addresses to coordinates via the Yandex geocode API.
package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/avolkov-go/pizzeria-bot/internal/errors"
	"github.com/avolkov-go/pizzeria-bot/internal/geo"
	"github.com/avolkov-go/pizzeria-bot/pkg/config"
)

// ErrAddressNotFound indicates the geocoder returned no places for the query.
var ErrAddressNotFound = errors.New("address not found")

// Client calls the Yandex geocode HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New constructs a geocoder client with a bounded request timeout.
func New(cfg config.GeocoderConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type geocodeResponse struct {
	Response struct {
		GeoObjectCollection struct {
			FeatureMember []struct {
				GeoObject struct {
					Point struct {
						Pos string `json:"pos"`
					} `json:"Point"`
				} `json:"GeoObject"`
			} `json:"featureMember"`
		} `json:"GeoObjectCollection"`
	} `json:"response"`
}

// Resolve geocodes an address. Returns ErrAddressNotFound when no place matches.
func (c *Client) Resolve(ctx context.Context, address string) (geo.Coordinate, error) {
	params := url.Values{}
	params.Set("geocode", address)
	params.Set("apikey", c.apiKey)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("build geocode request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return geo.Coordinate{}, apperrors.NewBackendUnavailableError("geocoder", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geo.Coordinate{}, apperrors.NewBackendRejectedError("geocoder", resp.StatusCode, "")
	}

	var payload geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return geo.Coordinate{}, apperrors.NewBackendUnavailableError("geocoder", err)
	}

	members := payload.Response.GeoObjectCollection.FeatureMember
	if len(members) == 0 {
		return geo.Coordinate{}, ErrAddressNotFound
	}

	// Point.pos carries "lon lat".
	parts := strings.Fields(members[0].GeoObject.Point.Pos)
	if len(parts) != 2 {
		return geo.Coordinate{}, fmt.Errorf("geocoder: malformed point %q", members[0].GeoObject.Point.Pos)
	}

	lon, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("geocoder: parse longitude: %w", err)
	}

	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("geocoder: parse latitude: %w", err)
	}

	return geo.Coordinate{Lat: lat, Lon: lon}, nil
}
