// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package geocode resolves street addresses to coordinates through a
// Nominatim-compatible provider. Unlike routing there is no local
// fallback; failures surface to the caller, which persists them and
// retries on the geocoding worker's schedule.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	"github.com/sethvargo/go-retry"

	"github.com/fieldward/fieldward/structs"
)

const (
	// DefaultBaseURL is the hosted Nominatim-compatible provider.
	DefaultBaseURL = "https://geocode.maps.co"

	// DefaultTimeout bounds each provider call.
	DefaultTimeout = 10 * time.Second
)

// Resolver is the lookup surface the geocoding worker consumes.
type Resolver interface {
	Geocode(ctx context.Context, address string) (*structs.Coordinates, error)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     hclog.Logger
}

// Client resolves addresses against the provider, retrying transient
// failures with exponential backoff inside a single Geocode call.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     hclog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = cleanhttp.DefaultPooledClient()
	}
	cfg.HTTPClient.Timeout = cfg.Timeout
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger.Named("geocode"),
	}
}

type result struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves one address. Server-side and network failures are
// retried twice with backoff; an empty result set is terminal.
func (c *Client) Geocode(ctx context.Context, address string) (*structs.Coordinates, error) {
	if strings.TrimSpace(address) == "" {
		return nil, structs.NewValidationError("cannot geocode an empty address")
	}

	q := url.Values{}
	q.Set("q", address)
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	lookup := fmt.Sprintf("%s/search?%s", c.baseURL, q.Encode())

	var results []result
	backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookup, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return json.NewDecoder(resp.Body).Decode(&results)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("geocoding provider returned %s", resp.Status))
		default:
			return fmt.Errorf("geocoding provider returned %s", resp.Status)
		}
	})
	if err != nil {
		return nil, structs.NewExternalError("geocoding", err)
	}

	if len(results) == 0 {
		return nil, structs.NewExternalError("geocoding", fmt.Errorf("no results for address %q", address))
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, structs.NewExternalError("geocoding", fmt.Errorf("bad latitude %q", results[0].Lat))
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, structs.NewExternalError("geocoding", fmt.Errorf("bad longitude %q", results[0].Lon))
	}

	c.logger.Trace("resolved address", "address", address, "lat", lat, "lon", lon)
	return &structs.Coordinates{Latitude: lat, Longitude: lon}, nil
}
