// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package routing computes drive times against an OSRM-compatible service.
// Every call degrades to a great-circle estimate when the service is
// unreachable, returns a non-Ok code, or reports an unreachable cell, so
// callers never handle routing errors.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	"github.com/sony/gobreaker"
)

const (
	// DefaultBaseURL is the public OSRM demo server.
	DefaultBaseURL = "https://router.project-osrm.org"

	// DefaultTimeout bounds each routing call. Timeouts degrade to the
	// great-circle estimate rather than erroring.
	DefaultTimeout = 5 * time.Second

	// fallbackSpeedKmh is the assumed speed when estimating drive time
	// from straight-line distance.
	fallbackSpeedKmh = 50.0

	earthRadiusKm = 6371.0

	codeOK = "Ok"
)

// Coord is a WGS84 point.
type Coord struct {
	Lat float64
	Lon float64
}

// RouteInfo is the drive between two points. Estimated marks values
// derived from the great-circle fallback rather than the road network.
type RouteInfo struct {
	DurationSeconds float64 `json:"durationSeconds"`
	DistanceMeters  float64 `json:"distanceMeters"`
	Estimated       bool    `json:"estimated"`
}

// Minutes returns the drive duration in fractional minutes.
func (r RouteInfo) Minutes() float64 {
	return r.DurationSeconds / 60
}

// Estimator is the routing surface the dispatch components consume.
type Estimator interface {
	// DriveTime computes one origin-destination drive.
	DriveTime(ctx context.Context, from, to Coord) RouteInfo

	// DriveTimeMatrix computes origin to every destination. Output is
	// index-aligned with destinations.
	DriveTimeMatrix(ctx context.Context, origin Coord, destinations []Coord) []RouteInfo
}

// Config configures a Client.
type Config struct {
	// BaseURL overrides the routing service endpoint.
	BaseURL string

	// Timeout bounds each HTTP call.
	Timeout time.Duration

	// HTTPClient overrides the pooled default, mainly for tests.
	HTTPClient *http.Client

	Logger hclog.Logger
}

// Client talks to an OSRM-compatible routing service. A circuit breaker
// sits in front of the HTTP calls so a dead service short-circuits to the
// estimate instead of stacking up timeouts.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     hclog.Logger
}

// NewClient builds a routing client from config, applying defaults for
// any unset field.
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
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger.Named("routing"),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "routing",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// DriveTime computes one origin-destination drive, estimating on any
// upstream failure.
func (c *Client) DriveTime(ctx context.Context, from, to Coord) RouteInfo {
	url := fmt.Sprintf("%s/route/v1/driving/%s;%s?overview=false",
		c.baseURL, formatCoord(from), formatCoord(to))

	var out routeResponse
	if err := c.fetch(ctx, url, &out); err != nil {
		c.logger.Debug("route lookup failed, estimating", "error", err)
		return Estimate(from, to)
	}
	if out.Code != codeOK || len(out.Routes) == 0 {
		c.logger.Debug("route lookup degraded, estimating", "code", out.Code)
		return Estimate(from, to)
	}

	return RouteInfo{
		DurationSeconds: out.Routes[0].Duration,
		DistanceMeters:  out.Routes[0].Distance,
	}
}

// DriveTimeMatrix computes origin to every destination in one upstream
// table call. Unreachable cells are estimated individually; a failed call
// estimates the whole batch.
func (c *Client) DriveTimeMatrix(ctx context.Context, origin Coord, destinations []Coord) []RouteInfo {
	results := make([]RouteInfo, len(destinations))
	if len(destinations) == 0 {
		return results
	}

	coords := make([]string, 0, len(destinations)+1)
	coords = append(coords, formatCoord(origin))
	destIdx := make([]string, 0, len(destinations))
	for i, d := range destinations {
		coords = append(coords, formatCoord(d))
		destIdx = append(destIdx, strconv.Itoa(i+1))
	}

	url := fmt.Sprintf("%s/table/v1/driving/%s?sources=0&destinations=%s&annotations=duration,distance",
		c.baseURL, strings.Join(coords, ";"), strings.Join(destIdx, ";"))

	var out tableResponse
	if err := c.fetch(ctx, url, &out); err != nil {
		c.logger.Debug("table lookup failed, estimating batch", "destinations", len(destinations), "error", err)
		return c.estimateAll(origin, destinations, results)
	}
	if out.Code != codeOK || len(out.Durations) == 0 {
		c.logger.Debug("table lookup degraded, estimating batch", "code", out.Code)
		return c.estimateAll(origin, destinations, results)
	}

	durations := out.Durations[0]
	var distances []*float64
	if len(out.Distances) > 0 {
		distances = out.Distances[0]
	}

	for i := range destinations {
		if i >= len(durations) || durations[i] == nil {
			results[i] = Estimate(origin, destinations[i])
			continue
		}
		info := RouteInfo{DurationSeconds: *durations[i]}
		if i < len(distances) && distances[i] != nil {
			info.DistanceMeters = *distances[i]
		} else {
			info.DistanceMeters = greatCircleKm(origin, destinations[i]) * 1000
		}
		results[i] = info
	}
	return results
}

func (c *Client) estimateAll(origin Coord, destinations []Coord, results []RouteInfo) []RouteInfo {
	for i, d := range destinations {
		results[i] = Estimate(origin, d)
	}
	return results
}

func (c *Client) fetch(ctx context.Context, url string, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("routing service returned %s", resp.Status)
		}
		return nil, json.NewDecoder(resp.Body).Decode(out)
	})
	return err
}

// Estimate returns the great-circle drive at the assumed fallback speed.
func Estimate(from, to Coord) RouteInfo {
	km := greatCircleKm(from, to)
	return RouteInfo{
		DurationSeconds: km / fallbackSpeedKmh * 3600,
		DistanceMeters:  km * 1000,
		Estimated:       true,
	}
}

// greatCircleKm is the haversine distance between two points.
func greatCircleKm(from, to Coord) float64 {
	lat1 := from.Lat * math.Pi / 180
	lat2 := to.Lat * math.Pi / 180
	dLat := (to.Lat - from.Lat) * math.Pi / 180
	dLon := (to.Lon - from.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func formatCoord(c Coord) string {
	return strconv.FormatFloat(c.Lon, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lat, 'f', 6, 64)
}

type routeResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Duration float64 `json:"duration"`
		Distance float64 `json:"distance"`
	} `json:"routes"`
}

type tableResponse struct {
	Code      string       `json:"code"`
	Durations [][]*float64 `json:"durations"`
	Distances [][]*float64 `json:"distances"`
}
