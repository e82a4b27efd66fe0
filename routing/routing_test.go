// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shoenig/test/must"

	"github.com/fieldward/fieldward/ci"
	"github.com/fieldward/fieldward/helper/testlog"
)

var (
	dallas = Coord{Lat: 32.7767, Lon: -96.797}
	plano  = Coord{Lat: 33.0198, Lon: -96.6989}
	frisco = Coord{Lat: 33.1507, Lon: -96.8236}
)

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	return NewClient(Config{
		BaseURL: url,
		Timeout: time.Second,
		Logger:  testlog.HCLogger(t),
	})
}

func TestClient_DriveTime(t *testing.T) {
	ci.Parallel(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		must.StrContains(t, r.URL.Path, "/route/v1/driving/")
		fmt.Fprint(w, `{"code":"Ok","routes":[{"duration":1530.5,"distance":28000.2}]}`)
	}))
	defer srv.Close()

	info := testClient(t, srv.URL).DriveTime(context.Background(), dallas, plano)
	must.False(t, info.Estimated)
	must.Eq(t, 1530.5, info.DurationSeconds)
	must.Eq(t, 28000.2, info.DistanceMeters)
	must.InDelta(t, 25.5, info.Minutes(), 0.01)
}

func TestClient_DriveTime_NonOkCode(t *testing.T) {
	ci.Parallel(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"NoRoute","routes":[]}`)
	}))
	defer srv.Close()

	info := testClient(t, srv.URL).DriveTime(context.Background(), dallas, plano)
	must.True(t, info.Estimated)
	must.Greater(t, 0.0, info.DurationSeconds)
	must.Greater(t, 0.0, info.DistanceMeters)
}

func TestClient_DriveTime_ServerDown(t *testing.T) {
	ci.Parallel(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	info := testClient(t, srv.URL).DriveTime(context.Background(), dallas, plano)
	must.True(t, info.Estimated)
	must.Greater(t, 0.0, info.DurationSeconds)
}

func TestClient_DriveTime_HTTPError(t *testing.T) {
	ci.Parallel(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	info := testClient(t, srv.URL).DriveTime(context.Background(), dallas, plano)
	must.True(t, info.Estimated)
}

func TestClient_DriveTime_SamePoint(t *testing.T) {
	ci.Parallel(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	info := testClient(t, srv.URL).DriveTime(context.Background(), dallas, dallas)
	must.True(t, info.Estimated)
	must.Eq(t, 0.0, info.DurationSeconds)
	must.Eq(t, 0.0, info.DistanceMeters)
}

func TestClient_DriveTimeMatrix(t *testing.T) {
	ci.Parallel(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		must.StrContains(t, r.URL.Path, "/table/v1/driving/")
		must.Eq(t, "0", r.URL.Query().Get("sources"))
		must.Eq(t, "1;2", r.URL.Query().Get("destinations"))
		fmt.Fprint(w, `{"code":"Ok","durations":[[600,1200]],"distances":[[9000,21000]]}`)
	}))
	defer srv.Close()

	got := testClient(t, srv.URL).DriveTimeMatrix(context.Background(), dallas, []Coord{plano, frisco})
	must.Len(t, 2, got)
	must.False(t, got[0].Estimated)
	must.Eq(t, 600.0, got[0].DurationSeconds)
	must.Eq(t, 9000.0, got[0].DistanceMeters)
	must.Eq(t, 1200.0, got[1].DurationSeconds)
	must.Eq(t, 21000.0, got[1].DistanceMeters)
}

func TestClient_DriveTimeMatrix_NullCell(t *testing.T) {
	ci.Parallel(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"Ok","durations":[[600,null]],"distances":[[9000,null]]}`)
	}))
	defer srv.Close()

	got := testClient(t, srv.URL).DriveTimeMatrix(context.Background(), dallas, []Coord{plano, frisco})
	must.Len(t, 2, got)

	// Reachable cell passes through untouched.
	must.False(t, got[0].Estimated)
	must.Eq(t, 600.0, got[0].DurationSeconds)

	// Unreachable cell is estimated without failing the batch.
	must.True(t, got[1].Estimated)
	must.Greater(t, 0.0, got[1].DurationSeconds)
}

func TestClient_DriveTimeMatrix_ServerDown(t *testing.T) {
	ci.Parallel(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	got := testClient(t, srv.URL).DriveTimeMatrix(context.Background(), dallas, []Coord{plano, frisco})
	must.Len(t, 2, got)
	for _, info := range got {
		must.True(t, info.Estimated)
		must.GreaterEq(t, 0.0, info.DurationSeconds)
	}
}

func TestClient_DriveTimeMatrix_Empty(t *testing.T) {
	ci.Parallel(t)

	got := testClient(t, "http://127.0.0.1:1").DriveTimeMatrix(context.Background(), dallas, nil)
	must.Len(t, 0, got)
	must.NotNil(t, got)
}

func TestClient_BreakerOpensAfterFailures(t *testing.T) {
	ci.Parallel(t)

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	for i := 0; i < 10; i++ {
		info := c.DriveTime(context.Background(), dallas, plano)
		must.True(t, info.Estimated)
	}

	// The breaker trips after five consecutive failures and stops
	// hitting the upstream.
	must.Eq(t, 5, calls)
}

func TestEstimate(t *testing.T) {
	ci.Parallel(t)

	// Dallas to Plano is roughly 28 km as the crow flies, which at
	// 50 km/h comes out a bit over half an hour.
	info := Estimate(dallas, plano)
	must.True(t, info.Estimated)
	must.InDelta(t, 28.7, info.DistanceMeters/1000, 1.5)
	must.InDelta(t, info.DistanceMeters/1000/50*60, info.Minutes(), 0.001)
	must.GreaterEq(t, 0.0, info.Minutes())
}

func TestFormatCoord(t *testing.T) {
	ci.Parallel(t)

	got := formatCoord(Coord{Lat: 32.7767, Lon: -96.797})
	must.Eq(t, "-96.797000,32.776700", got)
	must.True(t, strings.Contains(got, ","))
}
