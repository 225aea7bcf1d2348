package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantBench/internal/model"
)

func TestFMPFetcher_Intraday(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/historical-chart/1min/SPY", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("apikey"))
		assert.Equal(t, "2024-03-04", r.URL.Query().Get("from"))
		w.Write([]byte(`[
			{"date":"2024-03-04 09:31:00","open":2,"high":3,"low":1,"close":2.5,"volume":200},
			{"date":"2024-03-04 09:30:00","open":1,"high":2,"low":0.5,"close":1.5,"volume":100}
		]`))
	}))
	defer srv.Close()

	f := NewFMPFetcher(srv.URL, "k", "", 6000)
	bars, err := f.FetchBars(context.Background(), "SPY", model.OneMinute, sessionDay(4, 0, 0), sessionDay(5, 0, 0))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Time.Equal(sessionDay(4, 9, 30)))
	assert.Equal(t, 200.0, bars[1].Volume)
}

func TestFMPFetcher_Daily(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/historical-price-full/SPY", r.URL.Path)
		w.Write([]byte(`{"symbol":"SPY","historical":[
			{"date":"2024-03-05","open":2,"high":3,"low":1,"close":2,"volume":2},
			{"date":"2024-03-04","open":1,"high":2,"low":1,"close":1,"volume":1}
		]}`))
	}))
	defer srv.Close()

	f := NewFMPFetcher(srv.URL, "k", "", 6000)
	bars, err := f.FetchBars(context.Background(), "SPY", model.OneDay, sessionDay(4, 0, 0), sessionDay(6, 0, 0))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 1.0, bars[0].Close)
}

func TestFMPFetcher_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid key"))
	}))
	defer srv.Close()

	f := NewFMPFetcher(srv.URL, "bad", "", 6000)
	_, err := f.FetchBars(context.Background(), "SPY", model.FiveMinutes, sessionDay(4, 0, 0), sessionDay(5, 0, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid key")
}

func TestFMPFetcher_UnsupportedTimeframe(t *testing.T) {
	f := NewFMPFetcher("http://unused", "k", "", 60)
	_, err := f.FetchBars(context.Background(), "SPY", model.Timeframe("2Min"), sessionDay(4, 0, 0), sessionDay(5, 0, 0))
	assert.Error(t, err)
}

func TestFMPFetcher_ShareClassSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/historical-price-full/BRK-B", r.URL.Path)
		w.Write([]byte(`{"symbol":"BRK-B","historical":[{"date":"2024-03-04","open":1,"high":2,"low":1,"close":1,"volume":1}]}`))
	}))
	defer srv.Close()

	f := NewFMPFetcher(srv.URL, "k", "", 6000)
	bars, err := f.FetchBars(context.Background(), "BRK.B", model.OneDay, sessionDay(4, 0, 0), sessionDay(5, 0, 0))
	require.NoError(t, err)
	assert.Len(t, bars, 1)
}
