package gasoracle_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcsign/txmanager/gasoracle"
	"github.com/arcsign/txmanager/txmanager"
)

func TestClient_PriorityOrderingIsMonotonic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"fastest": 800, "fastestWait": 0.5,
			"fast": 500, "fastWait": 1,
			"average": 300, "avgWait": 3,
			"safeLow": 100, "safeLowWait": 10,
			"block_time": 14
		}`))
	}))
	defer server.Close()

	client := gasoracle.New(server.URL, 2*time.Second)

	low, err := client.GetInfo(context.Background(), txmanager.PriorityLow)
	require.NoError(t, err)
	normal, err := client.GetInfo(context.Background(), txmanager.PriorityNormal)
	require.NoError(t, err)
	high, err := client.GetInfo(context.Background(), txmanager.PriorityHigh)
	require.NoError(t, err)
	asap, err := client.GetInfo(context.Background(), txmanager.PriorityASAP)
	require.NoError(t, err)

	require.LessOrEqual(t, low.MaxFee.Cmp(normal.MaxFee), 0)
	require.LessOrEqual(t, normal.MaxFee.Cmp(high.MaxFee), 0)
	require.LessOrEqual(t, high.MaxFee.Cmp(asap.MaxFee), 0)

	require.NotNil(t, low.ObservedBlockTime)
	require.Equal(t, 14*time.Second, *low.ObservedBlockTime)
}

func TestClient_NonOKStatusIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := gasoracle.New(server.URL, 2*time.Second)
	_, err := client.GetInfo(context.Background(), txmanager.PriorityNormal)
	require.Error(t, err)
}
