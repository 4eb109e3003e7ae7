package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type featurePage struct {
	Features []struct {
		Attributes map[string]any `json:"attributes"`
	} `json:"features"`
	ExceededTransferLimit bool `json:"exceededTransferLimit"`
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"features":[{"attributes":{"CallType":"FIRE ALARM"}}],"exceededTransferLimit":true}`))
	}))
	defer srv.Close()

	page, err := GetJSON[featurePage](context.Background(), newTestFetcher(), srv.URL)
	require.NoError(t, err)
	require.Len(t, page.Features, 1)
	assert.Equal(t, "FIRE ALARM", page.Features[0].Attributes["CallType"])
	assert.True(t, page.ExceededTransferLimit)
}

func TestGetJSON_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"features":[`))
	}))
	defer srv.Close()

	_, err := GetJSON[featurePage](context.Background(), newTestFetcher(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode json")
}
