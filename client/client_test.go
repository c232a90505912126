package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildURL(t *testing.T) {
	baseURL, err := url.Parse("https://www.speedrun.com/api/v1")
	require.NoError(t, err)
	httpClient := NewAsyncHttpClient(baseURL, "test", 6000, time.Second)

	requestUrl, err := httpClient.BuildURL(RequestArgs{
		Endpoint:    "users/%s",
		PathParams:  []string{"a b/c"},
		QueryParams: map[string]string{"z": "1", "a": "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://www.speedrun.com/api/v1/users/a%20b%2Fc?a=2&z=1", requestUrl.String())
}

func TestGetSetsHeaders(t *testing.T) {
	var userAgent, accept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		accept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()
	baseURL, err := url.Parse(server.URL)
	require.NoError(t, err)

	response, err := NewAsyncHttpClient(baseURL, "scoreboard-test", 6000, time.Second).Get(context.Background(), server.URL+"/runs")
	require.NoError(t, err)
	defer response.Body.Close()
	assert.Equal(t, http.StatusNoContent, response.StatusCode)
	assert.Equal(t, "scoreboard-test", userAgent)
	assert.Equal(t, "application/json", accept)
}
