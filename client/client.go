package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// AsyncHttpClient is safe for concurrent use. Every request, whichever
// goroutine sends it, waits on the same limiter.
type AsyncHttpClient struct {
	limiter   *rate.Limiter
	baseURL   *url.URL
	userAgent string
	client    *http.Client
}

func NewAsyncHttpClient(baseURL *url.URL, userAgent string, maxRequestsPerMinute float64, timeout time.Duration) *AsyncHttpClient {
	return &AsyncHttpClient{
		limiter:   rate.NewLimiter(rate.Limit(maxRequestsPerMinute/60), 1),
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

type RequestArgs struct {
	Endpoint    string
	PathParams  []string
	QueryParams map[string]string
}

// BuildURL resolves the endpoint against the base url. Path parameters are
// escaped before they are substituted into the endpoint.
func (c *AsyncHttpClient) BuildURL(requestArgs RequestArgs) (*url.URL, error) {
	pathParams := make([]any, len(requestArgs.PathParams))
	for i, v := range requestArgs.PathParams {
		pathParams[i] = url.PathEscape(v)
	}
	endpoint := requestArgs.Endpoint
	if len(pathParams) > 0 {
		endpoint = fmt.Sprintf(endpoint, pathParams...)
	}
	ref, err := url.Parse(strings.TrimSuffix(c.baseURL.Path, "/") + "/" + strings.TrimPrefix(endpoint, "/"))
	if err != nil {
		return nil, err
	}
	requestUrl := c.baseURL.ResolveReference(ref)
	if requestArgs.QueryParams != nil {
		query := requestUrl.Query()
		for k, v := range requestArgs.QueryParams {
			query.Set(k, v)
		}
		// Encode sorts by key, so the same query always yields the same url
		requestUrl.RawQuery = query.Encode()
	}
	return requestUrl, nil
}

// Get issues a GET against an absolute url, such as one built by BuildURL or a
// pagination link taken from a response.
func (c *AsyncHttpClient) Get(ctx context.Context, requestUrl string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestUrl, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	return c.client.Do(req)
}
