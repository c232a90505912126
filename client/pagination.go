package client

import (
	"context"
	"encoding/json"
	"net/url"
	"scoreboard/metrics"
	"strconv"
)

// FetchAll walks every page starting at requestUrl and returns the items in
// page order. A page answered with a server error is retried with half the
// page size as long as the size stays above the configured minimum.
func (c *SpeedrunClient) FetchAll(ctx context.Context, requestUrl string) ([]json.RawMessage, error) {
	data := make([]json.RawMessage, 0)
	visited := make(map[string]bool)
	next := requestUrl
	for next != "" {
		if visited[next] {
			return nil, &ClientError{
				Kind:        UpstreamRejection,
				Description: "pagination links back to a page that was already fetched",
				URL:         next,
			}
		}
		visited[next] = true
		page, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		data = append(data, page.Data...)
		next = page.Pagination.NextLink()
	}
	return data, nil
}

func (c *SpeedrunClient) fetchPage(ctx context.Context, pageUrl string) (*PagedResponse, error) {
	for {
		payload, err := c.Cache.GetOrFetch(ctx, pageUrl)
		if err != nil {
			reduced, ok := c.reducedPageURL(pageUrl, err)
			if !ok {
				return nil, err
			}
			c.logger.Infow("page failed upstream, retrying with a smaller page", "url", pageUrl, "retry_url", reduced)
			metrics.PageSizeReductionCounter.Inc()
			pageUrl = reduced
			continue
		}
		page := &PagedResponse{}
		if err := json.Unmarshal(payload, page); err != nil {
			return nil, &ClientError{
				Kind:        DecodeError,
				Description: err.Error(),
				URL:         pageUrl,
			}
		}
		return page, nil
	}
}

func (c *SpeedrunClient) reducedPageURL(pageUrl string, err error) (string, bool) {
	if !IsKind(err, TransientUpstreamError) {
		return "", false
	}
	parsed, parseErr := url.Parse(pageUrl)
	if parseErr != nil {
		return "", false
	}
	query := parsed.Query()
	pageSize, convErr := strconv.Atoi(query.Get("max"))
	if convErr != nil || pageSize <= c.minPageSize {
		return "", false
	}
	query.Set("max", strconv.Itoa(pageSize/2))
	parsed.RawQuery = query.Encode()
	return parsed.String(), true
}
