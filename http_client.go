package splitasset

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

type httpClient struct {
	client *http.Client
}

func newHTTPClient(client *http.Client) *httpClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpClient{client: client}
}

func (c *httpClient) get(ctx context.Context, url string, header map[string]string) (body []byte, statusCode int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err == nil {
		for k, v := range header {
			req.Header.Set(k, v)
		}

		var resp *http.Response
		resp, err = c.client.Do(req)
		if err == nil {
			body, statusCode, err = readAll(resp)
		}
	}

	return
}

// getOK is get with the status check folded in: any non-2xx response is an
// error and its body is discarded.
func (c *httpClient) getOK(ctx context.Context, url string) (body []byte, err error) {
	body, statusCode, err := c.get(ctx, url, nil)
	if err == nil && !statusOK(statusCode) {
		body, err = nil, fmt.Errorf("get %s: status %d", url, statusCode)
	}
	return
}

func (c *httpClient) download(ctx context.Context, url string, callback func(io.Reader) error) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}

	r, err := c.client.Do(req)
	if err == nil {
		if !statusOK(r.StatusCode) {
			drainAndClose(r.Body)
			err = fmt.Errorf("download %s but error. Status:%s", url, r.Status)
			return
		}

		// execute callback
		err = callback(r.Body)

		// drain and close body
		drainAndClose(r.Body)
	}

	return
}
