package main

import (
	"fmt"
	"io"
	"net/http"
)

// adminClient is a thin wrapper for the job-control routes internal/adminhttp
// exposes; it never imports internal/adminhttp itself since the CLI talks to
// a (possibly remote) running server over HTTP, not in-process.
type adminClient struct {
	baseURL string
	http    *http.Client
}

func newAdminClient(baseURL string) *adminClient {
	return &adminClient{baseURL: baseURL, http: &http.Client{}}
}

func (c *adminClient) post(path string, body io.Reader) (*http.Response, error) {
	resp, err := c.http.Post(c.baseURL+path, "application/json", body)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s: %s: %s", path, resp.Status, msg)
	}
	return resp, nil
}
