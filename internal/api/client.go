package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/banshee-data/reservoir/internal/httputil"
	"github.com/banshee-data/reservoir/internal/summary"
)

// Client reads cases from a running server.
type Client struct {
	BaseURL string
	HTTP    httputil.HTTPClient
}

// NewClient returns a client for baseURL using http.DefaultClient.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: http.DefaultClient}
}

// Cases lists the stored cases.
func (c *Client) Cases(ctx context.Context) ([]CaseInfo, error) {
	var out CaseListing
	if err := c.get(ctx, "/api/cases", nil, &out); err != nil {
		return nil, err
	}
	return out.Cases, nil
}

// Vector fetches one vector resampled at freq.
func (c *Client) Vector(ctx context.Context, caseID, name string, freq summary.Frequency) (VectorResponse, error) {
	var out VectorResponse
	path := "/api/cases/" + url.PathEscape(caseID) + "/vectors/" + url.PathEscape(name)
	err := c.get(ctx, path, url.Values{"frequency": {freq.String()}}, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, q url.Values, into any) error {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	if resp.StatusCode/100 != 2 {
		var body httputil.ErrorBody
		if err := dec.Decode(&body); err != nil {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("GET %s: %w", path, httputil.DecodeError(resp.StatusCode, body))
	}
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("GET %s: decode response: %w", path, err)
	}
	return nil
}
