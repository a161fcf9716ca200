// SPDX-License-Identifier: AGPL-3.0-only

// Package companieshouse is a small client for the Companies House public
// data API.
package companieshouse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jolks/mcp-toolchat/internal/config"
	"github.com/jolks/mcp-toolchat/internal/errors"
	"github.com/jolks/mcp-toolchat/internal/logging"
	"github.com/jolks/mcp-toolchat/internal/resilience"
)

// Resources below /company/{number}.
const (
	PurposeProfile       = ""
	PurposeOfficers      = "officers"
	PurposeCharges       = "charges"
	PurposePSC           = "persons-with-significant-control"
	PurposeFilingHistory = "filing-history"
)

const defaultSearchSize = 10

// Response is a raw API answer.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the body into a generic JSON value.
func (r *Response) Decode() (any, error) {
	var v any
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return v, nil
}

// Client talks to the API with HTTP basic auth, the API key being the user.
type Client struct {
	host   string
	apiKey string
	http   *http.Client
	retry  resilience.RetryPolicy
	logger *logging.Logger
}

// New creates a client from cfg. httpClient may be nil.
func New(cfg config.CompaniesHouseConfig, httpClient *http.Client, logger *logging.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Client{
		host:   strings.TrimRight(cfg.APIHost, "/"),
		apiKey: cfg.APIKey,
		http:   httpClient,
		retry:  resilience.NewRetryPolicy(cfg.Retries, 250*time.Millisecond),
		logger: logger,
	}
}

// Company fetches /company/{number}[/{purpose}].
func (c *Client) Company(ctx context.Context, number, purpose string, query url.Values) (*Response, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, errors.InvalidInput("company number is required")
	}
	path := "/company/" + url.PathEscape(number)
	if purpose != PurposeProfile {
		path += "/" + purpose
	}
	return c.get(ctx, path, query)
}

// LatestFiling fetches the most recent accounts filing of a company.
func (c *Client) LatestFiling(ctx context.Context, number string) (*Response, error) {
	return c.Company(ctx, number, PurposeFilingHistory, url.Values{
		"category":       {"accounts"},
		"items_per_page": {"1"},
	})
}

// SearchBySIC runs an advanced company search on SIC codes.
func (c *Client) SearchBySIC(ctx context.Context, sicCodes []string, size int) (*Response, error) {
	if len(sicCodes) == 0 {
		return nil, errors.InvalidInput("at least one SIC code is required")
	}
	if size <= 0 {
		size = defaultSearchSize
	}
	return c.get(ctx, "/advanced-search/companies", url.Values{
		"sic_codes": {strings.Join(sicCodes, ",")},
		"size":      {strconv.Itoa(size)},
	})
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*Response, error) {
	endpoint := c.host + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var resp *Response
	err := c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return resilience.Permanent(err)
		}
		req.SetBasicAuth(c.apiKey, "")
		req.Header.Set("Accept", "application/json")

		res, err := c.http.Do(req)
		if err != nil {
			c.logger.Debugf("GET %s failed: %v", path, err)
			return err
		}
		defer res.Body.Close()

		body, err := io.ReadAll(res.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		resp = &Response{StatusCode: res.StatusCode, Body: body}
		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
			return fmt.Errorf("companies house returned %d", res.StatusCode)
		}
		return nil
	})
	if resp != nil {
		c.logger.Debugf("GET %s -> %d", path, resp.StatusCode)
		return resp, nil
	}
	return nil, fmt.Errorf("GET %s: %w", path, err)
}
