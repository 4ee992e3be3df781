package npi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gyeh/npi-enrich/internal/config"
	"github.com/gyeh/npi-enrich/internal/domain"
)

// Client queries the NPPES NPI Registry.
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client
}

// NewClient creates a registry client from cfg. The request timeout applies
// to each search individually; zero disables it.
func NewClient(cfg config.Config) *Client {
	return &Client{
		baseURL:    cfg.RegistryBaseURL,
		version:    cfg.APIVersion,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// SearchURL builds the search URL for an identity. No taxonomy filter is sent:
// the registry's taxonomy_description match is too broad, so filtering is done
// on the client.
func (c *Client) SearchURL(id domain.InputIdentity) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing registry URL: %w", err)
	}
	q := u.Query()
	q.Set("version", c.version)
	q.Set("first_name", id.FirstName)
	q.Set("last_name", id.LastName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SearchByName queries the registry for providers matching the identity's
// first and last name.
//
// Connection failures, timeouts and non-200 responses are returned as
// domain.KindLookupTransport errors. A body that is not the expected JSON
// document is returned as domain.KindMalformedResponse. A response without
// results yields no profiles and no error.
func (c *Client) SearchByName(ctx context.Context, id domain.InputIdentity) ([]Profile, error) {
	u, err := c.SearchURL(id)
	if err != nil {
		return nil, &domain.OpError{Op: "npi.search", Kind: domain.KindLookupTransport, Path: c.baseURL, Err: err}
	}
	transportErr := func(err error) error {
		return &domain.OpError{Op: "npi.search", Kind: domain.KindLookupTransport, Path: u, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, transportErr(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportErr(fmt.Errorf("querying NPI registry: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, transportErr(fmt.Errorf("NPI registry returned HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportErr(fmt.Errorf("reading NPI registry response: %w", err))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, &domain.OpError{
			Op:   "npi.search",
			Kind: domain.KindMalformedResponse,
			Path: u,
			Err:  fmt.Errorf("parsing NPI registry response: %w", err),
		}
	}

	if len(apiResp.Results) == 0 {
		return nil, nil
	}
	return apiResp.Results, nil
}
