/*
 * Copyright 2025 Harborwatch, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package adapters

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/harborwatch/harborwatch/pkg/models"
)

const (
	providerPageSize    = 100
	providerHTTPTimeout = 30 * time.Second
)

var (
	errUnexpectedStatusCode = errors.New("unexpected status code")
	errMissingEndpoint      = errors.New("data source config missing endpoint")
)

// providerCredentials is the shape every data source carries in its Config
// blob for HTTP access.
type providerCredentials struct {
	Endpoint           string `json:"endpoint"`
	APIToken           string `json:"api_token"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`
}

func credentialsFor(ds *models.DataSource) (providerCredentials, error) {
	var creds providerCredentials
	if len(ds.Config) > 0 {
		if err := json.Unmarshal(ds.Config, &creds); err != nil {
			return providerCredentials{}, fmt.Errorf("parse data source config: %w", err)
		}
	}

	if creds.Endpoint == "" {
		return providerCredentials{}, fmt.Errorf("%w: %s", errMissingEndpoint, ds.ID)
	}

	return creds, nil
}

// apiClient is the shared HTTP plumbing under every provider client.
type apiClient struct {
	client         *http.Client
	insecureClient *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{
		client: &http.Client{Timeout: providerHTTPTimeout},
		insecureClient: &http.Client{
			Timeout: providerHTTPTimeout,
			Transport: &http.Transport{
				//nolint:gosec // on-prem appliances often run self-signed certs
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

func (c *apiClient) getJSON(ctx context.Context, creds providerCredentials, rawURL, authHeader string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", authHeader)
	req.Header.Set("Accept", "application/json")

	client := c.client
	if creds.InsecureSkipVerify {
		client = c.insecureClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d from %s", errUnexpectedStatusCode, resp.StatusCode, rawURL)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// HTTPGraphClient calls the Microsoft Graph API. Cursors are Graph
// @odata.nextLink URLs and are followed verbatim.
type HTTPGraphClient struct {
	api *apiClient
}

// NewHTTPGraphClient creates the production Graph client.
func NewHTTPGraphClient() *HTTPGraphClient {
	return &HTTPGraphClient{api: newAPIClient()}
}

type graphPage struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

func (g *HTTPGraphClient) list(ctx context.Context, ds *models.DataSource, path, cursor string) (Page, error) {
	creds, err := credentialsFor(ds)
	if err != nil {
		return Page{}, err
	}

	u := creds.Endpoint + path
	if cursor != "" {
		u = cursor
	}

	var page graphPage
	if err := g.api.getJSON(ctx, creds, u, "Bearer "+creds.APIToken, &page); err != nil {
		return Page{}, err
	}

	return Page{Items: page.Value, NextCursor: page.NextLink}, nil
}

func (g *HTTPGraphClient) ListUsers(ctx context.Context, ds *models.DataSource, cursor string) (Page, error) {
	return g.list(ctx, ds, "/users", cursor)
}

func (g *HTTPGraphClient) ListSubscribedSKUs(ctx context.Context, ds *models.DataSource, cursor string) (Page, error) {
	return g.list(ctx, ds, "/subscribedSkus", cursor)
}

func (g *HTTPGraphClient) ListDirectoryRoles(ctx context.Context, ds *models.DataSource, cursor string) (Page, error) {
	return g.list(ctx, ds, "/directoryRoles", cursor)
}

func (g *HTTPGraphClient) ListOrganizations(ctx context.Context, ds *models.DataSource, cursor string) (Page, error) {
	return g.list(ctx, ds, "/organization", cursor)
}

// HTTPNinjaOneClient calls the NinjaOne public API. NinjaOne paginates
// with an `after` device id; the cursor carries the last id of the page.
type HTTPNinjaOneClient struct {
	api *apiClient
}

// NewHTTPNinjaOneClient creates the production NinjaOne client.
func NewHTTPNinjaOneClient() *HTTPNinjaOneClient {
	return &HTTPNinjaOneClient{api: newAPIClient()}
}

func (n *HTTPNinjaOneClient) list(ctx context.Context, ds *models.DataSource, path, cursor string) (Page, error) {
	creds, err := credentialsFor(ds)
	if err != nil {
		return Page{}, err
	}

	u := fmt.Sprintf("%s%s?pageSize=%d", creds.Endpoint, path, providerPageSize)
	if cursor != "" {
		u += "&after=" + url.QueryEscape(cursor)
	}

	var items []json.RawMessage
	if err := n.api.getJSON(ctx, creds, u, "Bearer "+creds.APIToken, &items); err != nil {
		return Page{}, err
	}

	next := ""
	if len(items) == providerPageSize {
		next = stringField(items[len(items)-1], "id")
	}

	return Page{Items: items, NextCursor: next}, nil
}

func (n *HTTPNinjaOneClient) ListDevices(ctx context.Context, ds *models.DataSource, cursor string) (Page, error) {
	return n.list(ctx, ds, "/v2/devices", cursor)
}

func (n *HTTPNinjaOneClient) ListOrganizations(ctx context.Context, ds *models.DataSource, cursor string) (Page, error) {
	return n.list(ctx, ds, "/v2/organizations", cursor)
}

// HTTPSentinelOneClient calls the SentinelOne management API.
type HTTPSentinelOneClient struct {
	api *apiClient
}

// NewHTTPSentinelOneClient creates the production SentinelOne client.
func NewHTTPSentinelOneClient() *HTTPSentinelOneClient {
	return &HTTPSentinelOneClient{api: newAPIClient()}
}

type sentinelOnePage struct {
	Data       []json.RawMessage `json:"data"`
	Pagination struct {
		NextCursor string `json:"nextCursor"`
	} `json:"pagination"`
}

func (s *HTTPSentinelOneClient) ListAgents(ctx context.Context, ds *models.DataSource, cursor string) (Page, error) {
	creds, err := credentialsFor(ds)
	if err != nil {
		return Page{}, err
	}

	u := fmt.Sprintf("%s/web/api/v2.1/agents?limit=%d", creds.Endpoint, providerPageSize)
	if cursor != "" {
		u += "&cursor=" + url.QueryEscape(cursor)
	}

	var page sentinelOnePage
	if err := s.api.getJSON(ctx, creds, u, "ApiToken "+creds.APIToken, &page); err != nil {
		return Page{}, err
	}

	return Page{Items: page.Data, NextCursor: page.Pagination.NextCursor}, nil
}

// HTTPHaloPSAClient calls the HaloPSA API. Pagination is page-numbered;
// the cursor carries the next page number.
type HTTPHaloPSAClient struct {
	api *apiClient
}

// NewHTTPHaloPSAClient creates the production HaloPSA client.
func NewHTTPHaloPSAClient() *HTTPHaloPSAClient {
	return &HTTPHaloPSAClient{api: newAPIClient()}
}

type haloPSAPage struct {
	Clients []json.RawMessage `json:"clients"`
}

func (h *HTTPHaloPSAClient) ListClients(ctx context.Context, ds *models.DataSource, cursor string) (Page, error) {
	creds, err := credentialsFor(ds)
	if err != nil {
		return Page{}, err
	}

	pageNo := 1
	if cursor != "" {
		pageNo, err = strconv.Atoi(cursor)
		if err != nil {
			return Page{}, fmt.Errorf("invalid halopsa cursor %q: %w", cursor, err)
		}
	}

	u := fmt.Sprintf("%s/api/Client?pageinate=true&page_size=%d&page_no=%d",
		creds.Endpoint, providerPageSize, pageNo)

	var page haloPSAPage
	if err := h.api.getJSON(ctx, creds, u, "Bearer "+creds.APIToken, &page); err != nil {
		return Page{}, err
	}

	next := ""
	if len(page.Clients) == providerPageSize {
		next = strconv.Itoa(pageNo + 1)
	}

	return Page{Items: page.Clients, NextCursor: next}, nil
}

// HTTPFortiGateClient calls the FortiGate Cloud device inventory.
type HTTPFortiGateClient struct {
	api *apiClient
}

// NewHTTPFortiGateClient creates the production FortiGate client.
func NewHTTPFortiGateClient() *HTTPFortiGateClient {
	return &HTTPFortiGateClient{api: newAPIClient()}
}

type fortiGatePage struct {
	Devices []json.RawMessage `json:"devices"`
}

func (f *HTTPFortiGateClient) ListFirewalls(ctx context.Context, ds *models.DataSource, _ string) (Page, error) {
	creds, err := credentialsFor(ds)
	if err != nil {
		return Page{}, err
	}

	var page fortiGatePage
	if err := f.api.getJSON(ctx, creds, creds.Endpoint+"/api/v1/devices", "Bearer "+creds.APIToken, &page); err != nil {
		return Page{}, err
	}

	return Page{Items: page.Devices}, nil
}

// NewHTTPClients bundles the production provider clients.
func NewHTTPClients() Clients {
	return Clients{
		Microsoft365: NewHTTPGraphClient(),
		NinjaOne:     NewHTTPNinjaOneClient(),
		HaloPSA:      NewHTTPHaloPSAClient(),
		SentinelOne:  NewHTTPSentinelOneClient(),
		FortiGate:    NewHTTPFortiGateClient(),
	}
}
