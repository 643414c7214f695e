// Package hubspot provides a client for the HubSpot CRM v3 API, covering the
// deal, company and note operations the qualification pipeline needs.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the HubSpot CRM operations.
type Client interface {
	// SearchDeals runs a filtered deal search.
	SearchDeals(ctx context.Context, req *SearchRequest) (*SearchResponse, error)
	// GetDeal fetches a deal with the given properties and its company associations.
	GetDeal(ctx context.Context, dealID string, properties []string) (*Object, error)
	// GetCompany fetches a company record with the given properties.
	GetCompany(ctx context.Context, companyID string, properties []string) (*Object, error)
	// UpdateDeal patches deal properties.
	UpdateDeal(ctx context.Context, dealID string, properties map[string]string) error
	// CreateNote attaches a timestamped note to a deal.
	CreateNote(ctx context.Context, dealID, body string) error
}

// Object is a generic CRM record: a deal or a company.
type Object struct {
	ID           string                   `json:"id"`
	Properties   map[string]string        `json:"properties"`
	Associations map[string]AssociationSet `json:"associations,omitempty"`
}

// Property returns a property value, "" when absent.
func (o *Object) Property(name string) string {
	if o == nil {
		return ""
	}
	return o.Properties[name]
}

// CompanyID returns the first associated company ID, "" when none.
func (o *Object) CompanyID() string {
	if o == nil {
		return ""
	}
	for key, set := range o.Associations {
		if strings.Contains(strings.ToLower(key), "compan") && len(set.Results) > 0 {
			return set.Results[0].ID
		}
	}
	return ""
}

// AssociationSet holds the association results for one object type.
type AssociationSet struct {
	Results []AssociationResult `json:"results"`
}

// AssociationResult is a single associated record reference.
type AssociationResult struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Filter is a single property filter in a search. IN filters carry Values,
// everything else carries Value.
type Filter struct {
	PropertyName string   `json:"propertyName"`
	Operator     string   `json:"operator"`
	Value        string   `json:"value,omitempty"`
	Values       []string `json:"values,omitempty"`
}

// SearchRequest is a deal search: all filters in a group AND together.
type SearchRequest struct {
	Filters    []Filter
	Properties []string
	Limit      int
	After      string
}

// SearchResponse is a page of search results.
type SearchResponse struct {
	Total   int      `json:"total"`
	Results []Object `json:"results"`
	Paging  *Paging  `json:"paging,omitempty"`
}

// Paging carries the cursor for the next page.
type Paging struct {
	Next struct {
		After string `json:"after"`
	} `json:"next"`
}

// Option configures the HubSpot client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a new HubSpot client using a private-app token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: "https://api.hubapi.com",
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, eris.Wrap(err, "hubspot: marshal request")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, eris.Wrap(err, "hubspot: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "hubspot: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "hubspot: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, eris.Errorf("hubspot: %s %s: status %d: %s", method, path, resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *httpClient) SearchDeals(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	payload := map[string]any{
		"filterGroups": []map[string]any{
			{"filters": req.Filters},
		},
		"properties": req.Properties,
		"limit":      limit,
	}
	if req.After != "" {
		payload["after"] = req.After
	}

	body, err := c.do(ctx, http.MethodPost, "/crm/v3/objects/deals/search", payload)
	if err != nil {
		return nil, err
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "hubspot: unmarshal search response")
	}
	return &result, nil
}

func (c *httpClient) getObject(ctx context.Context, objectType, id string, properties []string, associations string) (*Object, error) {
	q := url.Values{}
	if len(properties) > 0 {
		q.Set("properties", strings.Join(properties, ","))
	}
	if associations != "" {
		q.Set("associations", associations)
	}
	path := fmt.Sprintf("/crm/v3/objects/%s/%s", objectType, id)
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var obj Object
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, eris.Wrapf(err, "hubspot: unmarshal %s", objectType)
	}
	return &obj, nil
}

func (c *httpClient) GetDeal(ctx context.Context, dealID string, properties []string) (*Object, error) {
	return c.getObject(ctx, "deals", dealID, properties, "companies")
}

func (c *httpClient) GetCompany(ctx context.Context, companyID string, properties []string) (*Object, error) {
	return c.getObject(ctx, "companies", companyID, properties, "")
}

func (c *httpClient) UpdateDeal(ctx context.Context, dealID string, properties map[string]string) error {
	_, err := c.do(ctx, http.MethodPatch, "/crm/v3/objects/deals/"+dealID, map[string]any{
		"properties": properties,
	})
	return err
}

// noteToDealAssociationTypeID is the HubSpot-defined association between a
// note engagement and a deal.
const noteToDealAssociationTypeID = 214

func (c *httpClient) CreateNote(ctx context.Context, dealID, body string) error {
	payload := map[string]any{
		"properties": map[string]string{
			"hs_note_body": body,
			"hs_timestamp": time.Now().UTC().Format(time.RFC3339),
		},
		"associations": []map[string]any{
			{
				"to": map[string]string{"id": dealID},
				"types": []map[string]any{
					{
						"associationCategory": "HUBSPOT_DEFINED",
						"associationTypeId":   noteToDealAssociationTypeID,
					},
				},
			},
		},
	}
	_, err := c.do(ctx, http.MethodPost, "/crm/v3/objects/notes", payload)
	return err
}
