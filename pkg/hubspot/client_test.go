package hubspot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchDeals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/objects/deals/search", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Contains(t, payload, "filterGroups")

		_, _ = w.Write([]byte(`{
			"total": 1,
			"results": [{"id": "123", "properties": {"dealname": "GRIVEL - new deal"}}]
		}`))
	}))
	defer srv.Close()

	c := NewClient("test-token", WithBaseURL(srv.URL))
	resp, err := c.SearchDeals(context.Background(), &SearchRequest{
		Filters: []Filter{
			{PropertyName: "pipeline", Operator: "EQ", Value: "default"},
		},
		Properties: []string{"dealname"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "123", resp.Results[0].ID)
	assert.Equal(t, "GRIVEL - new deal", resp.Results[0].Property("dealname"))
}

func TestGetDeal_CompanyAssociation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/objects/deals/123", r.URL.Path)
		assert.Equal(t, "companies", r.URL.Query().Get("associations"))
		_, _ = w.Write([]byte(`{
			"id": "123",
			"properties": {"dealname": "test"},
			"associations": {
				"companies": {"results": [{"id": "456", "type": "deal_to_company"}]}
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient("tok", WithBaseURL(srv.URL))
	deal, err := c.GetDeal(context.Background(), "123", []string{"dealname"})
	require.NoError(t, err)
	assert.Equal(t, "456", deal.CompanyID())
}

func TestUpdateDeal(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"id":"123"}`))
	}))
	defer srv.Close()

	c := NewClient("tok", WithBaseURL(srv.URL))
	err := c.UpdateDeal(context.Background(), "123", map[string]string{
		"qualification_status": "done",
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/crm/v3/objects/deals/123", gotPath)
	assert.Equal(t, "done", gotBody["properties"]["qualification_status"])
}

func TestCreateNote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/objects/notes", r.URL.Path)
		var payload struct {
			Properties   map[string]string `json:"properties"`
			Associations []struct {
				To map[string]string `json:"to"`
			} `json:"associations"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "enrichment summary", payload.Properties["hs_note_body"])
		require.Len(t, payload.Associations, 1)
		assert.Equal(t, "123", payload.Associations[0].To["id"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"n1"}`))
	}))
	defer srv.Close()

	c := NewClient("tok", WithBaseURL(srv.URL))
	assert.NoError(t, c.CreateNote(context.Background(), "123", "enrichment summary"))
}

func TestErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid token"}`))
	}))
	defer srv.Close()

	_, err := NewClient("bad", WithBaseURL(srv.URL)).GetDeal(context.Background(), "1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
