package similarweb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitsRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/website/grivel.com/total-traffic-and-engagement/visits", r.URL.Path)
		assert.Equal(t, "it", r.URL.Query().Get("country"))
		assert.Equal(t, "2025-07-01", r.URL.Query().Get("start_date"))
		_, _ = w.Write([]byte(`{
			"meta": {"status": "Success"},
			"visits": [
				{"date": "2025-07-01", "visits": 80000},
				{"date": "2025-08-01", "visits": 100000}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient("key", WithBaseURL(srv.URL))
	resp, err := c.VisitsRange(context.Background(), "grivel.com", "it", "2025-07-01", "2025-08-31")
	require.NoError(t, err)
	assert.InDelta(t, 180000, resp.Total(), 0.1)
	assert.InDelta(t, 90000, resp.MonthlyAverage(), 0.1)
	assert.InDelta(t, 100000, resp.Latest(), 0.1)
}

func TestVisitsRange_Worldwide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasCountry := r.URL.Query()["country"]
		assert.False(t, hasCountry)
		_, _ = w.Write([]byte(`{"meta":{"status":"Success"},"visits":[]}`))
	}))
	defer srv.Close()

	resp, err := NewClient("key", WithBaseURL(srv.URL)).VisitsRange(context.Background(), "grivel.com", "", "2025-07-01", "2025-08-31")
	require.NoError(t, err)
	assert.Zero(t, resp.Latest())
	assert.Zero(t, resp.MonthlyAverage())
}

func TestGeneralData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/website/grivel.com/general-data/all", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"category": "Sports/Outdoors",
			"engagments": {"visits": 120000, "time_on_site": 185.2, "pages_per_visit": 3.4, "bounce_rate": 0.41},
			"traffic_sources": {"search": 0.55, "direct": 0.30},
			"top_country_shares": [{"country": "IT", "share": 0.7}]
		}`))
	}))
	defer srv.Close()

	overview, err := NewClient("key", WithBaseURL(srv.URL)).GeneralData(context.Background(), "grivel.com")
	require.NoError(t, err)
	assert.Equal(t, "Sports/Outdoors", overview.Category)
	assert.InDelta(t, 185.2, overview.Engagements.TimeOnSite, 0.001)
	assert.InDelta(t, 0.55, overview.TrafficSources["search"], 0.001)
	require.Len(t, overview.TopCountryShares, 1)
	assert.Equal(t, "IT", overview.TopCountryShares[0].Country)
}

func TestSimilarSites(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/website/grivel.com/similar-sites/similarsites", r.URL.Path)
		_, _ = w.Write([]byte(`{"similar_sites": [{"url": "petzl.com", "score": 0.95}, {"url": "camp.it", "score": 0.91}]}`))
	}))
	defer srv.Close()

	sites, err := NewClient("key", WithBaseURL(srv.URL)).SimilarSites(context.Background(), "grivel.com")
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "petzl.com", sites[0].URL)
	assert.InDelta(t, 0.91, sites[1].Score, 0.001)
}

func TestVisits_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"meta":{"status":"Error"}}`))
	}))
	defer srv.Close()

	_, err := NewClient("bad", WithBaseURL(srv.URL)).Visits(context.Background(), "grivel.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
