package vies

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ms/IT/vat/00139110076", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"countryCode": "IT",
			"vatNumber": "00139110076",
			"isValid": true,
			"name": "GRIVEL S.R.L.",
			"address": "FRAZ. ENTREVES 11013 COURMAYEUR AO"
		}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	resp, err := c.Check(context.Background(), "IT", "00139110076")
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Equal(t, "GRIVEL S.R.L.", resp.LegalName())
	assert.Contains(t, resp.Address, "COURMAYEUR")
}

func TestCheck_Invalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"countryCode":"IT","vatNumber":"000","isValid":false,"name":"---","address":"---"}`))
	}))
	defer srv.Close()

	resp, err := NewClient(WithBaseURL(srv.URL)).Check(context.Background(), "IT", "000")
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	assert.Empty(t, resp.LegalName())
}

func TestCheck_RequiresInput(t *testing.T) {
	_, err := NewClient().Check(context.Background(), "", "123")
	assert.Error(t, err)
}

func TestCheck_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Check(context.Background(), "IT", "00139110076")
	assert.Error(t, err)
}
