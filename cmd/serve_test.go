package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growthops/deal-qualifier/internal/ledger"
	"github.com/growthops/deal-qualifier/internal/qualifier"
	"github.com/growthops/deal-qualifier/pkg/hubspot"
	"github.com/growthops/deal-qualifier/pkg/slack"
)

type stubCRM struct {
	mu      sync.Mutex
	deal    *hubspot.Object
	updates []map[string]string
	notes   []string
}

func (s *stubCRM) SearchDeals(context.Context, *hubspot.SearchRequest) (*hubspot.SearchResponse, error) {
	return &hubspot.SearchResponse{}, nil
}

func (s *stubCRM) GetDeal(context.Context, string, []string) (*hubspot.Object, error) {
	return s.deal, nil
}

func (s *stubCRM) GetCompany(context.Context, string, []string) (*hubspot.Object, error) {
	return &hubspot.Object{Properties: map[string]string{}}, nil
}

func (s *stubCRM) UpdateDeal(_ context.Context, _ string, properties map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, properties)
	return nil
}

func (s *stubCRM) CreateNote(_ context.Context, _, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, body)
	return nil
}

func (s *stubCRM) qualifierWrites() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, u := range s.updates {
		if v, ok := u["sql_qualifier"]; ok {
			out = append(out, v)
		}
	}
	return out
}

type stubSlack struct {
	mu       sync.Mutex
	messages []*slack.Message
}

func (s *stubSlack) PostMessage(_ context.Context, msg *slack.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return "1756.0001", nil
}

func (s *stubSlack) Respond(context.Context, string, *slack.Response) error { return nil }

type stubOllama struct{ err error }

func (s *stubOllama) Health(context.Context) error { return s.err }

func (s *stubOllama) Generate(context.Context, string) (string, error) { return "", s.err }

func testQualifier(crm *stubCRM, notifier *stubSlack) *qualifier.Qualifier {
	return qualifier.New(qualifier.Config{
		PipelineID:    "77766861",
		SlackChannel:  "C0TEST",
		DealURLFormat: "https://crm.example.com/%s",
	}, crm, notifier, ledger.NewMemory())
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`[{"objectId":777}]`)

	assert.True(t, verifySignature("s3cret", body, sign("s3cret", body)))
	assert.False(t, verifySignature("s3cret", body, "deadbeef"))
	// No secret configured means verification is skipped.
	assert.True(t, verifySignature("", body, ""))
}

func TestWebhook_InvalidSignatureRejected(t *testing.T) {
	router := newRouter(testQualifier(&stubCRM{}, &stubSlack{}), "s3cret", nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook/hubspot", strings.NewReader(`[]`))
	req.Header.Set("X-HubSpot-Signature-v3", "wrong")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhook_FiltersAndCounts(t *testing.T) {
	crm := &stubCRM{
		deal: &hubspot.Object{
			ID: "777",
			Properties: map[string]string{
				"dealname": "GRIVEL S.R.L.",
				"pipeline": "77766861",
			},
		},
	}
	router := newRouter(testQualifier(crm, &stubSlack{}), "s3cret", nil)

	body := []byte(`[{"subscriptionType":"deal.creation","objectId":777},{"subscriptionType":"contact.creation","objectId":5}]`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/hubspot", strings.NewReader(string(body)))
	req.Header.Set("X-HubSpot-Signature-v3", sign("s3cret", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		DealsReceived int `json:"deals_received"`
		DealsMatching int `json:"deals_matching"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.DealsReceived)
	assert.Equal(t, 1, resp.DealsMatching)
}

func TestWebhook_NonMatchingPipelineSkipped(t *testing.T) {
	crm := &stubCRM{
		deal: &hubspot.Object{
			ID:         "9",
			Properties: map[string]string{"pipeline": "other"},
		},
	}
	router := newRouter(testQualifier(crm, &stubSlack{}), "", nil)

	body := `[{"subscriptionType":"deal.creation","objectId":9}]`
	req := httptest.NewRequest(http.MethodPost, "/webhook/hubspot", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deals_matching":0`)
}

func TestInteractions_QualificationClick(t *testing.T) {
	crm := &stubCRM{}
	notifier := &stubSlack{}
	router := newRouter(testQualifier(crm, notifier), "", nil)

	payload := `{
		"type": "block_actions",
		"user": {"id": "U123", "name": "ada"},
		"channel": {"id": "C0TEST"},
		"message": {"ts": "1756.0001"},
		"actions": [
			{"action_id": "open_hubspot", "value": ""},
			{"action_id": "qualify_sales", "value": "777|sales|GRIVEL S.R.L."}
		]
	}`
	form := url.Values{"payload": {payload}}
	req := httptest.NewRequest(http.MethodPost, "/slack/interactions", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sales"}, crm.qualifierWrites())
	require.Len(t, notifier.messages, 1)
	assert.Equal(t, "1756.0001", notifier.messages[0].ThreadTS)
}

func TestInteractions_NoPayload(t *testing.T) {
	router := newRouter(testQualifier(&stubCRM{}, &stubSlack{}), "", nil)

	req := httptest.NewRequest(http.MethodPost, "/slack/interactions", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	router := newRouter(testQualifier(&stubCRM{}, &stubSlack{}), "", &stubOllama{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rec.Body.String(), `"available":true`)
}

func TestProcessPendingEndpoint(t *testing.T) {
	router := newRouter(testQualifier(&stubCRM{}, &stubSlack{}), "", nil)

	req := httptest.NewRequest(http.MethodGet, "/webhook/process-pending", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deals_processed":0`)
}

func TestParseQualification(t *testing.T) {
	click, ok := parseQualification("777|automated|GRIVEL S.R.L.")
	require.True(t, ok)
	assert.Equal(t, "777", click.DealID)
	assert.Equal(t, "automated", click.Qualification)
	assert.Equal(t, "GRIVEL S.R.L.", click.DealName)

	click, ok = parseQualification("777|sales")
	require.True(t, ok)
	assert.Equal(t, "Unknown", click.DealName)

	_, ok = parseQualification("no-separator")
	assert.False(t, ok)
}
