package qualifier

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growthops/deal-qualifier/internal/ledger"
	"github.com/growthops/deal-qualifier/pkg/hubspot"
	"github.com/growthops/deal-qualifier/pkg/slack"
)

type fakeCRM struct {
	deal       *hubspot.Object
	company    *hubspot.Object
	search     *hubspot.SearchResponse
	updates    []map[string]string
	notes      []string
	updateErr  error
	getDealErr error
}

func (f *fakeCRM) SearchDeals(context.Context, *hubspot.SearchRequest) (*hubspot.SearchResponse, error) {
	if f.search == nil {
		return &hubspot.SearchResponse{}, nil
	}
	return f.search, nil
}

func (f *fakeCRM) GetDeal(context.Context, string, []string) (*hubspot.Object, error) {
	if f.getDealErr != nil {
		return nil, f.getDealErr
	}
	return f.deal, nil
}

func (f *fakeCRM) GetCompany(context.Context, string, []string) (*hubspot.Object, error) {
	if f.company == nil {
		return nil, eris.New("hubspot: no company")
	}
	return f.company, nil
}

func (f *fakeCRM) UpdateDeal(_ context.Context, _ string, properties map[string]string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, properties)
	return nil
}

func (f *fakeCRM) CreateNote(_ context.Context, _, body string) error {
	f.notes = append(f.notes, body)
	return nil
}

// statusWrites extracts the sequence of status property values written.
func (f *fakeCRM) statusWrites() []string {
	var out []string
	for _, u := range f.updates {
		if v, ok := u[statusProperty]; ok {
			out = append(out, v)
		}
	}
	return out
}

type fakeSlack struct {
	messages []*slack.Message
	err      error
}

func (f *fakeSlack) PostMessage(_ context.Context, msg *slack.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.messages = append(f.messages, msg)
	return "1756.0001", nil
}

func (f *fakeSlack) Respond(context.Context, string, *slack.Response) error {
	return nil
}

func sampleDeal() *hubspot.Object {
	return &hubspot.Object{
		ID: "777",
		Properties: map[string]string{
			"dealname":            "GRIVEL S.R.L.",
			"pipeline":            "77766861",
			"generic_source":      "Marketing - Interactions & Inbound requests",
			"iva_vat":             "IT00139110076",
			"company_domain_name": "grivel.com",
			"store_type":          "E-commerce",
			"category":            "Sport",
		},
		Associations: map[string]hubspot.AssociationSet{
			"companies": {Results: []hubspot.AssociationResult{{ID: "c1"}}},
		},
	}
}

func testConfig() Config {
	return Config{
		PipelineID:    "77766861",
		Source:        "Marketing - Interactions & Inbound requests",
		SlackChannel:  "C0TEST",
		DealURLFormat: "https://crm.example.com/%s",
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]string
		want  bool
	}{
		{
			name: "pipeline and source match",
			props: map[string]string{
				"pipeline":       "77766861",
				"generic_source": "Marketing - Interactions & Inbound requests",
			},
			want: true,
		},
		{
			name: "wrong pipeline",
			props: map[string]string{
				"pipeline":       "123",
				"generic_source": "Marketing - Interactions & Inbound requests",
			},
			want: false,
		},
		{
			name: "wrong source",
			props: map[string]string{
				"pipeline":       "77766861",
				"generic_source": "Outbound",
			},
			want: false,
		},
		{
			name: "already done",
			props: map[string]string{
				"pipeline":             "77766861",
				"generic_source":       "Marketing - Interactions & Inbound requests",
				"sql_qualifier_status": "done",
			},
			want: false,
		},
		{
			name: "in progress elsewhere",
			props: map[string]string{
				"pipeline":             "77766861",
				"generic_source":       "Marketing - Interactions & Inbound requests",
				"sql_qualifier_status": "in_progress",
			},
			want: false,
		},
		{
			name: "failed is retryable",
			props: map[string]string{
				"pipeline":             "77766861",
				"generic_source":       "Marketing - Interactions & Inbound requests",
				"sql_qualifier_status": "failed",
			},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crm := &fakeCRM{deal: &hubspot.Object{ID: "1", Properties: tt.props}}
			q := New(testConfig(), crm, &fakeSlack{}, ledger.NewMemory())

			got, err := q.Matches(context.Background(), "1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDealContext_CompanyFallback(t *testing.T) {
	crm := &fakeCRM{
		deal: &hubspot.Object{
			ID: "777",
			Properties: map[string]string{
				"dealname": "GRIVEL S.R.L.",
				"iva_vat":  "IT00139110076",
			},
			Associations: map[string]hubspot.AssociationSet{
				"companies": {Results: []hubspot.AssociationResult{{ID: "c1"}}},
			},
		},
		company: &hubspot.Object{
			ID: "c1",
			Properties: map[string]string{
				"name":    "Grivel Srl",
				"website": "https://grivel.com",
				"country": "Italy",
			},
		},
	}
	q := New(testConfig(), crm, &fakeSlack{}, ledger.NewMemory())

	deal, err := q.DealContext(context.Background(), "777")
	require.NoError(t, err)
	assert.Equal(t, "GRIVEL S.R.L.", deal.DealName)
	assert.Equal(t, "Grivel Srl", deal.CompanyName)
	// The deal carried no domain, so the company website fills in.
	assert.Equal(t, "https://grivel.com", deal.Domain)
	assert.Equal(t, "Italy", deal.Country)
}

func TestDealContext_PhysicalStoreCategory(t *testing.T) {
	crm := &fakeCRM{
		deal: &hubspot.Object{
			ID: "5",
			Properties: map[string]string{
				"dealname":         "Bottega",
				"store_type":       "Physical Store",
				"category":         "Online Fashion",
				"instore_category": "Boutique",
			},
		},
	}
	q := New(testConfig(), crm, &fakeSlack{}, ledger.NewMemory())

	deal, err := q.DealContext(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, "Boutique", deal.Category)
}

func TestProcess_ClaimsAndCompletes(t *testing.T) {
	crm := &fakeCRM{deal: sampleDeal()}
	notifier := &fakeSlack{}
	led := ledger.NewMemory()
	q := New(testConfig(), crm, notifier, led)

	require.NoError(t, q.Process(context.Background(), "777"))

	require.Len(t, notifier.messages, 1)
	assert.Equal(t, "C0TEST", notifier.messages[0].Channel)
	assert.Contains(t, notifier.messages[0].Text, "GRIVEL S.R.L.")
	assert.NotEmpty(t, notifier.messages[0].Blocks)

	assert.Equal(t, []string{"in_progress", "done"}, crm.statusWrites())

	done, err := led.Done(context.Background(), "777")
	require.NoError(t, err)
	assert.True(t, done)

	// The analysis summary went back to the CRM.
	var found bool
	for _, u := range crm.updates {
		if _, ok := u[reportProperty]; ok {
			found = true
		}
	}
	assert.True(t, found, "report property write-back missing")
}

func TestProcess_DuplicateClaimSkips(t *testing.T) {
	crm := &fakeCRM{deal: sampleDeal()}
	notifier := &fakeSlack{}
	led := ledger.NewMemory()
	_, err := led.TryClaim(context.Background(), "777")
	require.NoError(t, err)

	q := New(testConfig(), crm, notifier, led)
	require.NoError(t, q.Process(context.Background(), "777"))

	assert.Empty(t, notifier.messages)
	assert.Empty(t, crm.updates)
}

func TestProcess_SlackFailureReleasesClaim(t *testing.T) {
	crm := &fakeCRM{deal: sampleDeal()}
	notifier := &fakeSlack{err: eris.New("slack: postMessage failed: channel_not_found")}
	led := ledger.NewMemory()
	q := New(testConfig(), crm, notifier, led)

	err := q.Process(context.Background(), "777")
	require.Error(t, err)

	assert.Equal(t, []string{"in_progress", "failed"}, crm.statusWrites())

	// The claim is released so the pending sweep can retry.
	claimed, err := led.TryClaim(context.Background(), "777")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestProcessPending(t *testing.T) {
	crm := &fakeCRM{
		deal: sampleDeal(),
		search: &hubspot.SearchResponse{
			Total: 2,
			Results: []hubspot.Object{
				{ID: "777", Properties: map[string]string{"dealname": "A", statusProperty: "to_start"}},
				{ID: "888", Properties: map[string]string{"dealname": "B", statusProperty: "failed"}},
			},
		},
	}
	notifier := &fakeSlack{}
	q := New(testConfig(), crm, notifier, ledger.NewMemory())

	n, err := q.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, notifier.messages, 2)
}

func TestHandleQualification(t *testing.T) {
	crm := &fakeCRM{}
	notifier := &fakeSlack{}
	q := New(testConfig(), crm, notifier, ledger.NewMemory())

	err := q.HandleQualification(context.Background(), Qualification{
		DealID:        "777",
		DealName:      "GRIVEL S.R.L.",
		Qualification: "sales",
		UserID:        "U123",
		UserName:      "ada",
		ChannelID:     "C0TEST",
		MessageTS:     "1756.0001",
	})
	require.NoError(t, err)

	require.Len(t, crm.updates, 1)
	assert.Equal(t, "sales", crm.updates[0][qualifierProperty])
	require.Len(t, crm.notes, 1)
	assert.Contains(t, crm.notes[0], "ada qualified GRIVEL S.R.L. as sales")

	require.Len(t, notifier.messages, 1)
	assert.Equal(t, "1756.0001", notifier.messages[0].ThreadTS)
	assert.Contains(t, notifier.messages[0].Text, "qualified as *sales*")
}

func TestHandleQualification_CRMFailureStillNotifies(t *testing.T) {
	crm := &fakeCRM{updateErr: eris.New("hubspot: status 500")}
	notifier := &fakeSlack{}
	q := New(testConfig(), crm, notifier, ledger.NewMemory())

	err := q.HandleQualification(context.Background(), Qualification{
		DealID: "777", DealName: "Shop", Qualification: "automated",
		ChannelID: "C0TEST", MessageTS: "1756.0001",
	})
	require.Error(t, err)

	assert.Empty(t, crm.notes)
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0].Text, "CRM update failed")
}
