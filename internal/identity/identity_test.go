package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuzzyMatchName(t *testing.T) {
	tests := []struct {
		searched string
		found    string
		want     bool
	}{
		{"GRIVEL S.R.L.", "Grivel Srl", true},
		{"GRIVEL S.R.L.", "GRIVEL - S.R.L.", true},
		{"Click cafe Italia srl", "CAMAC ARTI GRAFICHE SRL", false},
		{"Rossi Costruzioni SPA", "ROSSI COSTRUZIONI S.P.A.", true},
		{"Banca di Credito", "Pizzeria da Mario", false},
		{"", "Grivel Srl", false},
		{"Grivel", "", false},
	}
	for _, tt := range tests {
		got := FuzzyMatchName(tt.searched, tt.found, DefaultNameThreshold)
		assert.Equal(t, tt.want, got, "%q vs %q", tt.searched, tt.found)
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "grivel", NormalizeName("GRIVEL S.R.L."))
	assert.Equal(t, "rossi costruzioni", NormalizeName("Rossi  Costruzioni S.p.A."))
	assert.Equal(t, "acme co", NormalizeName("Acme & Co."))
}

func TestNormalizeVAT(t *testing.T) {
	tests := []struct {
		in      string
		country string
		number  string
	}{
		{"00139110076", "IT", "00139110076"},
		{"IT00139110076", "IT", "00139110076"},
		{"it 00139110076", "IT", "00139110076"},
		{"FR45930881560", "FR", "45930881560"},
	}
	for _, tt := range tests {
		country, number := NormalizeVAT(tt.in)
		assert.Equal(t, tt.country, country, "input %q", tt.in)
		assert.Equal(t, tt.number, number, "input %q", tt.in)
	}
}

func TestVATInText(t *testing.T) {
	tests := []struct {
		name string
		text string
		vat  string
		want bool
	}{
		{"bare number", "Codice fiscale 00139110076 iscritta al registro", "IT00139110076", true},
		{"prefixed", "VAT IT00139110076", "00139110076", true},
		{"labelled", "P.IVA: 00139110076", "00139110076", true},
		{"labelled spaced", "Partita IVA 00139110076", "00139110076", true},
		{"absent", "nessun identificativo in pagina", "00139110076", false},
		{"substring of longer number", "matricola 900139110076123", "00139110076", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VATInText(tt.text, tt.vat))
		})
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"GRIVEL S.R.L.", "grivel-srl"},
		{"Caffè Pagani", "caffe-pagani"},
		{"Rossi & Bianchi S.p.A.", "rossi-bianchi-spa"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slug(tt.in), "input %q", tt.in)
	}
}

func TestBaseSlug(t *testing.T) {
	assert.Equal(t, "grivel", BaseSlug("GRIVEL S.R.L."))
	assert.Equal(t, "caffe-pagani", BaseSlug("Caffè Pagani SRL"))
}

func TestPageName(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			"h1 wins",
			`<html><head><title>Registro Imprese</title></head><body><h1>GRIVEL S.R.L.</h1></body></html>`,
			"GRIVEL S.R.L.",
		},
		{
			"title fallback with separator",
			`<html><head><title>GRIVEL SRL | bilanci e fatturato</title></head><body></body></html>`,
			"GRIVEL SRL",
		},
		{
			"meta description fallback",
			`<html><head><title>Home</title><meta name="description" content="CAMAC ARTI GRAFICHE SRL: dati societari"></head><body></body></html>`,
			"CAMAC ARTI GRAFICHE SRL: dati societari",
		},
		{
			"nothing plausible",
			`<html><head><title>404</title></head><body><h1>Oops</h1></body></html>`,
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PageName(tt.html))
		})
	}
}

func TestValidate(t *testing.T) {
	page := `<html><head><title>Grivel Srl - fatturato</title></head>
	<body><h1>Grivel Srl</h1><p>P.IVA: 00139110076, Courmayeur (AO)</p></body></html>`

	ok, note := Validate("GRIVEL S.R.L.", "IT00139110076", page)
	assert.True(t, ok)
	assert.Contains(t, note, "name matched")
	assert.Contains(t, note, "VAT matched")

	ok, note = Validate("Click cafe Italia srl", "09876543210", page)
	assert.False(t, ok)
	assert.Equal(t, "name/VAT not verified", note)
}
