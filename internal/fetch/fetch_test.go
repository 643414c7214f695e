package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	html string
	err  error
	hits int
}

func (f *fakeRenderer) Render(_ context.Context, _ string) (string, error) {
	f.hits++
	return f.html, f.err
}

func TestGet_SendsBrowserHeaders(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		_, _ = w.Write([]byte("<html><body>ok page content</body></html>"))
	}))
	defer srv.Close()

	res, err := New().Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.False(t, res.Blocked)
	assert.Contains(t, gotUA, "Chrome")
	assert.Contains(t, gotLang, "it-IT")
}

func TestGet_DetectsForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	res, err := New().Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, res.Blocked)
	assert.Equal(t, BlockForbidden, res.BlockType)
}

func TestHTML_FallsBackToBrowserOnBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	r := &fakeRenderer{html: "<html><body>rendered by browser</body></html>"}
	res, err := New(WithRenderer(r)).HTML(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, r.hits)
	assert.Equal(t, "browser", res.Method)
	assert.Contains(t, res.Body, "rendered by browser")
}

func TestHTML_NoFallbackWhenOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>plain page</body></html>"))
	}))
	defer srv.Close()

	r := &fakeRenderer{html: "should not be used"}
	res, err := New(WithRenderer(r)).HTML(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Zero(t, r.hits)
	assert.Equal(t, "http", res.Method)
}

func TestHTML_ErrorsWithoutRenderer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New().HTML(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		headers   map[string]string
		body      string
		blocked   bool
		blockType BlockType
	}{
		{
			name:      "cloudflare 403 with cf-ray",
			status:    403,
			headers:   map[string]string{"cf-ray": "abc123"},
			blocked:   true,
			blockType: BlockCloudflare,
		},
		{
			name:      "plain 403",
			status:    403,
			blocked:   true,
			blockType: BlockForbidden,
		},
		{
			name:      "challenge page body",
			status:    200,
			body:      "<html>Checking your browser before accessing...</html>",
			blocked:   true,
			blockType: BlockCloudflare,
		},
		{
			name:      "captcha body",
			status:    200,
			body:      "<html><div class=\"g-recaptcha\"></div></html>",
			blocked:   true,
			blockType: BlockCaptcha,
		},
		{
			name:      "js shell",
			status:    200,
			body:      "<html><noscript>Enable JavaScript to continue</noscript></html>",
			blocked:   true,
			blockType: BlockJSShell,
		},
		{
			name:   "normal page",
			status: 200,
			body:   strings.Repeat("<p>dati societari e bilanci</p>", 100),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: http.Header{}}
			for k, v := range tt.headers {
				resp.Header.Set(k, v)
			}
			blocked, blockType := DetectBlock(resp, []byte(tt.body))
			assert.Equal(t, tt.blocked, blocked)
			assert.Equal(t, tt.blockType, blockType)
		})
	}
}

func TestText(t *testing.T) {
	html := `<html><head><title>GRIVEL SRL</title><script>var x=1;</script></head>
	<body><nav>menu</nav><h1>GRIVEL S.R.L.</h1>
	<p>Fatturato 2023: € 3.815.456</p><footer>privacy</footer></body></html>`

	text := Text(html, 0)
	assert.Contains(t, text, "GRIVEL S.R.L.")
	assert.Contains(t, text, "3.815.456")
	assert.NotContains(t, text, "var x=1")
	assert.NotContains(t, text, "menu")
	assert.NotContains(t, text, "privacy")
}

func TestText_Cap(t *testing.T) {
	html := "<html><body>" + strings.Repeat("a", 10_000) + "</body></html>"
	assert.Len(t, Text(html, 6000), 6000)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "GRIVEL SRL", Title("<html><head><title> GRIVEL SRL </title></head></html>"))
	assert.Empty(t, Title("<html><body>no title</body></html>"))
}
