package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customerPage = `<!DOCTYPE html>
<html><head><title>Customers</title></head>
<body>
<nav>Home | Customers | Pricing</nav>
<div class="testimonial-card">
  <p>Acme cut our onboarding time in half. The automation alone saved our ops team ten hours a week.</p>
  <span>Jordan, VP Operations</span>
</div>
<blockquote>We moved from three disconnected systems to one platform and finally have visibility into our sales pipeline.</blockquote>
<div class="pricing">From $49/month</div>
<p>Short.</p>
<footer>Copyright</footer>
</body></html>`

func TestLocalFetch_ExtractsTestimonials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(customerPage))
	}))
	defer srv.Close()

	s := NewLocalScraper(WithMinFragmentLen(40))
	frags, err := s.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Contains(t, frags[0].Text, "onboarding time in half")
	assert.Contains(t, frags[1].Text, "disconnected systems")
	for _, f := range frags {
		assert.Equal(t, "local_http", f.Source)
	}
}

func TestLocalFetch_NoTestimonialsIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>Just a landing page with nothing quotable on it at all.</p></body></html>`))
	}))
	defer srv.Close()

	s := NewLocalScraper()
	_, err := s.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, FailParse, KindOf(err))
}

func TestLocalFetch_ForbiddenIsBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewLocalScraper()
	_, err := s.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, FailBlocked, KindOf(err))
}

func TestLocalFetch_ServerErrorIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewLocalScraper()
	_, err := s.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, FailUnreachable, KindOf(err))
}

func TestLocalFetch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	s := NewLocalScraper()
	_, err := s.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, FailUnreachable, KindOf(err))
}

func TestDetectBlock_Captcha(t *testing.T) {
	resp := &http.Response{StatusCode: 200, Header: http.Header{}}
	blocked, kind := DetectBlock(resp, []byte(`<html>please complete the reCAPTCHA to continue</html>`))
	assert.True(t, blocked)
	assert.Equal(t, "captcha", kind)
}

func TestDetectBlock_CloudflareHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("cf-ray", "8a7b")
	resp := &http.Response{StatusCode: 403, Header: h}
	blocked, kind := DetectBlock(resp, nil)
	assert.True(t, blocked)
	assert.Equal(t, "cloudflare", kind)
}

func TestDetectBlock_CleanPage(t *testing.T) {
	resp := &http.Response{StatusCode: 200, Header: http.Header{}}
	blocked, _ := DetectBlock(resp, []byte(customerPage))
	assert.False(t, blocked)
}

func TestKindOf_Untyped(t *testing.T) {
	assert.Equal(t, FailUnreachable, KindOf(errors.New("boom")))
	assert.Equal(t, FailTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, FailBlocked, KindOf(failErr(FailBlocked, "u", nil)))
}
