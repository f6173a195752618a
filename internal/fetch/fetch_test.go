package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestURL_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body><h1>Team</h1></body></html>"))
	}))
	defer server.Close()

	result, err := URL(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, server.URL, result.URL)
	assert.Contains(t, result.HTML, "<h1>Team</h1>")
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestURL_InvalidURL(t *testing.T) {
	_, err := URL(context.Background(), "not-a-valid-url", nil)
	require.Error(t, err)

	var fetchErr *Error
	assert.ErrorAs(t, err, &fetchErr)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "invalid URL")
	assert.False(t, IsRetryable(err))
}

func TestURL_HTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			result, err := URL(context.Background(), server.URL, nil)
			require.Error(t, err)
			assert.NotNil(t, result)
			assert.Equal(t, tt.status, result.StatusCode)

			var fetchErr *Error
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, tt.status, fetchErr.StatusCode)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestExtractText_KeepsFooterAndMailto(t *testing.T) {
	html := `
	<html>
		<head><style>.x{}</style></head>
		<body>
			<nav>Home</nav>
			<main>
				<h1>Our Team</h1>
				<p>Nik Storonsky, Founder &amp; CEO</p>
				<p>Vlad Yatsenko, Co-founder &amp; CTO</p>
			</main>
			<script>var tracking = "x@y.com";</script>
			<footer>Contact <a href="mailto:press@revolut.com?subject=hi">us</a></footer>
		</body>
	</html>`

	text, err := ExtractText(html)
	require.NoError(t, err)
	assert.Contains(t, text, "Nik Storonsky, Founder & CEO")
	assert.Contains(t, text, "Vlad Yatsenko, Co-founder & CTO")
	assert.Contains(t, text, "Contact")
	assert.Contains(t, text, "press@revolut.com")
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "subject=hi")
}

func TestExtractText_SeparatesBlocks(t *testing.T) {
	html := `<html><body><div>Bret Taylor</div><div>Clay Bavor</div></body></html>`
	text, err := ExtractText(html)
	require.NoError(t, err)
	assert.NotContains(t, text, "TaylorClay")
	assert.Contains(t, text, "Bret Taylor")
	assert.Contains(t, text, "Clay Bavor")
}

func TestCleanWhitespace(t *testing.T) {
	input := "  Line 1  \n\n\n   Line   2   \n  \n  Line 3  "
	assert.Equal(t, "Line 1\nLine 2\nLine 3", cleanWhitespace(input))
}

func TestNeedsRender(t *testing.T) {
	assert.True(t, NeedsRender("short"))
	assert.True(t, NeedsRender("   "))
	assert.False(t, NeedsRender(strings.Repeat("a", MinContentLength)))
}

func TestPageFetcher_RetriesOnce(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("<html><body><p>Meet Nick Gross, Founder</p></body></html>"))
	}))
	defer server.Close()

	f := NewPageFetcher(WithSleeper(noSleep))
	text, err := f.FetchText(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "Nick Gross")
	assert.Equal(t, int32(2), hits.Load())
}

func TestPageFetcher_GivesUpAfterSecondFailure(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := NewPageFetcher(WithSleeper(noSleep))
	_, err := f.FetchText(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, int32(2), hits.Load())
}

func TestPageFetcher_NotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewPageFetcher(WithSleeper(noSleep))
	_, err := f.FetchText(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, int32(1), hits.Load())
}

type fakeRenderer struct {
	html  string
	err   error
	calls int
}

func (r *fakeRenderer) Render(context.Context, string) (string, error) {
	r.calls++
	return r.html, r.err
}

func TestPageFetcher_RendersThinPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div id="root"></div>Loading</body></html>`))
	}))
	defer server.Close()

	renderer := &fakeRenderer{html: "<html><body><p>Founders: Bret Taylor and Clay Bavor</p></body></html>"}
	f := NewPageFetcher(WithRenderer(renderer), WithSleeper(noSleep))

	text, err := f.FetchText(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, renderer.calls)
	assert.Contains(t, text, "Bret Taylor")
}

func TestPageFetcher_RenderFailureKeepsHTTPText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>Loading team</body></html>`))
	}))
	defer server.Close()

	renderer := &fakeRenderer{err: errors.New("chrome not installed")}
	f := NewPageFetcher(WithRenderer(renderer), WithSleeper(noSleep))

	text, err := f.FetchText(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Loading team", text)
}

func TestPageFetcher_RichPageSkipsRenderer(t *testing.T) {
	body := "<html><body><p>" + strings.Repeat("Founded by Nik Storonsky. ", 40) + "</p></body></html>"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	renderer := &fakeRenderer{}
	f := NewPageFetcher(WithRenderer(renderer))
	_, err := f.FetchText(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 0, renderer.calls)
}
