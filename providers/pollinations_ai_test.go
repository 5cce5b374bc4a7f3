package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"imagestudio/imagehost"
	"imagestudio/types"
)

type fakeHost struct {
	mu        sync.Mutex
	uploadErr error
	uploads   int
	deleted   []string
}

func (f *fakeHost) Upload(_ context.Context, data []byte, filename string) (*imagehost.Hosted, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &imagehost.Hosted{ID: "ref-1", URL: "https://cdn.example/ref-1.png"}, nil
}

func (f *fakeHost) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

// recordedCall captures what the fake Pollinations server received.
type recordedCall struct {
	prompt string
	query  url.Values
	auth   string
}

type fakePollinations struct {
	mu    sync.Mutex
	calls []recordedCall
	// fail decides the status for a call; 0 means success.
	fail func(call recordedCall) int
}

func (f *fakePollinations) handler(w http.ResponseWriter, r *http.Request) {
	prompt, _ := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/prompt/"))
	call := recordedCall{prompt: prompt, query: r.URL.Query(), auth: r.Header.Get("Authorization")}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	status := 0
	if f.fail != nil {
		status = f.fail(call)
	}
	f.mu.Unlock()

	if status != 0 {
		http.Error(w, "upstream failure", status)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write([]byte{0xff, 0xd8, 0xff})
}

func (f *fakePollinations) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func newPollinations(t *testing.T, srv *httptest.Server, host ImageHost) *PollinationsAIProvider {
	t.Helper()
	cfg := DefaultPollinationsConfig()
	cfg.BaseURL = srv.URL
	cfg.MaxAttempts = 1
	cfg.RetryInterval = time.Millisecond
	return NewPollinationsAIProvider(cfg, host, nil, zap.NewNop())
}

const tinyPNG = "data:image/png;base64,iVBORw0KGgo="

func TestPollinations_ImageConditioned(t *testing.T) {
	fake := &fakePollinations{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()
	host := &fakeHost{}

	out, err := newPollinations(t, srv, host).Generate(context.Background(), &Request{
		StyleID: "cartoon-cat", Input: tinyPNG, Model: "kontext", APIKey: "pk",
	})
	require.NoError(t, err)
	assert.False(t, out.Fallback)

	require.Len(t, fake.recorded(), 1)
	call := fake.recorded()[0]
	assert.Equal(t, "Convert this image to a cute cartoon cat style", call.prompt)
	assert.Equal(t, "https://cdn.example/ref-1.png", call.query.Get("image"))
	assert.Equal(t, "kontext", call.query.Get("model"))
	assert.Equal(t, "1024", call.query.Get("width"))
	assert.Equal(t, "1024", call.query.Get("height"))
	for _, flag := range []string{"private", "safe", "nologo", "enhance"} {
		assert.Equal(t, "true", call.query.Get(flag), flag)
	}
	assert.Equal(t, "Bearer pk", call.auth)

	assert.True(t, strings.HasPrefix(out.ImageURL, srv.URL+"/prompt/"))
	assert.NotContains(t, out.ImageURL, "pk")
	assert.Empty(t, host.deleted)
}

func TestPollinations_FallsBackToTextOnly(t *testing.T) {
	fake := &fakePollinations{fail: func(c recordedCall) int {
		if c.query.Get("image") != "" {
			return http.StatusBadGateway
		}
		return 0
	}}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()
	host := &fakeHost{}

	out, err := newPollinations(t, srv, host).Generate(context.Background(), &Request{
		StyleID: "pixel-art", Input: tinyPNG, Model: "flux", APIKey: "pk",
	})
	require.NoError(t, err)
	assert.True(t, out.Fallback)

	require.Len(t, fake.recorded(), 2)
	assert.NotEmpty(t, fake.recorded()[0].query.Get("image"))
	assert.Empty(t, fake.recorded()[1].query.Get("image"))
	assert.Equal(t, "Convert this image to pixel art style", fake.recorded()[1].prompt)
	assert.Equal(t, "flux", fake.recorded()[1].query.Get("model"))
	assert.NotContains(t, out.ImageURL, "image=")

	// the unused reference is cleaned up
	assert.Equal(t, []string{"ref-1"}, host.deleted)
}

func TestPollinations_UploadFailureFallsBack(t *testing.T) {
	fake := &fakePollinations{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	out, err := newPollinations(t, srv, &fakeHost{uploadErr: errors.New("host down")}).Generate(context.Background(), &Request{
		StyleID: "watercolor", Input: tinyPNG, Model: "flux", APIKey: "pk",
	})
	require.NoError(t, err)
	assert.True(t, out.Fallback)
	require.Len(t, fake.recorded(), 1)
	assert.Empty(t, fake.recorded()[0].query.Get("image"))
}

func TestPollinations_NoHostFallsBack(t *testing.T) {
	fake := &fakePollinations{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	out, err := newPollinations(t, srv, nil).Generate(context.Background(), &Request{
		StyleID: "watercolor", Input: tinyPNG, APIKey: "pk",
	})
	require.NoError(t, err)
	assert.True(t, out.Fallback)
	assert.Equal(t, "flux", fake.recorded()[0].query.Get("model"))
}

func TestPollinations_BothCallsFail(t *testing.T) {
	fake := &fakePollinations{fail: func(recordedCall) int { return http.StatusInternalServerError }}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	_, err := newPollinations(t, srv, &fakeHost{}).Generate(context.Background(), &Request{
		StyleID: "pixel-art", Input: tinyPNG, Model: "flux", APIKey: "pk",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Len(t, fake.recorded(), 2)
}

func TestPollinations_TextPrompt(t *testing.T) {
	fake := &fakePollinations{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	out, err := newPollinations(t, srv, &fakeHost{}).Generate(context.Background(), &Request{
		StyleID: "3d-render", Input: "a lighthouse at dusk", Model: "turbo", APIKey: "pk",
	})
	require.NoError(t, err)
	assert.False(t, out.Fallback)
	require.Len(t, fake.recorded(), 1)
	assert.Equal(t, "a lighthouse at dusk, in 3D rendered style", fake.recorded()[0].prompt)
	assert.Equal(t, "turbo", fake.recorded()[0].query.Get("model"))
}

func TestPollinations_HostedURLInput(t *testing.T) {
	fake := &fakePollinations{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()
	host := &fakeHost{}

	_, err := newPollinations(t, srv, host).Generate(context.Background(), &Request{
		StyleID: "pixel-art", Input: "https://example.com/cat.png", APIKey: "pk",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, host.uploads)
	assert.Equal(t, "https://example.com/cat.png", fake.recorded()[0].query.Get("image"))
}

func TestPollinations_RetriesServerErrors(t *testing.T) {
	attempts := 0
	fake := &fakePollinations{fail: func(recordedCall) int {
		attempts++
		if attempts < 3 {
			return http.StatusServiceUnavailable
		}
		return 0
	}}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	p := newPollinations(t, srv, nil)
	p.cfg.MaxAttempts = 4
	_, err := p.Generate(context.Background(), &Request{StyleID: "pixel-art", Input: "robot", APIKey: "pk"})
	require.NoError(t, err)
	assert.Len(t, fake.recorded(), 3)
}

func TestPollinations_DoesNotRetryClientErrors(t *testing.T) {
	fake := &fakePollinations{fail: func(recordedCall) int { return http.StatusUnauthorized }}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	p := newPollinations(t, srv, nil)
	p.cfg.MaxAttempts = 4
	_, err := p.Generate(context.Background(), &Request{StyleID: "pixel-art", Input: "robot", APIKey: "bad"})
	require.Error(t, err)
	assert.Len(t, fake.recorded(), 1)
}

func TestPollinations_RejectsNonImageResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>rate limited</html>"))
	}))
	defer srv.Close()

	_, err := newPollinations(t, srv, nil).Generate(context.Background(), &Request{StyleID: "pixel-art", Input: "robot", APIKey: "pk"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text/html")
}

func TestPollinations_BadDataURL(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newPollinations(t, srv, nil).Generate(context.Background(), &Request{
		StyleID: "pixel-art", Input: "data:image/png;base64,***", APIKey: "pk",
	})
	assert.Equal(t, types.ErrUnsupportedFormat, types.CodeOf(err))
}

func TestPollinations_Models(t *testing.T) {
	p := NewPollinationsAIProvider(DefaultPollinationsConfig(), nil, nil, zap.NewNop())
	models := p.Models()
	require.NotEmpty(t, models)
	assert.Equal(t, "flux", models[0].Name)
	assert.True(t, models[0].Default)
	assert.Equal(t, types.ProviderPollinations, p.ID())
}

func TestPollinations_BuildURLEscapesPrompt(t *testing.T) {
	p := NewPollinationsAIProvider(DefaultPollinationsConfig(), nil, nil, zap.NewNop())
	u := p.BuildURL("cats & dogs / 100%", "", "flux")
	assert.True(t, strings.HasPrefix(u, "https://image.pollinations.ai/prompt/cats%20&%20dogs%20%2F%20100%25?"), u)
}
