package fetcher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"company_spider/internal/proxy"
)

func newTestFetcher(t *testing.T, opts Options) *Fetcher {
	t.Helper()
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "company-spider-test"
	}
	f, err := New(opts, zerolog.Nop())
	require.NoError(t, err)
	return f
}

func TestGetReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body>Шины</body></html>")
	}))
	defer srv.Close()

	page, err := newTestFetcher(t, Options{}).Get(context.Background(), srv.URL+"/companies/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", page.ContentType)
	assert.Contains(t, string(page.Body), "Шины")
}

func TestGetFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/error":
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/banned":
			http.Error(w, "banned", http.StatusForbidden)
		case "/empty":
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t, Options{})

	_, err := f.Get(context.Background(), srv.URL+"/error")
	assert.Error(t, err)

	_, err = f.Get(context.Background(), srv.URL+"/banned")
	assert.Error(t, err)

	_, err = f.Get(context.Background(), srv.URL+"/empty")
	assert.True(t, errors.Is(err, ErrEmptyBody), "got %v", err)

	_, err = f.Get(context.Background(), "http://127.0.0.1:1/unreachable")
	assert.Error(t, err)
}

func TestGetCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(t, Options{}).Get(ctx, "http://127.0.0.1:1/")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetThroughProxy(t *testing.T) {
	var proxyAuth, requestedURL atomic.Value
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyAuth.Store(r.Header.Get("Proxy-Authorization"))
		requestedURL.Store(r.URL.String())
		fmt.Fprint(w, "proxied page")
	}))
	defer proxySrv.Close()

	proxyAddr, err := url.Parse(proxySrv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(proxyAddr.Port())
	require.NoError(t, err)

	f := newTestFetcher(t, Options{Credentials: proxy.Credentials{
		Username:  "acc",
		Password:  "pw",
		Countries: []string{"kz"},
		Host:      proxyAddr.Hostname(),
		Port:      port,
	}})

	page, err := f.Get(context.Background(), "http://flagma.test/companies/metally/")
	require.NoError(t, err)
	assert.Equal(t, "proxied page", string(page.Body))
	assert.Equal(t, "http://flagma.test/companies/metally/", requestedURL.Load())

	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("acc__cr.kz:pw"))
	assert.Equal(t, wantAuth, proxyAuth.Load())
}

func TestNewRejectsIncompleteProxy(t *testing.T) {
	_, err := New(Options{Credentials: proxy.Credentials{Username: "acc"}}, zerolog.Nop())
	assert.ErrorIs(t, err, proxy.ErrIncompleteCredentials)
}

func TestRotateIdentityOpensNewConnection(t *testing.T) {
	var newConns int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			atomic.AddInt32(&newConns, 1)
		}
	}
	srv.Start()
	defer srv.Close()

	f := newTestFetcher(t, Options{})

	_, err := f.Get(context.Background(), srv.URL+"/a")
	require.NoError(t, err)

	f.RotateIdentity()
	assert.Equal(t, 1, f.Identity())

	_, err = f.Get(context.Background(), srv.URL+"/b")
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&newConns))
}

func TestRespectRobots(t *testing.T) {
	var robotsHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			atomic.AddInt32(&robotsHits, 1)
			fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
			return
		}
		fmt.Fprint(w, "page")
	}))
	defer srv.Close()

	f := newTestFetcher(t, Options{RespectRobots: true})

	_, err := f.Get(context.Background(), srv.URL+"/private/page-1/")
	assert.True(t, errors.Is(err, ErrDisallowedByRobots), "got %v", err)

	page, err := f.Get(context.Background(), srv.URL+"/companies/")
	require.NoError(t, err)
	assert.Equal(t, "page", string(page.Body))

	assert.Equal(t, int32(1), atomic.LoadInt32(&robotsHits))
}

func TestUserAgent(t *testing.T) {
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.Header.Get("User-Agent"))
		fmt.Fprint(w, "page")
	}))
	defer srv.Close()

	configured := newTestFetcher(t, Options{UserAgent: "flagma-bot/1.0"})
	for i := 0; i < 3; i++ {
		_, err := configured.Get(context.Background(), srv.URL+"/companies/")
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"flagma-bot/1.0", "flagma-bot/1.0", "flagma-bot/1.0"}, agents)

	agents = nil
	random, err := New(Options{Timeout: 5 * time.Second}, zerolog.Nop())
	require.NoError(t, err)
	_, err = random.Get(context.Background(), srv.URL+"/companies/")
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Contains(t, agents[0], "Mozilla")
}

func TestRespectRobotsMatchesSentAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: flagma-bot\nDisallow: /companies/\n\nUser-agent: *\nDisallow:\n")
			return
		}
		fmt.Fprint(w, "page")
	}))
	defer srv.Close()

	named := newTestFetcher(t, Options{UserAgent: "flagma-bot/1.0", RespectRobots: true})
	_, err := named.Get(context.Background(), srv.URL+"/companies/")
	assert.ErrorIs(t, err, ErrDisallowedByRobots)

	random, err := New(Options{Timeout: 5 * time.Second, RespectRobots: true}, zerolog.Nop())
	require.NoError(t, err)
	page, err := random.Get(context.Background(), srv.URL+"/companies/")
	require.NoError(t, err)
	assert.Equal(t, "page", string(page.Body))
}
