// Package fetcher downloads pages through a rotating proxy gateway.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly"
	"github.com/gocolly/colly/extensions"
	"github.com/rs/zerolog"
	"github.com/temoto/robotstxt"

	"company_spider/internal/proxy"
)

var (
	ErrEmptyBody          = errors.New("empty response body")
	ErrDisallowedByRobots = errors.New("disallowed by robots.txt")
)

const (
	ctxBody        = "body"
	ctxContentType = "content_type"
	ctxStatus      = "status"
)

type Options struct {
	Credentials   proxy.Credentials
	Timeout       time.Duration
	UserAgent     string
	RespectRobots bool
}

type Page struct {
	URL         string
	StatusCode  int
	ContentType string
	// Body is UTF-8; colly converts declared charsets on the way in.
	Body []byte
}

// Fetcher is a sequential HTTP client whose outbound identity can be rotated
// between requests. It is not safe for concurrent use.
type Fetcher struct {
	collector *colly.Collector
	transport *http.Transport
	proxyURL  *url.URL
	timeout   time.Duration
	userAgent string
	log       zerolog.Logger

	identity int

	respectRobots bool
	robots        map[string]*robotstxt.Group
}

func New(opts Options, log zerolog.Logger) (*Fetcher, error) {
	f := &Fetcher{
		timeout:       opts.Timeout,
		userAgent:     opts.UserAgent,
		log:           log,
		respectRobots: opts.RespectRobots,
		robots:        make(map[string]*robotstxt.Group),
	}

	if opts.Credentials.Enabled() {
		proxyURL, err := opts.Credentials.URL()
		if err != nil {
			return nil, fmt.Errorf("proxy: %w", err)
		}
		f.proxyURL = proxyURL
		log.Info().Str("proxy", opts.Credentials.Redacted()).Msg("Using rotating proxy.")
	} else {
		log.Warn().Msg("No proxy credentials configured, requests go out directly.")
	}

	c := colly.NewCollector(colly.AllowURLRevisit())
	if opts.Timeout > 0 {
		c.SetRequestTimeout(opts.Timeout)
	}
	if opts.UserAgent != "" {
		c.UserAgent = opts.UserAgent
	} else {
		extensions.RandomUserAgent(c)
	}

	c.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxBody, string(r.Body))
		r.Ctx.Put(ctxContentType, r.Headers.Get("Content-Type"))
		r.Ctx.Put(ctxStatus, strconv.Itoa(r.StatusCode))
	})

	f.collector = c
	f.transport = f.newTransport()
	c.WithTransport(f.transport)

	return f, nil
}

func (f *Fetcher) newTransport() *http.Transport {
	t := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   f.timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if f.proxyURL != nil {
		t.Proxy = http.ProxyURL(f.proxyURL)
	}
	return t
}

// RotateIdentity drops every pooled connection so the gateway hands out a new
// exit address on the next request. The user agent is re-randomised per request.
func (f *Fetcher) RotateIdentity() {
	old := f.transport
	f.transport = f.newTransport()
	f.collector.WithTransport(f.transport)
	old.CloseIdleConnections()

	f.identity++
	f.log.Debug().Int("identity", f.identity).Msg("Rotated network identity.")
}

// Identity is the number of rotations performed so far.
func (f *Fetcher) Identity() int {
	return f.identity
}

// Get downloads a page. Transport errors, non-2xx responses and empty bodies
// are all reported as errors.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if f.respectRobots {
		if err := f.checkRobots(ctx, rawURL); err != nil {
			return nil, err
		}
	}

	reqCtx := colly.NewContext()
	if err := f.collector.Request(http.MethodGet, rawURL, nil, reqCtx, nil); err != nil {
		f.log.Error().Err(err).Str("url", rawURL).Int("identity", f.identity).Msg("Request failed.")
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}

	body := reqCtx.Get(ctxBody)
	if body == "" {
		return nil, fmt.Errorf("get %s: %w", rawURL, ErrEmptyBody)
	}

	status, _ := strconv.Atoi(reqCtx.Get(ctxStatus))
	return &Page{
		URL:         rawURL,
		StatusCode:  status,
		ContentType: reqCtx.Get(ctxContentType),
		Body:        []byte(body),
	}, nil
}

func (f *Fetcher) checkRobots(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	group, ok := f.robots[u.Host]
	if !ok {
		group = f.loadRobots(ctx, u)
		f.robots[u.Host] = group
	}
	if group != nil && !group.Test(u.EscapedPath()) {
		return fmt.Errorf("get %s: %w", rawURL, ErrDisallowedByRobots)
	}
	return nil
}

// loadRobots returns nil when robots.txt can't be read; that host is then
// treated as fully allowed.
func (f *Fetcher) loadRobots(ctx context.Context, u *url.URL) *robotstxt.Group {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	client := &http.Client{Transport: f.transport, Timeout: f.timeout}
	resp, err := client.Do(req)
	if err != nil {
		f.log.Warn().Err(err).Str("url", robotsURL).Msg("Can't load robots.txt, ignoring.")
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		f.log.Warn().Err(err).Str("url", robotsURL).Msg("Can't parse robots.txt, ignoring.")
		return nil
	}
	f.log.Info().Str("host", u.Host).Msg("robots.txt loaded.")
	return data.FindGroup(f.robotsAgent())
}

// robotsAgent is the agent robots.txt rules are matched for. Random browser
// UAs fall under the wildcard group.
func (f *Fetcher) robotsAgent() string {
	if f.userAgent == "" {
		return "*"
	}
	return f.userAgent
}
