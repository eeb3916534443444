// Package extract implements the content extractor (spec §4.2): fetch HTML,
// run a precision-favoring boilerplate-stripping pass plus a recall-favoring
// secondary pass, merge substantively new content, resolve published-at with
// future/min-year rejection.
//
// Transport is adapted near-verbatim from the teacher's
// internal/ingest/fetcher_http.go RateLimitedFetcher: same per-domain ticker
// rate limiting, same SSRF-hardened dialer and redirect checker, same
// exponential-backoff retry loop.
package extract

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"time"
)

var blockedPrefixStrings = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var blockedPrefixes = func() []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(blockedPrefixStrings))
	for _, s := range blockedPrefixStrings {
		if p, err := netip.ParsePrefix(s); err == nil {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}()

// FetchConfig is per-domain transport tuning, same shape as the teacher's.
type FetchConfig struct {
	TimeoutSeconds int
	MaxRetries     int
	RateLimitRPS   float64
	ProxyURL       string
	AcceptLanguage string
}

// FetchedDocument is the raw HTTP result handed to the two extraction
// passes.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
	Headers     http.Header
}

// Transport provides rate-limited, SSRF-hardened, retrying HTTP GET per
// domain.
type Transport struct {
	clients       map[string]*http.Client
	limiters      map[string]*time.Ticker
	configs       map[string]FetchConfig
	defaultConfig FetchConfig
	mu            sync.RWMutex
}

func NewTransport(defaultConfig FetchConfig) *Transport {
	if defaultConfig.TimeoutSeconds == 0 {
		defaultConfig.TimeoutSeconds = 30
	}
	if defaultConfig.MaxRetries == 0 {
		defaultConfig.MaxRetries = 3
	}
	if defaultConfig.RateLimitRPS == 0 {
		defaultConfig.RateLimitRPS = 1.0
	}
	if defaultConfig.AcceptLanguage == "" {
		defaultConfig.AcceptLanguage = "pt-BR,pt;q=0.9,en;q=0.5"
	}
	return &Transport{
		clients:       make(map[string]*http.Client),
		limiters:      make(map[string]*time.Ticker),
		configs:       make(map[string]FetchConfig),
		defaultConfig: defaultConfig,
	}
}

func getDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Host, nil
}

func (t *Transport) getClient(domain string, config FetchConfig) *http.Client {
	t.mu.RLock()
	client, exists := t.clients[domain]
	t.mu.RUnlock()
	if exists {
		return client
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if client, exists := t.clients[domain]; exists {
		return client
	}

	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           safeDialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if config.ProxyURL != "" {
		if proxyURL, err := url.Parse(config.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client = &http.Client{
		Timeout:       timeout,
		Transport:     transport,
		CheckRedirect: safeCheckRedirect,
	}
	t.clients[domain] = client

	interval := time.Duration(float64(time.Second) / config.RateLimitRPS)
	if interval == 0 {
		interval = time.Second
	}
	t.limiters[domain] = time.NewTicker(interval)
	t.configs[domain] = config

	return client
}

func safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("blocked private IP: %s", ip)
		}
	}
	return d.DialContext(ctx, network, addr)
}

func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	if addr, ok := netip.AddrFromSlice(ip); ok {
		for _, prefix := range blockedPrefixes {
			if prefix.Contains(addr.Unmap()) {
				return true
			}
		}
	}
	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 10:
			return true
		case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
			return true
		case ip4[0] == 192 && ip4[1] == 168:
			return true
		case ip4[0] == 169 && ip4[1] == 254:
			return true
		}
	}
	return false
}

func safeCheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if req.URL == nil || (req.URL.Scheme != "http" && req.URL.Scheme != "https") {
		return fmt.Errorf("redirect scheme blocked")
	}
	host := req.URL.Hostname()
	if host == "" {
		return fmt.Errorf("redirect host missing")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".local") {
		return fmt.Errorf("redirect to internal host blocked")
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return err
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("redirect to private IP blocked: %s", ip)
		}
	}
	return nil
}

func shouldRetry(err error, statusCode int) bool {
	if err != nil {
		if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
			return true
		}
		return false
	}
	switch statusCode {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// Fetch performs a rate-limited, retrying GET against rawURL with a
// browser-like User-Agent.
func (t *Transport) Fetch(ctx context.Context, rawURL string) (*FetchedDocument, error) {
	domain, err := getDomain(rawURL)
	if err != nil {
		return nil, fmt.Errorf("extract: invalid URL: %w", err)
	}

	t.mu.RLock()
	config, hasConfig := t.configs[domain]
	t.mu.RUnlock()
	if !hasConfig {
		config = t.defaultConfig
	}

	client := t.getClient(domain, config)

	t.mu.RLock()
	limiter, exists := t.limiters[domain]
	t.mu.RUnlock()
	if exists {
		<-limiter.C
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
			jitter := time.Duration(rand.Intn(100)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("extract: build request: %w", err)
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", config.AcceptLanguage)

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if shouldRetry(err, 0) {
				continue
			}
			return nil, fmt.Errorf("extract: request failed: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			body := make([]byte, 0)
			buf := make([]byte, 32*1024)
			for {
				n, rerr := resp.Body.Read(buf)
				if n > 0 {
					body = append(body, buf[:n]...)
				}
				if rerr != nil {
					break
				}
			}
			resp.Body.Close()
			return &FetchedDocument{
				URL:         rawURL,
				StatusCode:  resp.StatusCode,
				ContentType: resp.Header.Get("Content-Type"),
				Body:        body,
				FetchedAt:   time.Now(),
				Headers:     resp.Header,
			}, nil
		}

		if shouldRetry(nil, resp.StatusCode) {
			resp.Body.Close()
			lastErr = fmt.Errorf("status code %d", resp.StatusCode)
			continue
		}
		resp.Body.Close()
		return nil, fmt.Errorf("extract: unexpected status code: %d", resp.StatusCode)
	}
	return nil, fmt.Errorf("extract: max retries exceeded: %w", lastErr)
}
