package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	xproxy "golang.org/x/net/proxy"
)

var (
	ErrEmptyProxy   = errors.New("proxy line is empty")
	ErrNoChangeLink = errors.New("proxy has no change link")
)

const rotateTimeout = 30 * time.Second

// Proxy is one egress endpoint. URL identifies it for the whole run, a
// rotation only changes the IP behind it.
type Proxy struct {
	URL        string
	ChangeLink string

	parsed *url.URL
}

// Parse reads a pool line. Accepted forms are host:port, user:pass@host:port
// or a full URL, optionally followed by "|<change link>" for mobile proxies.
// A line without scheme is treated as http.
func Parse(line string) (*Proxy, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrEmptyProxy
	}

	endpoint, changeLink, _ := strings.Cut(line, "|")
	endpoint = strings.TrimSpace(endpoint)
	changeLink = strings.TrimSpace(changeLink)

	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", redact(endpoint), err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy %q: missing host", redact(endpoint))
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}

	if changeLink != "" {
		if _, err := url.ParseRequestURI(changeLink); err != nil {
			return nil, fmt.Errorf("invalid change link for proxy %s: %w", u.Host, err)
		}
	}

	return &Proxy{
		URL:        u.String(),
		ChangeLink: changeLink,
		parsed:     u,
	}, nil
}

// MustParse is Parse for literals in tests and defaults.
func MustParse(line string) *Proxy {
	p, err := Parse(line)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Proxy) CanRotate() bool {
	return p != nil && p.ChangeLink != ""
}

// ChangeIP asks the provider for a new egress IP. The call goes out directly,
// not through the proxy being rotated.
func (p *Proxy) ChangeIP(ctx context.Context) error {
	if !p.CanRotate() {
		return ErrNoChangeLink
	}

	resp, err := resty.New().
		SetTimeout(rotateTimeout).
		R().
		SetContext(ctx).
		Get(p.ChangeLink)
	if err != nil {
		return fmt.Errorf("failed to call change link for %s: %w", p.Host(), err)
	}
	if resp.IsError() {
		return fmt.Errorf("change link for %s returned status %d", p.Host(), resp.StatusCode())
	}

	return nil
}

// Transport returns an http transport that egresses through the proxy.
func (p *Proxy) Transport() (*http.Transport, error) {
	u := p.parsed
	if u == nil {
		var err error
		if u, err = url.Parse(p.URL); err != nil {
			return nil, err
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()

	if strings.HasPrefix(u.Scheme, "socks5") {
		var auth *xproxy.Auth
		if u.User != nil {
			password, _ := u.User.Password()
			auth = &xproxy.Auth{User: u.User.Username(), Password: password}
		}

		dialer, err := xproxy.SOCKS5("tcp", u.Host, auth, &net.Dialer{Timeout: 30 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("error creating SOCKS5 dialer: %w", err)
		}
		transport.Proxy = nil
		if cd, ok := dialer.(xproxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
		return transport, nil
	}

	transport.Proxy = http.ProxyURL(u)
	return transport, nil
}

// HTTPClient wraps Transport into a client with the given timeout.
// A nil proxy yields a direct client.
func (p *Proxy) HTTPClient(timeout time.Duration) (*http.Client, error) {
	if p == nil {
		return &http.Client{Timeout: timeout}, nil
	}

	transport, err := p.Transport()
	if err != nil {
		return nil, err
	}
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

func (p *Proxy) Host() string {
	if p == nil {
		return ""
	}
	if p.parsed != nil {
		return p.parsed.Host
	}
	if u, err := url.Parse(p.URL); err == nil {
		return u.Host
	}
	return ""
}

// String hides credentials so the proxy can be logged.
func (p *Proxy) String() string {
	if p == nil {
		return "<direct>"
	}
	return redact(p.URL)
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
