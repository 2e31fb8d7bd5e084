package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mitchellh/mapstructure"

	"github.com/piggyclaim/piggyclaim/pkg/proxy"
)

const (
	DefaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
)

// Requester issues a request and hands back the parsed body together with the
// status code. Non 2xx statuses are not errors, callers decide what they mean.
type Requester interface {
	Get(ctx context.Context, url string) (*Response, error)
}

type Response struct {
	Status int
	Body   map[string]interface{}
	Raw    []byte
}

func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Decode copies the json body into out using its `json` tags.
func (r *Response) Decode(out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(r.Body)
}

// Lookup walks nested objects, Lookup("a", "b") reads body["a"]["b"].
func (r *Response) Lookup(path ...string) (interface{}, bool) {
	var current interface{} = r.Body
	for _, key := range path {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if current, ok = m[key]; !ok {
			return nil, false
		}
	}
	return current, current != nil
}

type Client struct {
	http  *resty.Client
	proxy *proxy.Proxy
}

// New builds a client that egresses through p. A nil p goes direct.
func New(p *proxy.Proxy) (*Client, error) {
	client := resty.New()
	client.SetTimeout(DefaultTimeout)
	client.SetHeader("User-Agent", defaultUserAgent)
	client.SetHeader("Accept", "application/json")

	if p != nil {
		transport, err := p.Transport()
		if err != nil {
			return nil, fmt.Errorf("cannot build transport for proxy %s: %w", p, err)
		}
		client.SetTransport(transport)
	}

	return &Client{http: client, proxy: p}, nil
}

func (c *Client) Proxy() *proxy.Proxy {
	return c.proxy
}

func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}

	out := &Response{
		Status: resp.StatusCode(),
		Raw:    resp.Body(),
	}

	if len(out.Raw) > 0 {
		if err := json.Unmarshal(out.Raw, &out.Body); err != nil {
			// error pages from a CDN are html, keep the status and let callers judge
			if out.OK() {
				return nil, fmt.Errorf("GET %s: invalid json body: %w", url, err)
			}
			out.Body = nil
		}
	}

	return out, nil
}
