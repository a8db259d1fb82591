package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	hzprotocol "github.com/cloudwego/hertz/pkg/protocol"
)

const defaultRequestTimeout = 10 * time.Second

// HTTPClient implements Requester on top of the hertz client.
type HTTPClient struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *client.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	c, err := client.NewClient(client.WithDialTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  c,
	}, nil
}

// WithToken returns a copy that authenticates as the given session token.
// The underlying connection pool is shared.
func (h *HTTPClient) WithToken(token string) *HTTPClient {
	cp := *h
	cp.token = token
	return &cp
}

func (h *HTTPClient) BaseURL() string { return h.baseURL }

func (h *HTTPClient) Request(ctx context.Context, ep Endpoint, payload, out interface{}) error {
	req := hzprotocol.AcquireRequest()
	resp := hzprotocol.AcquireResponse()
	defer hzprotocol.ReleaseRequest(req)
	defer hzprotocol.ReleaseResponse(resp)

	req.SetRequestURI(h.baseURL + ep.Path)
	req.SetMethod(ep.Method)
	req.Header.Set("Accept", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return &Error{Endpoint: ep, Err: fmt.Errorf("encode payload: %w", err)}
		}
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(body)
	}

	if err := h.do(ctx, req, resp); err != nil {
		return &Error{Endpoint: ep, Err: err}
	}

	status := resp.StatusCode()
	body := resp.Body()
	if status < 200 || status >= 300 {
		return &Error{Endpoint: ep, Status: status, Message: errorMessage(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &MalformedError{Endpoint: ep, Err: err}
	}
	return nil
}

func (h *HTTPClient) do(ctx context.Context, req *hzprotocol.Request, resp *hzprotocol.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(h.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return h.client.DoDeadline(ctx, req, resp, deadline)
}
