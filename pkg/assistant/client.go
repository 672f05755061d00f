package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"
)

const readChunkSize = 4 * 1024

// Client is the HTTP implementation of Transport. One POST per turn; the
// response body is a chunked sequence of raw UTF-8 text deltas terminated by
// connection close.
type Client struct {
	BaseURL string
	Client  *http.Client
}

var _ Transport = &Client{}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

type turnPayload struct {
	Messages    []Message `json:"messages"`
	TemplateKey string    `json:"template_key"`
}

func (c *Client) StartTurn(ctx context.Context, req TurnRequest) (Handle, error) {
	payload, err := json.Marshal(turnPayload{
		Messages:    req.Messages,
		TemplateKey: req.TemplateKey,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal turn request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/chats/%s", c.BaseURL, req.SessionID)
	if req.Lang != "" {
		endpoint += "?lang=" + url.QueryEscape(req.Lang)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create turn request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, &TransportError{Status: resp.StatusCode}
	}

	h := &httpHandle{
		deltas: make(chan string, 16),
		cancel: cancel,
		ctx:    streamCtx,
	}
	go h.read(resp.Body)
	return h, nil
}

type httpHandle struct {
	deltas chan string
	cancel context.CancelFunc
	ctx    context.Context

	mu        sync.Mutex
	cancelled bool
	err       error
}

func (h *httpHandle) Deltas() <-chan string { return h.deltas }

func (h *httpHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Cancel aborts the request. Cancelling the context first unblocks any
// in-flight deliver; taking the mutex after that waits it out, so no further
// deltas are delivered once Cancel returns.
func (h *httpHandle) Cancel() {
	h.cancel()
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
}

func (h *httpHandle) deliver(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return
	}
	select {
	case h.deltas <- s:
	case <-h.ctx.Done():
	}
}

func (h *httpHandle) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		// Cancellation is not a transport failure.
		return
	}
	h.err = err
}

// read pumps the response body into the delta channel. Chunk boundaries are
// arbitrary on the wire, so a trailing incomplete rune is carried over to
// the next chunk rather than emitted as garbage.
func (h *httpHandle) read(body io.ReadCloser) {
	defer close(h.deltas)
	defer body.Close()
	defer h.cancel()

	var carry []byte
	buf := make([]byte, readChunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			cut := completeBoundary(chunk)
			if cut > 0 {
				h.deliver(string(chunk[:cut]))
			}
			carry = append([]byte(nil), chunk[cut:]...)
		}
		if err != nil {
			if err != io.EOF {
				h.fail(&TransportError{Err: err})
			} else if len(carry) > 0 {
				h.deliver(string(carry))
			}
			return
		}
	}
}

// completeBoundary returns the length of the longest prefix of b that ends
// on a complete UTF-8 rune boundary. Invalid byte sequences are passed
// through untouched rather than held back forever.
func completeBoundary(b []byte) int {
	for i := len(b); i > 0 && len(b)-i < utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i-1]) {
			if utf8.FullRune(b[i-1:]) {
				return len(b)
			}
			return i - 1
		}
	}
	return len(b)
}
