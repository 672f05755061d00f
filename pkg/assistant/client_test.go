package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func collectDeltas(h Handle) string {
	var sb strings.Builder
	for d := range h.Deltas() {
		sb.WriteString(d)
	}
	return sb.String()
}

func TestStartTurnStreamsChunkedBody(t *testing.T) {
	sessionID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, sessionID.String())
		assert.Equal(t, "nl", r.URL.Query().Get("lang"))

		var payload struct {
			Messages    []Message `json:"messages"`
			TemplateKey string    `json:"template_key"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "deep_dive_v1", payload.TemplateKey)
		assert.Len(t, payload.Messages, 2)

		flusher := w.(http.Flusher)
		for _, chunk := range []string{"Eerste ", "deel ", "van het antwoord"} {
			w.Write([]byte(chunk))
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute)
	h, err := c.StartTurn(context.Background(), TurnRequest{
		SessionID:   sessionID,
		Lang:        "nl",
		TemplateKey: "deep_dive_v1",
		Messages: []Message{
			{Role: "system", Content: "context"},
			{Role: "user", Content: "vraag"},
		},
	})
	assert.NoError(t, err)

	assert.Equal(t, "Eerste deel van het antwoord", collectDeltas(h))
	assert.NoError(t, h.Err())
}

func TestStartTurnNon2xxIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute)
	_, err := c.StartTurn(context.Background(), TurnRequest{SessionID: uuid.New()})

	var terr *TransportError
	assert.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusBadGateway, terr.Status)
}

func TestStartTurnConnectionRefusedIsTransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second)
	_, err := c.StartTurn(context.Background(), TurnRequest{SessionID: uuid.New()})

	var terr *TransportError
	assert.True(t, errors.As(err, &terr))
}

func TestCancelEndsStreamWithoutError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte("partial"))
		flusher.Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, time.Minute)
	h, err := c.StartTurn(context.Background(), TurnRequest{SessionID: uuid.New()})
	assert.NoError(t, err)

	// Wait for the first delta, then cancel mid-stream.
	select {
	case <-h.Deltas():
	case <-time.After(2 * time.Second):
		t.Fatal("no delta before cancel")
	}
	h.Cancel()

	for range h.Deltas() {
		// Drain whatever was in flight.
	}
	assert.NoError(t, h.Err(), "cancellation is not a transport failure")
}

func TestMidStreamReadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Declare a longer body than is written: the server closes the
		// connection short and the client sees an unexpected EOF instead of
		// a clean end of stream.
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("truncated"))
		w.(http.Flusher).Flush()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute)
	h, err := c.StartTurn(context.Background(), TurnRequest{SessionID: uuid.New()})
	assert.NoError(t, err)

	collectDeltas(h)

	var terr *TransportError
	assert.True(t, errors.As(h.Err(), &terr), "mid-stream read failure should surface as TransportError")
}

func TestCompleteBoundaryCarriesPartialRunes(t *testing.T) {
	multibyte := []byte("héllo") // é is two bytes

	tests := []struct {
		name string
		b    []byte
		want int
	}{
		{name: "ascii only", b: []byte("plain"), want: 5},
		{name: "complete multibyte", b: multibyte, want: len(multibyte)},
		{name: "split multibyte", b: multibyte[:2], want: 1},
		{name: "empty", b: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, completeBoundary(tt.b))
		})
	}
}
