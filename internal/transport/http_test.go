package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchsync/internal/protocol"
)

func newTestHTTPClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(srv.URL, 2*time.Second)
	require.NoError(t, err)
	return c
}

func TestHTTPClientRequestDecodes(t *testing.T) {
	var gotAuth, gotBody string
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req protocol.VideoControlRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotBody = req.Action
		_ = json.NewEncoder(w).Encode(protocol.SuccessResponse{Success: true})
	}).WithToken("tok-1")

	var out protocol.SuccessResponse
	err := c.Request(context.Background(), Post(protocol.VideoControlPath("ABC")),
		protocol.VideoControlRequest{Action: protocol.ActionPlay, Time: 3}, &out)

	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "play", gotBody)
}

func TestHTTPClientErrorStatus(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"Only the host can control video playback"}`))
	})

	err := c.Request(context.Background(), Post("/room/ABC/video-control"), map[string]string{}, nil)

	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusForbidden, te.Status)
	assert.Equal(t, "Only the host can control video playback", te.Message)
	assert.Equal(t, http.StatusForbidden, StatusOf(err))
}

func TestHTTPClientMalformedBody(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"video_url": `))
	})

	var out protocol.VideoSync
	err := c.Request(context.Background(), Get("/room/ABC/video-sync"), nil, &out)

	assert.True(t, IsMalformed(err))
}

func TestHTTPClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewHTTPClient(url, 500*time.Millisecond)
	require.NoError(t, err)

	err = c.Request(context.Background(), Get("/room/ABC/member-count"), nil, nil)

	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Zero(t, te.Status)
	assert.False(t, IsMalformed(err))
}

func TestHTTPClientCancelledContext(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Request(ctx, Get("/room/ABC/members"), nil, nil)

	assert.ErrorIs(t, err, context.Canceled)
}
