// Package transport carries events to and from the room server: a push
// channel for fire-and-forget events and HTTP for request/response calls.
// It applies no retry policy of its own beyond reconnecting the push
// channel.
package transport

import (
	"context"
	"net/http"
)

// Pusher sends an event over the push channel. It must never block and
// silently drops the event while disconnected.
type Pusher interface {
	SendEvent(kind string, payload interface{})
}

// Requester performs one request/response call. payload may be nil; out
// may be nil when the body is not needed.
type Requester interface {
	Request(ctx context.Context, ep Endpoint, payload, out interface{}) error
}

type Adapter interface {
	Pusher
	Requester
}

type Endpoint struct {
	Method string
	Path   string
}

func Get(path string) Endpoint  { return Endpoint{Method: http.MethodGet, Path: path} }
func Post(path string) Endpoint { return Endpoint{Method: http.MethodPost, Path: path} }

func (e Endpoint) String() string { return e.Method + " " + e.Path }

// Combined pairs a push channel with a requester.
type Combined struct {
	Pusher
	Requester
}
