package server

import (
	"context"
	"time"

	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
)

// RequestHeader describes where a request came from.
type RequestHeader struct {
	// Client is the J1939 source address of the requesting client.
	Client uint8
	// Session identifies the client's connection to the server.
	Session string
	// Command is the command byte of the request.
	Command isobusfs.Command
	// Received is when the request was received.
	Received time.Time
}

// Middleware hooks into requests.
type Middleware interface {
	// HandleRequest handles an individual request.
	HandleRequest(ctx context.Context, hdr *RequestHeader, req isobusfs.Request, invoker Invoker) (isobusfs.Response, error)
}

// Invoker is called by Middleware to complete requests.
type Invoker func(ctx context.Context, hdr *RequestHeader, req isobusfs.Request) (isobusfs.Response, error)

// FuncMiddleware is a function that implements Middleware.
type FuncMiddleware func(ctx context.Context, hdr *RequestHeader, req isobusfs.Request, i Invoker) (isobusfs.Response, error)

func (f FuncMiddleware) HandleRequest(ctx context.Context, h *RequestHeader, req isobusfs.Request, i Invoker) (isobusfs.Response, error) {
	return f(ctx, h, req, i)
}

type chainMiddleware []Middleware

func (c chainMiddleware) HandleRequest(ctx context.Context, h *RequestHeader, req isobusfs.Request, invoker Invoker) (isobusfs.Response, error) {
	if len(c) == 0 {
		return invoker(ctx, h, req)
	}

	var (
		index        int
		chainInvoker Invoker
	)

	chainInvoker = func(ctx context.Context, h *RequestHeader, req isobusfs.Request) (isobusfs.Response, error) {
		mw := c[index]
		index++

		var next Invoker
		if index == len(c) {
			next = invoker
		} else {
			next = chainInvoker
		}

		return mw.HandleRequest(ctx, h, req, next)
	}
	return chainInvoker(ctx, h, req)
}

// responseError returns the protocol error carried by resp, if any.
func responseError(resp isobusfs.Response) isobusfs.Error {
	switch r := resp.(type) {
	case isobusfs.Replier:
		return r.Status().Error
	case *isobusfs.VolumeStatusResponse:
		return r.Error
	}
	return isobusfs.ErrorSuccess
}
