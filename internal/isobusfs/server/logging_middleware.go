package server

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
)

// NewLoggingMiddleware returns a Middleware that logs every request at debug
// level. Requests answered with a protocol error other than end of file are
// logged at info level.
func NewLoggingMiddleware(l log.Logger) Middleware {
	if l == nil {
		l = log.NewNopLogger()
	}
	return FuncMiddleware(func(ctx context.Context, hdr *RequestHeader, req isobusfs.Request, next Invoker) (isobusfs.Response, error) {
		l := log.With(l, "cmd", hdr.Command, "client", hdr.Client, "session", hdr.Session)
		level.Debug(l).Log("msg", "starting request")

		resp, err := next(ctx, hdr, req)
		code := responseError(resp)

		logLevel := level.Debug
		if code != isobusfs.ErrorSuccess && code != isobusfs.ErrorEndOfFile {
			logLevel = level.Info
		}
		logLevel(l).Log("msg", "finished request", "code", code, "took", time.Since(hdr.Received), "err", err)
		return resp, err
	})
}
