package server

import (
	"context"
	"testing"

	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
	"github.com/stretchr/testify/require"
)

func TestChainMiddleware(t *testing.T) {
	var order []string

	record := func(name string) Middleware {
		return FuncMiddleware(func(ctx context.Context, h *RequestHeader, req isobusfs.Request, i Invoker) (isobusfs.Response, error) {
			order = append(order, name)
			return i(ctx, h, req)
		})
	}
	mw := []Middleware{record("a"), record("b"), record("c")}

	invoker := func(context.Context, *RequestHeader, isobusfs.Request) (isobusfs.Response, error) {
		order = append(order, "invoker")
		return &isobusfs.PropertiesResponse{Version: 4}, nil
	}
	resp, err := chainMiddleware(mw).HandleRequest(context.Background(), nil, nil, invoker)
	require.NoError(t, err)
	require.Equal(t, &isobusfs.PropertiesResponse{Version: 4}, resp)
	require.Equal(t, []string{"a", "b", "c", "invoker"}, order)
}

func TestChainMiddleware_Empty(t *testing.T) {
	var called bool

	invoker := func(context.Context, *RequestHeader, isobusfs.Request) (isobusfs.Response, error) {
		called = true
		return nil, nil
	}

	chainMiddleware(nil).HandleRequest(context.Background(), nil, nil, invoker)
	require.True(t, called)
}

func TestChainMiddleware_ShortCircuit(t *testing.T) {
	deny := FuncMiddleware(func(ctx context.Context, h *RequestHeader, req isobusfs.Request, i Invoker) (isobusfs.Response, error) {
		return nil, isobusfs.ErrorAccessDenied
	})

	invoker := func(context.Context, *RequestHeader, isobusfs.Request) (isobusfs.Response, error) {
		t.Fatal("invoker should not be called")
		return nil, nil
	}
	_, err := chainMiddleware{deny}.HandleRequest(context.Background(), nil, nil, invoker)
	require.ErrorIs(t, err, isobusfs.ErrorAccessDenied)
}

func TestResponseError(t *testing.T) {
	require.Equal(t, isobusfs.ErrorSuccess, responseError(nil))
	require.Equal(t, isobusfs.ErrorSuccess, responseError(&isobusfs.PropertiesResponse{}))
	require.Equal(t, isobusfs.ErrorEndOfFile, responseError(&isobusfs.ReadFileResponse{
		Reply: isobusfs.Reply{Error: isobusfs.ErrorEndOfFile},
	}))
	require.Equal(t, isobusfs.ErrorNotFound, responseError(&isobusfs.VolumeStatusResponse{Error: isobusfs.ErrorNotFound}))
}
