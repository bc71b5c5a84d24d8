package client

import (
	"fmt"
	"time"

	"github.com/go-kit/log/level"
	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
)

// readChunk is the count requested by every Read File request. The server
// clamps it to isobusfs.MaxDataLength.
const readChunk = 0xFFFF

// request sends req and calls fn once with its response or an error.
func (c *Client) request(req isobusfs.Request, fn callback) error {
	if err := c.events.check(sockMain, req.Command()); err != nil {
		return err
	}
	data, err := isobusfs.Encode(req)
	if err != nil {
		return err
	}
	if err := c.main.Send(data); err != nil {
		return fmt.Errorf("sending %s: %w", req.Command(), err)
	}
	c.metrics.requests.WithLabelValues(req.Command().String()).Inc()
	level.Debug(c.log).Log("msg", "sent request", "cmd", req.Command())
	return c.events.add(sockMain, req.Command(), time.Now(), fn)
}

// send sends req without waiting for a response.
func (c *Client) send(req isobusfs.Request) {
	data, err := isobusfs.Encode(req)
	if err == nil {
		err = c.main.Send(data)
	}
	if err != nil {
		level.Warn(c.log).Log("msg", "failed to send request", "cmd", req.Command(), "err", err)
		return
	}
	c.metrics.requests.WithLabelValues(req.Command().String()).Inc()
}

func (c *Client) nextTAN() uint8 {
	tan := c.tan
	c.tan++
	return tan
}

// replyTo checks a response to the request sent with tan. Protocol errors
// are returned as isobusfs.Error.
func replyTo[T isobusfs.Replier](resp isobusfs.Response, err error, tan uint8) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if er, ok := resp.(*isobusfs.ErrorResponse); ok {
		if er.TAN != tan {
			return zero, fmt.Errorf("%w: got %d, expected %d", isobusfs.ErrorTANMismatch, er.TAN, tan)
		}
		if er.Error == isobusfs.ErrorSuccess {
			return zero, isobusfs.ErrorOther
		}
		return zero, er.Error
	}

	r, ok := resp.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected response %T to %T", resp, zero)
	}
	st := r.Status()
	if st.TAN != tan {
		return r, fmt.Errorf("%w: got %d, expected %d", isobusfs.ErrorTANMismatch, st.TAN, tan)
	}
	if st.Error != isobusfs.ErrorSuccess {
		return r, st.Error
	}
	return r, nil
}

func (c *Client) properties(fn func(*isobusfs.PropertiesResponse, error)) error {
	return c.request(&isobusfs.PropertiesRequest{}, func(resp isobusfs.Response, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		r, ok := resp.(*isobusfs.PropertiesResponse)
		if !ok {
			fn(nil, fmt.Errorf("unexpected response %T", resp))
			return
		}
		fn(r, nil)
	})
}

func (c *Client) volumeStatus(mode uint8, name string, fn func(*isobusfs.VolumeStatusResponse, error)) error {
	req := &isobusfs.VolumeStatusRequest{Mode: mode, Name: name}
	return c.request(req, func(resp isobusfs.Response, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		r, ok := resp.(*isobusfs.VolumeStatusResponse)
		switch {
		case !ok:
			fn(nil, fmt.Errorf("unexpected response %T", resp))
		case r.Error != isobusfs.ErrorSuccess:
			fn(r, r.Error)
		default:
			fn(r, nil)
		}
	})
}

func (c *Client) getCurrentDir(fn func(*isobusfs.GetCurrentDirResponse, error)) error {
	tan := c.nextTAN()
	return c.request(&isobusfs.GetCurrentDirRequest{TAN: tan}, func(resp isobusfs.Response, err error) {
		fn(replyTo[*isobusfs.GetCurrentDirResponse](resp, err, tan))
	})
}

func (c *Client) changeDir(path string, fn func(*isobusfs.ChangeCurrentDirResponse, error)) error {
	tan := c.nextTAN()
	return c.request(&isobusfs.ChangeCurrentDirRequest{TAN: tan, Path: path}, func(resp isobusfs.Response, err error) {
		fn(replyTo[*isobusfs.ChangeCurrentDirResponse](resp, err, tan))
	})
}

func (c *Client) openFile(path string, flags isobusfs.OpenFlags, fn func(*isobusfs.OpenFileResponse, error)) error {
	tan := c.nextTAN()
	req := &isobusfs.OpenFileRequest{TAN: tan, Flags: flags, Path: path}
	return c.request(req, func(resp isobusfs.Response, err error) {
		r, err := replyTo[*isobusfs.OpenFileResponse](resp, err, tan)
		if err == nil && r.Handle == isobusfs.InvalidHandle {
			err = fmt.Errorf("open succeeded without a handle: %w", isobusfs.ErrorInvalidHandle)
		}
		fn(r, err)
	})
}

func (c *Client) seekFile(handle uint8, mode isobusfs.SeekMode, offset int32, fn func(*isobusfs.SeekFileResponse, error)) error {
	tan := c.nextTAN()
	req := &isobusfs.SeekFileRequest{TAN: tan, Handle: handle, Mode: mode, Offset: offset}
	return c.request(req, func(resp isobusfs.Response, err error) {
		fn(replyTo[*isobusfs.SeekFileResponse](resp, err, tan))
	})
}

func (c *Client) readFile(handle uint8, count uint16, fn func(*isobusfs.ReadFileResponse, error)) error {
	tan := c.nextTAN()
	req := &isobusfs.ReadFileRequest{TAN: tan, Handle: handle, Count: count}
	return c.request(req, func(resp isobusfs.Response, err error) {
		fn(replyTo[*isobusfs.ReadFileResponse](resp, err, tan))
	})
}

func (c *Client) closeFile(handle uint8, fn func(*isobusfs.CloseFileResponse, error)) error {
	tan := c.nextTAN()
	req := &isobusfs.CloseFileRequest{TAN: tan, Handle: handle}
	return c.request(req, func(resp isobusfs.Response, err error) {
		fn(replyTo[*isobusfs.CloseFileResponse](resp, err, tan))
	})
}

// closeQuietly closes handle without waiting for the outcome.
func (c *Client) closeQuietly(handle uint8) {
	if handle == isobusfs.InvalidHandle {
		return
	}
	c.send(&isobusfs.CloseFileRequest{TAN: c.nextTAN(), Handle: handle})
}
