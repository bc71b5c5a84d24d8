package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLogLevel(t *testing.T) {
	tt := []struct {
		in     string
		expect string
	}{
		{"0", "error"},
		{"1", "error"},
		{"2", "warn"},
		{"3", "info"},
		{"4", "debug"},
		{"DEBUG", "debug"},
		{"warn", "warn"},
	}
	for _, tc := range tt {
		var ll LogLevel
		require.NoError(t, ll.Set(tc.in), tc.in)
		require.Equal(t, tc.expect, ll.String(), tc.in)
	}

	var ll LogLevel
	require.Equal(t, "info", ll.String())
	require.Error(t, ll.Set("5"))
	require.Error(t, ll.Set("loud"))
}

func TestLogLevel_Flag(t *testing.T) {
	var ll LogLevel
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.VarP(&ll, "log-level", "l", "")
	require.NoError(t, fs.Parse([]string{"-l", "4"}))
	require.Equal(t, level.DebugValue(), ll.value)
}

func TestLogRing(t *testing.T) {
	r := NewLogRing(3)
	require.Empty(t, r.Lines())

	fmt.Fprint(r, "one\ntw")
	require.Equal(t, []string{"one"}, r.Lines())
	fmt.Fprint(r, "o\nthree\n")
	require.Equal(t, []string{"one", "two", "three"}, r.Lines())

	fmt.Fprint(r, "four\nfive\n")
	require.Equal(t, []string{"three", "four", "five"}, r.Lines())
}

func TestLogRing_DefaultSize(t *testing.T) {
	r := NewLogRing(0)
	for i := 0; i < DefaultLogRingSize+10; i++ {
		fmt.Fprintf(r, "line %d\n", i)
	}
	lines := r.Lines()
	require.Len(t, lines, DefaultLogRingSize)
	require.Equal(t, "line 10", lines[0])
	require.Equal(t, fmt.Sprintf("line %d", DefaultLogRingSize+9), lines[len(lines)-1])
}

func TestHex(t *testing.T) {
	addr := NewHexUint8(0x80)
	require.Equal(t, "0x80", addr.String())
	require.False(t, addr.IsSet)

	require.NoError(t, addr.Set("0x1c"))
	require.Equal(t, uint64(0x1c), addr.Value)
	require.True(t, addr.IsSet)
	require.NoError(t, addr.Set("FE"))
	require.Equal(t, uint64(0xfe), addr.Value)
	require.Error(t, addr.Set("100"))
	require.Error(t, addr.Set("zz"))

	name := NewHexUint64(0)
	require.NoError(t, name.Set("a00c81045a20021b"))
	require.Equal(t, uint64(0xa00c81045a20021b), name.Value)
	require.Equal(t, "0xa00c81045a20021b", name.String())
}

func TestInfoRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total"})
	reg.MustRegister(c)
	c.Inc()

	r := NewInfoRouter(reg, map[string]http.Handler{
		"/debug/state": http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("state"))
		}),
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "test_total 1")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/state", nil))
	require.Equal(t, "state", rec.Body.String())
}

func TestAddContext(t *testing.T) {
	var group run.Group
	AddContext(&group, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	stop := errors.New("stop")
	group.Add(func() error { return stop }, func(error) {})

	require.ErrorIs(t, group.Run(), stop)
}
