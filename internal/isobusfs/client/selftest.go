package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log/level"
	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
)

// selftestTimeout bounds the time between two steps of a self-test case.
const selftestTimeout = 5 * time.Second

// testCase is one self-test. run must eventually call r.done.
type testCase struct {
	name string
	run  func(r *testRun)
	// fatal cases abort the remaining cases when they fail.
	fatal bool
}

// selftest runs test cases one after another against a server exporting
// the fixture tree as volume vol1.
type selftest struct {
	c        *Client
	cases    []testCase
	cur      int
	run      *testRun
	deadline time.Time
	failed   int
}

// testRun is the execution of a single case. Completions of a run that
// already ended are ignored.
type testRun struct {
	st         *selftest
	c          *Client
	ended      bool
	waitActive bool
}

func newSelftest(c *Client, cases []testCase) *selftest {
	return &selftest{c: c, cases: cases}
}

// begin starts the current case, or reports the summary when all cases ran.
func (st *selftest) begin() {
	c := st.c
	if st.cur >= len(st.cases) {
		fmt.Fprintln(c.out, "All tests completed.")
		level.Info(c.log).Log("msg", "self-test finished", "cases", len(st.cases), "failed", st.failed)
		c.selftest = nil
		c.finish(nil)
		return
	}

	tc := st.cases[st.cur]
	fmt.Fprintf(c.out, "Executing test %d: %s\n", st.cur+1, tc.name)
	st.run = &testRun{st: st, c: c}
	st.touch()
	tc.run(st.run)
}

// end records the outcome of the current case and starts the next one.
func (st *selftest) end(err error) {
	tc := st.cases[st.cur]
	st.run.ended = true

	result := "PASSED"
	if err != nil {
		result = "FAILED"
		st.failed++
		level.Error(st.c.log).Log("msg", "self-test case failed", "case", tc.name, "err", err)
	}
	fmt.Fprintf(st.c.out, "Test %d: %s.\n", st.cur+1, result)

	st.cur++
	if err != nil && tc.fatal {
		st.cur = len(st.cases)
	}
	st.begin()
}

func (st *selftest) touch() {
	st.deadline = time.Now().Add(selftestTimeout)
}

// tick is called by the client loop on every iteration.
func (st *selftest) tick(now time.Time) {
	r := st.run
	if r == nil || r.ended {
		return
	}
	switch {
	case r.waitActive && st.c.Active():
		r.done(nil)
	case now.After(st.deadline):
		r.done(ErrTimeout)
	}
}

func (r *testRun) done(err error) {
	if r.ended {
		return
	}
	r.st.end(err)
}

// touch extends the deadline of the case after a completed step.
func (r *testRun) touch() {
	if !r.ended {
		r.st.touch()
	}
}

// sequence runs step for 0..n-1. Each step calls next when it succeeded or
// r.done when it failed.
func (r *testRun) sequence(n int, step func(i int, next func())) {
	var run func(i int)
	run = func(i int) {
		if r.ended {
			return
		}
		if i == n {
			r.done(nil)
			return
		}
		r.touch()
		step(i, func() { run(i + 1) })
	}
	run(0)
}

// check ends the run with err when a request could not be sent.
func (r *testRun) check(err error) {
	if err != nil {
		r.done(err)
	}
}

type dirPattern struct {
	path       string
	expectPass bool
}

// Change Current Directory cases. The server starts at \\vol1\ and every
// case builds on the directory left by the previous one.
var dirPatterns = []dirPattern{
	{`\\vol1\dir1`, true},                // \\vol1\dir1\
	{`\\vol1\dir1\dir2`, true},           // \\vol1\dir1\dir2\
	{`.\dir3\dir4`, true},                // \\vol1\dir1\dir2\dir3\dir4\
	{`..\dir5`, true},                    // \\vol1\dir1\dir2\dir3\dir5\
	{`..\..\..\..\..\..`, true},          // \\vol1\
	{`~\`, true},                         // \\vol1\~\
	{`~\msd_dir1\msd_dir2`, true},        // \\vol1\~\msd_dir1\msd_dir2\
	{`\\vol1\~\`, true},                  // \\vol1\~\
	{`\\vol1\~\msd_dir1\msd_dir2`, true}, // \\vol1\~\msd_dir1\msd_dir2\
	{`.\~\`, true},                       // \\vol1\~\msd_dir1\msd_dir2\~\
	{`~tilde_dir`, true},                 // \\vol1\~\msd_dir1\msd_dir2\~\~tilde_dir\
	{`\\vol1\dir1\~`, true},              // \\vol1\dir1\~\
	{`\\~\`, false},                      // no volume named ~
	{`\\\\\\\\`, false},                  // no volume name at all
	{`..\\\`, true},                      // \\vol1\dir1\
	{`.\\\`, true},                       // \\vol1\dir1\
	{`\\vol1\dir1\dir2\dir3\dir4`, true}, // \\vol1\dir1\dir2\dir3\dir4\
	{`\\vol1\dir1`, true},                // \\vol1\dir1\
}

type openPattern struct {
	path       string
	flags      isobusfs.OpenFlags
	expectPass bool
}

var openPatterns = []openPattern{
	{`\\vol1\dir1\dir2`, isobusfs.OpenFlags(isobusfs.AccessReadOnly), false},
	{`\\vol1\dir1\dir2\file0`, isobusfs.OpenFlags(isobusfs.AccessReadOnly), true},
	{`\\vol1\dir1\dir2`, isobusfs.OpenFlags(isobusfs.AccessDirectory), true},
}

type readPattern struct {
	path   string
	offset uint32
	size   uint32
}

var seekPatterns = []readPattern{
	{`\\vol1\dir1\dir2\file1k`, 0, 0},
	{`\\vol1\dir1\dir2\file1k`, 10, 0},
	{`\\vol1\dir1\dir2\file1k`, 1023, 0},
}

var readPatterns = []readPattern{
	{`\\vol1\dir1\dir2\file1k`, 0, 0},
	{`\\vol1\dir1\dir2\file1k`, 0, 1},
	{`\\vol1\dir1\dir2\file1k`, 1, 1},
	{`\\vol1\dir1\dir2\file1k`, 2, 1},
	{`\\vol1\dir1\dir2\file1k`, 3, 1},
	{`\\vol1\dir1\dir2\file1m`, 0, 8},
	{`\\vol1\dir1\dir2\file1m`, 0, 8 * 100},
	{`\\vol1\dir1\dir2\file1m`, 100, 8 * 100},
	{`\\vol1\dir1\dir2\file1m`, 0, isobusfs.MaxDataLength},
	{`\\vol1\dir1\dir2\file1m`, 0, isobusfs.MaxDataLength&^3 + 16},
	{`\\vol1\dir1\dir2\file1m`, 0, isobusfs.MaxDataLength + 1},
	{`\\vol1\dir1\dir2\file1m`, 0, 0xFFFFFFFF},
}

var selftestCases = []testCase{
	{name: "Server connection", run: testConnect, fatal: true},
	{name: "Server property request", run: testProperties},
	{name: "Volume status request", run: testVolumeStatus},
	{name: "Get current dir request", run: testCurrentDir},
	{name: "Change current dir request", run: testChangeDir},
	{name: "Open File request", run: testOpenFile},
	{name: "Seek File request", run: func(r *testRun) { r.readPatterns(seekPatterns) }},
	{name: "Read File request", run: func(r *testRun) { r.readPatterns(readPatterns) }},
}

func testConnect(r *testRun) {
	if r.c.Active() {
		r.done(nil)
		return
	}
	r.waitActive = true
}

func testProperties(r *testRun) {
	r.check(r.c.properties(func(p *isobusfs.PropertiesResponse, err error) {
		if err == nil {
			level.Info(r.c.log).Log("msg", "file server properties", "version", p.Version, "max_open_files", p.MaxOpenFiles, "capabilities", p.Capabilities)
		}
		r.done(err)
	}))
}

func testVolumeStatus(r *testRun) {
	r.check(r.c.volumeStatus(0, `\\vol1`, func(v *isobusfs.VolumeStatusResponse, err error) {
		if err == nil {
			level.Info(r.c.log).Log("msg", "volume status", "volume", v.Name, "status", v.Status)
		}
		r.done(err)
	}))
}

func testCurrentDir(r *testRun) {
	r.check(r.c.getCurrentDir(func(d *isobusfs.GetCurrentDirResponse, err error) {
		if err == nil {
			level.Info(r.c.log).Log("msg", "current directory", "name", d.Name)
		}
		r.done(err)
	}))
}

func testChangeDir(r *testRun) {
	r.sequence(len(dirPatterns), func(i int, next func()) {
		p := dirPatterns[i]
		level.Info(r.c.log).Log("msg", "start pattern test", "path", p.path)
		r.check(r.c.changeDir(p.path, func(_ *isobusfs.ChangeCurrentDirResponse, err error) {
			switch {
			case errors.Is(err, ErrTimeout), errors.Is(err, ErrNacked):
				r.done(err)
			case p.expectPass && err != nil:
				r.done(fmt.Errorf("changing to %q: %w", p.path, err))
			case !p.expectPass && err == nil:
				r.done(fmt.Errorf("changing to %q succeeded unexpectedly", p.path))
			default:
				next()
			}
		}))
	})
}

func testOpenFile(r *testRun) {
	r.sequence(len(openPatterns), func(i int, next func()) {
		p := openPatterns[i]
		level.Info(r.c.log).Log("msg", "start pattern test", "path", p.path, "flags", fmt.Sprintf("0x%02x", uint8(p.flags)))
		r.check(r.c.openFile(p.path, p.flags, func(of *isobusfs.OpenFileResponse, err error) {
			switch {
			case errors.Is(err, ErrTimeout), errors.Is(err, ErrNacked):
				r.done(err)
			case p.expectPass && err != nil:
				r.done(fmt.Errorf("opening %q: %w", p.path, err))
			case !p.expectPass && err == nil:
				r.c.closeQuietly(of.Handle)
				r.done(fmt.Errorf("opening %q succeeded unexpectedly", p.path))
			case err != nil:
				next()
			default:
				r.closeThen(of.Handle, next)
			}
		}))
	})
}

// closeThen closes handle and continues with next.
func (r *testRun) closeThen(handle uint8, next func()) {
	r.check(r.c.closeFile(handle, func(_ *isobusfs.CloseFileResponse, err error) {
		if err != nil {
			r.done(fmt.Errorf("closing handle %d: %w", handle, err))
			return
		}
		next()
	}))
}

// readPatterns opens each file, seeks to the pattern offset and reads the
// pattern size in chunks, verifying every chunk against the counter
// pattern of the fixture files.
func (r *testRun) readPatterns(patterns []readPattern) {
	r.sequence(len(patterns), func(i int, next func()) {
		p := patterns[i]
		level.Info(r.c.log).Log("msg", "start read test", "path", p.path, "size", p.size, "offset", p.offset)
		r.check(r.c.openFile(p.path, isobusfs.OpenFlags(isobusfs.AccessReadOnly), func(of *isobusfs.OpenFileResponse, err error) {
			if err != nil {
				r.done(fmt.Errorf("opening %q: %w", p.path, err))
				return
			}
			rd := &patternReader{r: r, p: p, handle: of.Handle, next: next}
			rd.seek()
		}))
	})
}

type patternReader struct {
	r         *testRun
	p         readPattern
	handle    uint8
	pos       uint32
	remaining int64
	next      func()
}

func (rd *patternReader) fail(err error) {
	rd.r.c.closeQuietly(rd.handle)
	rd.r.done(fmt.Errorf("%s at offset %d: %w", rd.p.path, rd.p.offset, err))
}

func (rd *patternReader) seek() {
	err := rd.r.c.seekFile(rd.handle, isobusfs.SeekSet, int32(rd.p.offset), func(sf *isobusfs.SeekFileResponse, err error) {
		switch {
		case err != nil:
			rd.fail(err)
		case sf.Position != rd.p.offset:
			rd.fail(fmt.Errorf("server moved to offset %d", sf.Position))
		default:
			rd.pos = sf.Position
			rd.remaining = int64(rd.p.size)
			rd.read()
		}
	})
	if err != nil {
		rd.fail(err)
	}
}

func (rd *patternReader) read() {
	count := rd.remaining
	if count > readChunk {
		count = readChunk
	}
	err := rd.r.c.readFile(rd.handle, uint16(count), func(rf *isobusfs.ReadFileResponse, err error) {
		switch {
		case errors.Is(err, isobusfs.ErrorEndOfFile):
			rd.r.closeThen(rd.handle, rd.next)
			return
		case err != nil:
			rd.fail(err)
			return
		case int64(len(rf.Data)) > rd.remaining:
			rd.fail(fmt.Errorf("read %d bytes, requested at most %d", len(rf.Data), rd.remaining))
			return
		}

		got, want := patternSum(rf.Data, rd.pos), expectedPatternSum(len(rf.Data), rd.pos)
		if got != want {
			rd.fail(fmt.Errorf("incorrect sum of %d bytes: got %d, expected %d", len(rf.Data), got, want))
			return
		}
		level.Debug(rd.r.c.log).Log("msg", "pattern verified", "path", rd.p.path, "offset", rd.pos, "bytes", len(rf.Data), "sum", got)

		rd.pos += uint32(len(rf.Data))
		rd.remaining -= int64(len(rf.Data))
		if rd.remaining > 0 && len(rf.Data) > 0 {
			rd.r.touch()
			rd.read()
			return
		}
		rd.r.closeThen(rd.handle, rd.next)
	})
	if err != nil {
		rd.fail(err)
	}
}

// patternKey is XORed over the big-endian counter in the fixture files.
var patternKey = [4]byte{0xde, 0xad, 0xbe, 0xef}

// patternSum adds up the big-endian words of data, located at file offset
// off, after removing patternKey. A word cut short at either end counts
// with its missing bytes as zero.
func patternSum(data []byte, off uint32) uint32 {
	return wordSum(len(data), off, func(i int) byte {
		return data[i] ^ patternKey[(off+uint32(i))%4]
	})
}

// expectedPatternSum is the patternSum of n bytes of a fixture file at
// offset off.
func expectedPatternSum(n int, off uint32) uint32 {
	return wordSum(n, off, func(i int) byte {
		p := off + uint32(i)
		return byte((p / 4) >> ((3 - p%4) * 8))
	})
}

func wordSum(n int, off uint32, at func(i int) byte) uint32 {
	var sum, word uint32
	for i := 0; i < n; i++ {
		shift := 3 - (off+uint32(i))%4
		word |= uint32(at(i)) << (shift * 8)
		if shift == 0 {
			sum += word
			word = 0
		}
	}
	return sum + word
}
