package client

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
)

// errExit is returned by the exit command.
var errExit = errors.New("exit")

type command struct {
	name  string
	usage string
	help  string
	run   func(c *Client, args []string) error
}

var commandTable []command

func init() {
	commandTable = []command{
		{name: "exit", help: "exit interactive mode", run: cmdExit},
		{name: "quit", help: "exit interactive mode", run: cmdExit},
		{name: "help", help: "show this help", run: cmdHelp},
		{name: "dmesg", help: "show log buffer", run: cmdDmesg},
		{name: "selftest", help: "run self-test against a prepared volume vol1", run: cmdSelftest},
		{name: "ls", usage: "ls [-l] [path]", help: "list directory", run: cmdLs},
		{name: "ll", usage: "ll [path]", help: "list directory with details", run: cmdLl},
		{name: "cd", usage: "cd [path]", help: "change current directory", run: cmdCd},
		{name: "pwd", help: "print current directory", run: cmdPwd},
		{name: "get", usage: "get <remote> [local]", help: "copy a file from the server", run: cmdGet},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, cmd := range commandTable {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

// exec runs one line of user input. It returns true when the client should
// exit.
func (c *Client) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		c.prompt()
		return false
	}

	cmd, ok := lookupCommand(fields[0])
	switch {
	case !ok:
		fmt.Fprintf(c.out, "unknown command: %s\n", fields[0])
		c.prompt()
		return false
	case c.op != "" && cmd.name != "exit" && cmd.name != "quit":
		fmt.Fprintf(c.out, "%s: %s is still running\n", cmd.name, c.op)
		return false
	}

	level.Debug(c.log).Log("msg", "executing command", "line", line)
	err := cmd.run(c, fields[1:])
	if errors.Is(err, errExit) {
		return true
	} else if err != nil {
		fmt.Fprintf(c.out, "%s: %v\n", cmd.name, err)
	}
	c.prompt()
	return false
}

// start marks the command name as running once its first request was sent.
func (c *Client) start(name string, err error) error {
	if err == nil {
		c.op = name
		c.setState(StateWaiting)
	}
	return err
}

// finish reports the outcome of the running command and returns to idle.
func (c *Client) finish(err error) {
	if err != nil {
		fmt.Fprintf(c.out, "failed with error: %v\n", err)
	}
	c.op = ""
	c.setState(StateIdle)
	c.prompt()
}

func printUsage(c *Client, name string) {
	cmd, _ := lookupCommand(name)
	usage := cmd.usage
	if usage == "" {
		usage = cmd.name
	}
	fmt.Fprintf(c.out, "usage: %s\n", usage)
}

func wantsHelp(args []string) bool {
	return len(args) > 0 && (args[0] == "-h" || args[0] == "--help")
}

func cmdExit(*Client, []string) error { return errExit }

func cmdHelp(c *Client, _ []string) error {
	fmt.Fprintln(c.out, "commands:")
	for _, cmd := range commandTable {
		name := cmd.usage
		if name == "" {
			name = cmd.name
		}
		fmt.Fprintf(c.out, "  %-22s %s\n", name, cmd.help)
	}
	return nil
}

func cmdDmesg(c *Client, _ []string) error {
	if c.o.History == nil {
		return errors.New("no log history available")
	}
	for _, line := range c.o.History.Lines() {
		fmt.Fprintln(c.out, line)
	}
	fmt.Fprintf(c.out, "client state: %s\n", c.State())
	return nil
}

func cmdSelftest(c *Client, _ []string) error {
	c.selftest = newSelftest(c, selftestCases)
	c.op = "selftest"
	c.setState(StateSelfTest)
	c.selftest.begin()
	return nil
}

func cmdPwd(c *Client, args []string) error {
	if wantsHelp(args) {
		printUsage(c, "pwd")
		return nil
	}
	return c.start("pwd", c.getCurrentDir(func(r *isobusfs.GetCurrentDirResponse, err error) {
		if err == nil {
			fmt.Fprintln(c.out, r.Name)
		}
		c.finish(err)
	}))
}

func cmdCd(c *Client, args []string) error {
	if wantsHelp(args) {
		printUsage(c, "cd")
		return nil
	}
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	return c.start("cd", c.changeDir(path, func(_ *isobusfs.ChangeCurrentDirResponse, err error) {
		c.finish(err)
	}))
}

func cmdLs(c *Client, args []string) error {
	l := &listing{c: c, handle: isobusfs.InvalidHandle}
	path := "."
	for _, arg := range args {
		switch {
		case arg == "-h" || arg == "--help":
			printUsage(c, "ls")
			return nil
		case arg == "-l":
			l.long = true
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown option %s", arg)
		default:
			path = arg
		}
	}
	return c.start("ls", l.start(path))
}

func cmdLl(c *Client, args []string) error {
	if wantsHelp(args) {
		printUsage(c, "ll")
		return nil
	}
	return cmdLs(c, append([]string{"-l"}, args...))
}

func cmdGet(c *Client, args []string) error {
	if wantsHelp(args) || len(args) == 0 || len(args) > 2 {
		printUsage(c, "get")
		return nil
	}
	d := &download{c: c, remote: args[0], handle: isobusfs.InvalidHandle}
	if len(args) == 2 {
		d.local = args[1]
	} else {
		d.local = baseName(d.remote)
	}
	if d.local == "" {
		return fmt.Errorf("can't derive a local file name from %q", d.remote)
	}
	return c.start("get", d.start())
}

// baseName returns the last element of an ISOBUS path.
func baseName(p string) string {
	return p[strings.LastIndexAny(p, `\/`)+1:]
}

// listing walks a directory: Seek to the entries already seen, then Read,
// until the server reports no more entries.
type listing struct {
	c      *Client
	long   bool
	handle uint8
	seen   int
}

func (l *listing) start(path string) error {
	return l.c.openFile(path, isobusfs.OpenFlags(isobusfs.AccessDirectory), l.opened)
}

func (l *listing) opened(r *isobusfs.OpenFileResponse, err error) {
	if err != nil {
		l.c.finish(err)
		return
	}
	l.handle = r.Handle
	l.next()
}

func (l *listing) next() {
	if err := l.c.seekFile(l.handle, isobusfs.SeekSet, int32(l.seen), l.seeked); err != nil {
		l.fail(err)
	}
}

func (l *listing) seeked(_ *isobusfs.SeekFileResponse, err error) {
	switch {
	case errors.Is(err, isobusfs.ErrorEndOfFile):
		l.close()
	case err != nil:
		l.fail(err)
	default:
		if err := l.c.readFile(l.handle, readChunk, l.read); err != nil {
			l.fail(err)
		}
	}
}

func (l *listing) read(r *isobusfs.ReadFileResponse, err error) {
	switch {
	case errors.Is(err, isobusfs.ErrorEndOfFile):
		l.close()
		return
	case err != nil:
		l.fail(err)
		return
	case len(r.Data) == 0:
		l.close()
		return
	}

	entries, err := isobusfs.ParseDirEntries(r.Data)
	for _, e := range entries {
		l.print(e)
	}
	l.seen += len(entries)
	if err != nil {
		l.fail(fmt.Errorf("parsing directory entries: %w", err))
		return
	}
	l.next()
}

// maxListName is the longest name printed in a long listing.
const maxListName = 100

func (l *listing) print(e isobusfs.DirEntry) {
	if !l.long {
		fmt.Fprintln(l.c.out, e.Name)
		return
	}

	kind, write := '-', 'w'
	if e.IsDir() {
		kind = 'd'
	}
	if e.Attributes&isobusfs.AttrReadOnly != 0 {
		write = '-'
	}
	name := e.Name
	if len(name) > maxListName {
		name = name[:maxListName-2] + ".."
	}
	fmt.Fprintf(l.c.out, "%c%c%c  %d  %s  %s  %s\n",
		kind, 'r', write, e.Size,
		e.Modified.Format("2006-01-02"), e.Modified.Format("15:04:05"),
		name)
}

func (l *listing) close() {
	fmt.Fprintf(l.c.out, "Entries found: %d\n", l.seen)
	err := l.c.closeFile(l.handle, func(_ *isobusfs.CloseFileResponse, err error) {
		l.c.finish(err)
	})
	if err != nil {
		l.c.finish(err)
	}
}

func (l *listing) fail(err error) {
	l.c.closeQuietly(l.handle)
	l.c.finish(err)
}

// download copies a remote file: Seek to the bytes already received, then
// Read, until the server reports the end of the file.
type download struct {
	c      *Client
	remote string
	local  string
	file   *os.File
	handle uint8
	offset uint32
}

func (d *download) start() error {
	return d.c.openFile(d.remote, isobusfs.OpenFlags(isobusfs.AccessReadOnly), d.opened)
}

func (d *download) opened(r *isobusfs.OpenFileResponse, err error) {
	if err != nil {
		d.fail(err)
		return
	}
	d.handle = r.Handle

	if d.file, err = os.Create(d.local); err != nil {
		d.fail(err)
		return
	}
	d.next()
}

// next seeks to the first byte not received yet. Seek offsets are signed
// 32-bit values, so larger files cannot be resumed.
func (d *download) next() {
	if d.offset > math.MaxInt32 {
		d.fail(fmt.Errorf("offset %d exceeds the largest seek offset %d", d.offset, math.MaxInt32))
		return
	}
	if err := d.c.seekFile(d.handle, isobusfs.SeekSet, int32(d.offset), d.seeked); err != nil {
		d.fail(err)
	}
}

func (d *download) seeked(r *isobusfs.SeekFileResponse, err error) {
	switch {
	case err != nil:
		d.fail(err)
	case r.Position != d.offset:
		d.fail(fmt.Errorf("server moved to offset %d, expected %d", r.Position, d.offset))
	default:
		if err := d.c.readFile(d.handle, readChunk, d.read); err != nil {
			d.fail(err)
		}
	}
}

func (d *download) read(r *isobusfs.ReadFileResponse, err error) {
	switch {
	case errors.Is(err, isobusfs.ErrorEndOfFile):
		d.close()
		return
	case err != nil:
		d.fail(err)
		return
	case len(r.Data) == 0:
		d.close()
		return
	}

	if _, err := d.file.Write(r.Data); err != nil {
		d.fail(err)
		return
	}
	d.offset += uint32(len(r.Data))
	d.next()
}

func (d *download) close() {
	err := d.c.closeFile(d.handle, func(_ *isobusfs.CloseFileResponse, err error) {
		if cerr := d.file.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			fmt.Fprintln(d.c.out, "File transfer failed.")
		} else {
			level.Info(d.c.log).Log("msg", "file transfer completed", "remote", d.remote, "local", d.local, "bytes", d.offset)
			fmt.Fprintln(d.c.out, "File transfer completed.")
		}
		d.c.finish(err)
	})
	if err != nil {
		d.fail(err)
	}
}

func (d *download) fail(err error) {
	d.c.closeQuietly(d.handle)
	d.handle = isobusfs.InvalidHandle
	if d.file != nil {
		d.file.Close()
	}
	fmt.Fprintln(d.c.out, "File transfer failed.")
	d.c.finish(err)
}
