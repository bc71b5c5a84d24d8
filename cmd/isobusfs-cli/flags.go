package main

import (
	"fmt"

	"github.com/linux-can/can-utils-sub000/internal/cmdutil"
	"github.com/linux-can/can-utils-sub000/internal/j1939"
	"github.com/spf13/pflag"
)

type settings struct {
	iface       string
	local       j1939.Addr
	server      j1939.Addr
	interactive bool
	ll          cmdutil.LogLevel
	metrics     string
}

func newFlagSet(name string, s *settings) (*pflag.FlagSet, func() error) {
	var (
		fs         = pflag.NewFlagSet(name, pflag.ContinueOnError)
		localAddr  = cmdutil.NewHexUint8(j1939.NoAddr)
		localName  = cmdutil.NewHexUint64(j1939.NoName)
		remoteAddr = cmdutil.NewHexUint8(j1939.NoAddr)
		remoteName = cmdutil.NewHexUint64(j1939.NoName)
	)
	fs.StringVarP(&s.iface, "interface", "i", "", "CAN interface to use")
	fs.VarP(localAddr, "local-address", "a", "local J1939 address in hex")
	fs.VarP(localName, "local-name", "n", "local J1939 NAME in hex")
	fs.VarP(remoteAddr, "remote-address", "r", "file server J1939 address in hex")
	fs.VarP(remoteName, "remote-name", "m", "file server J1939 NAME in hex")
	fs.BoolVarP(&s.interactive, "interactive", "I", true, "read commands from standard input")
	fs.VarP(&s.ll, "log-level", "l", "logging level (0-4 or error, warn, info, debug)")
	fs.StringVar(&s.metrics, "metrics.listen-addr", "", "address to serve metrics and debug endpoints on, disabled when empty")

	validate := func() error {
		switch {
		case s.iface == "":
			return fmt.Errorf("interface not specified")
		case localAddr.IsSet && localName.IsSet:
			return fmt.Errorf("local address and local name are mutually exclusive")
		case remoteAddr.IsSet && remoteName.IsSet:
			return fmt.Errorf("remote address and remote name are mutually exclusive")
		}
		s.local = j1939.Addr{Name: localName.Value, Addr: uint8(localAddr.Value)}
		s.server = j1939.Addr{Name: remoteName.Value, Addr: uint8(remoteAddr.Value)}
		return nil
	}
	return fs, validate
}

func parseFlags(name string, args []string) (*settings, *pflag.FlagSet, error) {
	s := &settings{}
	fs, validate := newFlagSet(name, s)
	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	if err := validate(); err != nil {
		return nil, fs, err
	}
	return s, fs, nil
}
