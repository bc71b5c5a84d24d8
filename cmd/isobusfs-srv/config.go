package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/linux-can/can-utils-sub000/internal/cmdutil"
	"github.com/linux-can/can-utils-sub000/internal/isobusfs"
	"github.com/linux-can/can-utils-sub000/internal/isobusfs/server"
	"github.com/linux-can/can-utils-sub000/internal/j1939"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// config is the server configuration, read from an optional YAML file and
// overridden by flags.
type config struct {
	Interface         string          `yaml:"interface"`
	Address           string          `yaml:"address"`
	Name              string          `yaml:"name"`
	Volumes           []server.Volume `yaml:"volumes"`
	DefaultVolume     string          `yaml:"default_volume"`
	ServerVersion     int             `yaml:"server_version"`
	LogLevel          string          `yaml:"log_level"`
	MetricsListenAddr string          `yaml:"metrics_listen_addr"`
}

// flags holds the command line. Flags that were given replace the values
// of the configuration file.
type flags struct {
	fs *pflag.FlagSet

	configFile string
	ll         cmdutil.LogLevel
	iface      string
	addr       *cmdutil.HexUint64
	name       *cmdutil.HexUint64
	volumes    []string
	defaultVol string
	removable  []string
	writable   []string
	version    int
	metrics    string
}

func newFlags(name string) *flags {
	f := &flags{
		fs:   pflag.NewFlagSet(name, pflag.ContinueOnError),
		addr: cmdutil.NewHexUint8(j1939.IdleAddr),
		name: cmdutil.NewHexUint64(j1939.NoName),
	}
	fs := f.fs
	fs.StringVarP(&f.configFile, "config", "c", "", "YAML configuration file")
	fs.VarP(&f.ll, "log-level", "l", "logging level (0-4 or error, warn, info, debug)")
	fs.StringVarP(&f.iface, "interface", "i", "", "CAN interface to use")
	fs.VarP(f.addr, "address", "a", "local J1939 address in hex")
	fs.VarP(f.name, "name", "n", "local J1939 NAME in hex")
	fs.StringArrayVarP(&f.volumes, "volume", "v", nil, "volume to export as <name>:<path>, may be repeated")
	fs.StringVarP(&f.defaultVol, "default-volume", "d", "", "volume new clients start in, required with more than one volume")
	fs.StringSliceVarP(&f.removable, "removable-volume", "r", nil, "comma-separated names of removable volumes")
	fs.StringSliceVarP(&f.writable, "writeable-volume", "w", nil, "comma-separated names of writable volumes")
	fs.IntVarP(&f.version, "server-version", "s", isobusfs.DefaultServerVersion, "protocol version reported to clients")
	fs.StringVar(&f.metrics, "metrics.listen-addr", "", "address to serve metrics and debug endpoints on, disabled when empty")
	return f
}

// load parses args and merges them with the configuration file.
func (f *flags) load(args []string) (*config, error) {
	if err := f.fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &config{ServerVersion: isobusfs.DefaultServerVersion}
	if f.configFile != "" {
		b, err := os.ReadFile(f.configFile)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f.configFile, err)
		}
	}

	changed := f.fs.Changed
	if changed("interface") {
		cfg.Interface = f.iface
	}
	if changed("address") || changed("name") {
		cfg.Address, cfg.Name = "", ""
	}
	if changed("address") {
		cfg.Address = f.addr.String()
	}
	if changed("name") {
		cfg.Name = f.name.String()
	}
	if changed("volume") {
		cfg.Volumes = cfg.Volumes[:0]
		for _, arg := range f.volumes {
			v, err := parseVolume(arg)
			if err != nil {
				return nil, err
			}
			cfg.Volumes = append(cfg.Volumes, v)
		}
	}
	if changed("default-volume") {
		cfg.DefaultVolume = f.defaultVol
	}
	if err := markVolumes(cfg.Volumes, f.removable, func(v *server.Volume) { v.Removable = true }); err != nil {
		return nil, fmt.Errorf("removable volume: %w", err)
	}
	if err := markVolumes(cfg.Volumes, f.writable, func(v *server.Volume) { v.Writable = true }); err != nil {
		return nil, fmt.Errorf("writeable volume: %w", err)
	}
	if changed("server-version") {
		cfg.ServerVersion = f.version
	}
	if changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = f.ll.String()
	}
	if changed("metrics.listen-addr") {
		cfg.MetricsListenAddr = f.metrics
	}
	return cfg, nil
}

func parseVolume(arg string) (server.Volume, error) {
	name, path, ok := strings.Cut(arg, ":")
	if !ok || name == "" || path == "" {
		return server.Volume{}, fmt.Errorf("invalid volume %q, expected <name>:<path>", arg)
	}
	return server.Volume{Name: name, Path: path}, nil
}

func markVolumes(vols []server.Volume, names []string, mark func(v *server.Volume)) error {
outer:
	for _, name := range names {
		for i := range vols {
			if vols[i].Name == name {
				mark(&vols[i])
				continue outer
			}
		}
		return fmt.Errorf("%s is not defined", name)
	}
	return nil
}

// settings is a validated config.
type settings struct {
	iface   string
	name    uint64
	addr    uint8
	ll      cmdutil.LogLevel
	metrics string
	server  server.Options
}

func (c *config) validate() (*settings, error) {
	s := &settings{
		iface:   c.Interface,
		addr:    j1939.IdleAddr,
		name:    j1939.NoName,
		metrics: c.MetricsListenAddr,
		server:  server.DefaultOptions,
	}
	if err := s.ll.Set(c.LogLevel); err != nil {
		return nil, err
	}

	switch {
	case c.Interface == "":
		return nil, fmt.Errorf("interface is missing")
	case c.Address != "" && c.Name != "":
		return nil, fmt.Errorf("local address and local name are mutually exclusive")
	case c.Address == "" && c.Name == "":
		return nil, fmt.Errorf("local address or local name is missing")
	case c.Address != "":
		addr := cmdutil.NewHexUint8(0)
		if err := addr.Set(c.Address); err != nil {
			return nil, fmt.Errorf("address: %w", err)
		}
		s.addr = uint8(addr.Value)
	default:
		name := cmdutil.NewHexUint64(0)
		if err := name.Set(c.Name); err != nil {
			return nil, fmt.Errorf("name: %w", err)
		}
		s.name = name.Value
	}

	switch {
	case len(c.Volumes) == 0:
		return nil, fmt.Errorf("volume is missing")
	case len(c.Volumes) > isobusfs.MaxVolumes:
		return nil, fmt.Errorf("too many volumes: %d > %d", len(c.Volumes), isobusfs.MaxVolumes)
	case len(c.Volumes) == 1 && c.DefaultVolume != "":
		return nil, fmt.Errorf("default volume is not needed for a single volume")
	case len(c.Volumes) > 1 && c.DefaultVolume == "":
		return nil, fmt.Errorf("default volume is missing")
	}
	for _, v := range c.Volumes {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	if c.ServerVersion < 1 || c.ServerVersion > 255 {
		return nil, fmt.Errorf("invalid server version %d", c.ServerVersion)
	}

	s.server.Volumes = c.Volumes
	s.server.DefaultVolume = c.DefaultVolume
	s.server.Name = s.name
	s.server.Version = uint8(c.ServerVersion)
	return s, nil
}
