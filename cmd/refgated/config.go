package main

import (
	"flag"
	"strconv"
	"strings"

	"github.com/refgate/refgate/internal/config"
)

type options struct {
	configPath string
	ports      string
	ctrlPorts  string
	workers    int
	backlog    int
	mode       string
	key        int
	workDir    string
	logLevel   string
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("refgated", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "path to a TOML config file")
	fs.StringVar(&opts.ports, "ports", "", "comma-separated data ports (0 = OS-assigned)")
	fs.StringVar(&opts.ctrlPorts, "control-ports", "", "control and flush port, comma-separated")
	fs.IntVar(&opts.workers, "workers", 0, "handler pool size per port (1-10)")
	fs.IntVar(&opts.backlog, "backlog", -1, "pending connection queue bound per port")
	fs.StringVar(&opts.mode, "mode", "", "private or public")
	fs.IntVar(&opts.key, "key", 0, "shared session key")
	fs.StringVar(&opts.workDir, "workdir", "", "directory for the discovery file")
	fs.StringVar(&opts.logLevel, "log-level", "", "zerolog level")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// buildConfig layers flags over the optional TOML file over the defaults.
func buildConfig(opts options) (config.Server, error) {
	var cfg config.Server
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath, opts.key)
		if err != nil {
			return config.Server{}, err
		}
		cfg = loaded
	} else {
		cfg = config.DefaultServer(opts.key)
	}

	if opts.ports != "" {
		ports, err := parsePortList(opts.ports)
		if err != nil {
			return config.Server{}, err
		}
		cfg.Ports = ports
	}
	if opts.ctrlPorts != "" {
		ports, err := parsePortList(opts.ctrlPorts)
		if err != nil {
			return config.Server{}, err
		}
		cfg.ControlPorts = ports
	}
	if opts.workers != 0 {
		cfg.Workers = opts.workers
	}
	if opts.backlog >= 0 {
		cfg.Backlog = opts.backlog
	}
	if opts.mode != "" {
		cfg.Mode = config.Mode(opts.mode)
	}
	if opts.key != 0 {
		cfg.Key = opts.key
	}
	if opts.workDir != "" {
		cfg.WorkDir = opts.workDir
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return config.Server{}, err
	}
	return cfg, nil
}

func parsePortList(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	ports := make([]int, 0, len(parts))
	for _, part := range parts {
		p, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		ports = append(ports, p)
	}
	return ports, nil
}
