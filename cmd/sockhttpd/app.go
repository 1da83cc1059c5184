package main

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/sockhttpd/internal/infra/buildinfo"
)

// overrideFlag maps a command line flag to its configuration key.
type overrideFlag struct {
	flag string
	key  string
}

// overrideFlags lists the flags that override configuration values.
var overrideFlags = []overrideFlag{
	{"host", "server.host"},
	{"port", "server.port"},
	{"root", "server.document_root"},
	{"threads", "server.max_threads"},
	{"queue", "server.connection_queue"},
	{"tls", "tls.enabled"},
	{"cert", "tls.cert_file"},
	{"key", "tls.key_file"},
	{"listing", "http.directory_listing"},
	{"cache", "cache.enabled"},
	{"log-level", "log.level"},
	{"log-format", "log.format"},
}

// App creates the command line application.
func App() *cli.App {
	return &cli.App{
		Name:    "sockhttpd",
		Usage:   "standalone HTTP/1.1 file server",
		Version: buildinfo.String(),
		Flags:   serveFlags(),
		Action:  serveAction,
		Commands: []*cli.Command{
			GenCertCommand(),
		},
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the YAML configuration file",
			EnvVars: []string{"SOCKHTTPD_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "host",
			Usage: "Listen host",
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Listen port",
		},
		&cli.StringFlag{
			Name:    "root",
			Aliases: []string{"d"},
			Usage:   "Document root",
		},
		&cli.IntFlag{
			Name:  "threads",
			Usage: "Number of connection workers",
		},
		&cli.IntFlag{
			Name:  "queue",
			Usage: "Accepted connections waiting for a worker",
		},
		&cli.BoolFlag{
			Name:  "tls",
			Usage: "Serve HTTPS",
		},
		&cli.StringFlag{
			Name:  "cert",
			Usage: "TLS certificate file (PEM)",
		},
		&cli.StringFlag{
			Name:  "key",
			Usage: "TLS private key file (PEM)",
		},
		&cli.BoolFlag{
			Name:  "listing",
			Usage: "Enable directory listings",
		},
		&cli.BoolFlag{
			Name:  "cache",
			Usage: "Enable the in-memory file cache",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: json, text",
		},
	}
}

// overrides collects the flags set on the command line keyed by their
// configuration key.
func overrides(c *cli.Context) map[string]any {
	values := make(map[string]any)
	for _, f := range overrideFlags {
		if c.IsSet(f.flag) {
			values[f.key] = c.Value(f.flag)
		}
	}
	return values
}
