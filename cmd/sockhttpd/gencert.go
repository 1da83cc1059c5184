package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sockhttpd/internal/infra/tlscert"
)

// GenCertCommand writes a self-signed key pair for local HTTPS.
func GenCertCommand() *cli.Command {
	return &cli.Command{
		Name:  "gencert",
		Usage: "Generate a self-signed TLS certificate",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "host",
				Usage: "DNS name or IP address (repeatable)",
				Value: cli.NewStringSlice("localhost", "127.0.0.1"),
			},
			&cli.StringFlag{
				Name:  "cert",
				Usage: "Certificate output file",
				Value: "server.crt",
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "Private key output file",
				Value: "server.key",
			},
			&cli.DurationFlag{
				Name:  "valid-for",
				Usage: "Certificate lifetime",
				Value: 365 * 24 * time.Hour,
			},
		},
		Action: genCertAction,
	}
}

func genCertAction(c *cli.Context) error {
	hosts := c.StringSlice("host")
	if len(hosts) == 0 {
		return fmt.Errorf("at least one --host is required")
	}
	if c.Duration("valid-for") <= 0 {
		return fmt.Errorf("--valid-for must be positive")
	}

	certFile, keyFile := c.String("cert"), c.String("key")
	if err := tlscert.WriteSelfSigned(certFile, keyFile, hosts, c.Duration("valid-for")); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s and %s for %v\n", certFile, keyFile, hosts)
	return nil
}
