// Package main provides the entry point for sockhttpd.
//
// sockhttpd is a standalone HTTP/1.1 server for static content. It serves
// files from a document root over its own socket layer with a fixed worker
// pool, optional TLS, an in-memory file cache, form submissions with file
// uploads and a status page.
//
// Usage:
//
//	sockhttpd [flags]
//	sockhttpd --config /etc/sockhttpd/config.yaml
//	sockhttpd --root ./www --port 8443 --tls --cert server.crt --key server.key
//	sockhttpd gencert --host localhost --cert server.crt --key server.key
//
// Configuration is read from the YAML file, then SOCKHTTPD_* environment
// variables, then command line flags.
package main
