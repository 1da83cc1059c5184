// Package tlscert manages the server certificate.
//
// A Store holds the current key pair and serves it through
// tls.Config.GetCertificate, so a renewed certificate is picked up by new
// handshakes without a restart. Watch wires the store to a file watcher.
// LoadClientCAs builds the pool used to verify client certificates.
package tlscert
