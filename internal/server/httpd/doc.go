// Package httpd provides the connection layer of the server.
//
// A single accept loop pushes connections onto a bounded queue served by a
// fixed pool of workers. A full queue blocks the accept loop, so further
// clients wait in the kernel backlog. Each worker owns one connection at a
// time: it completes the TLS handshake when configured, then reads, answers
// and writes requests in order until the connection is closed, times out or
// the server shuts down.
//
// Requests are parsed with package http1 and answered by a Handler. Timeouts
// are per connection: the read timeout bounds one request once its first
// byte arrived, the idle timeout bounds the wait for the next request on a
// kept-alive connection.
package httpd
