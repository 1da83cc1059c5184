// Package http1 implements the HTTP/1.x wire protocol used by the server.
//
// It turns a buffered byte stream into Request values and Response values
// back into bytes. The package performs no IO beyond the reader and writer it
// is given and holds no state between messages, so one Parser and one Builder
// can be shared by every worker.
//
// Supported framing is Content-Length only. Request bodies are bounded before
// they are read; multipart/form-data and urlencoded bodies are decoded into
// Request.Form and Request.Files.
package http1
