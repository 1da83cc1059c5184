// Package handler turns parsed requests into responses.
//
// A Handler routes by method and path:
//
//   - GET and HEAD serve the status page, the metrics text and static files
//     from the document root (index file, directory listing, conditional 304)
//   - POST to the submit path accepts form, JSON and multipart submissions
//   - OPTIONS answers with the allowed methods
//   - anything else is 405
//
// Every response, error pages included, passes through one finalizer that adds
// the security and CORS headers. Panics are recovered into a 500.
//
// The handler never touches the socket. It receives a fully read *http1.Request
// and returns a buffered *http1.Response for the connection loop to write.
package handler
