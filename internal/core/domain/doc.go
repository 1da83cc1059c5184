// Package domain defines the data shared between the protocol engine and its
// collaborators.
//
// It has no IO dependencies. This package contains:
//
//   - Errors: the request-handling error taxonomy and its HTTP statuses
//   - Listing: directory listing data handed to renderers
//   - StatusSnapshot: server counters handed to the status endpoint
package domain
