// Package uploads persists files received through form submissions.
//
// Files are written below the upload directory as "<ULID>_<basename>" and
// described by a Record in a Badger index keyed by the same ULID, so that
// the index iterates in arrival order. Each record carries the BLAKE2b-256
// digest of the stored bytes. Submissions are kept in the same index under
// their own key prefix and point at the records of their files. Without an
// index directory Badger runs in memory.
package uploads
