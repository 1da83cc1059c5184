// Package filecache provides the in-memory LRU cache of static file content.
//
// Cache bounds the number of entries and their age since insertion, and
// re-checks the file's modification time and size on every Get so that an
// edited file is never served from memory. All cache state is guarded by one
// mutex; file reads happen outside it in Loader, which collapses concurrent
// misses for the same path.
package filecache
