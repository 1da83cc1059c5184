// Package render produces the HTML pages the server generates itself:
// directory listings, the status dashboard and fallback error pages.
//
// Templates are parsed once with html/template, so every name coming from
// the file system or the request is escaped. Sizes and counters are
// formatted with go-humanize.
package render
