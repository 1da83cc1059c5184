// Package confloader loads configuration with koanf.
//
// Sources, highest priority first:
//
//  1. Overrides (command-line flags)
//  2. Environment variables (SOCKHTTPD_ prefix)
//  3. YAML configuration file
//  4. Defaults already present in the target struct
//
// A Watcher reports writes to the configuration file so the caller can
// reload it.
package confloader
