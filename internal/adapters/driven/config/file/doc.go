// Package file provides file-based implementations of driven port interfaces.
//
// Adapters:
//   - ConfigStore: TOML-backed key/value store behind `lakegate config get|set|path`
package file
