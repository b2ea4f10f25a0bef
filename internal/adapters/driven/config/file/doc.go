// Package file provides TOML-based application configuration stored on
// the local filesystem, with defaults applied for anything the file
// leaves out.
package file
