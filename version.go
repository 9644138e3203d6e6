// Package parley provides the version information for parley.
package parley

// Version is the current version of parley.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
