package config

import "os"

// ExpandEnv expands environment variables in YAML content using Go's
// standard shell-style syntax (${VAR} and $VAR). Missing variables expand
// to the empty string; the Validator catches any required field left
// empty as a result.
func ExpandEnv(data []byte) []byte {
	return []byte(os.Expand(string(data), os.Getenv))
}
