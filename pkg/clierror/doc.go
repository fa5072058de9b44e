// Package clierror provides structured error handling for CLI commands.
//
// CLI errors include an exit code, user-facing message, and optional
// troubleshooting hints. Domain errors are translated here so raw
// platform codes and internal details never reach the operator.
//
// # Usage
//
//	if err != nil {
//	    return clierror.FromError(err)
//	}
package clierror
