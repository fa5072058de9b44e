// Package cli runs cobra commands in tests and asserts on their output.
//
//	result := cli.Run(rootCmd, "check", "-o", "json")
//	result.AssertSuccess(t)
//	result.AssertContains(t, `"status": "SUCCESS"`)
//
// RunWithInput feeds stdin, for commands that read secrets or PINs:
//
//	result := cli.RunWithInput(rootCmd, "1234\n", "confirm-payment", "500", "Amina")
//
// Commands that fail are expected to return a typed error; ExitCode
// reports the process status that error would produce.
package cli
