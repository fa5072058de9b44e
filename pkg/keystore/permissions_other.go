//go:build !unix

package keystore

// Non-unix hosts rely on the per-user profile directory ACLs.

func checkFilePermissions(string) error { return nil }

func checkDirPermissions(string) error { return nil }

func setFilePermissions(string) error { return nil }
