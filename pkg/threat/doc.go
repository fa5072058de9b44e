// Package threat detects compromised terminals: rooted devices, emulators,
// dynamic instrumentation and debug settings.
//
// Detection is a set of independent heuristic probes. A probe that fails
// (missing file, exec error, timeout, panic) reports its error to the
// engine, which logs it and treats the signal as absent. A single broken
// probe therefore never fails or crashes a check; policy layers decide
// what an incomplete picture means.
//
// All probe data (paths, package names, property markers, ports) comes from
// a versioned Signatures table embedded in the binary and replaceable at
// runtime with Engine.UpdateSignatures.
package threat
