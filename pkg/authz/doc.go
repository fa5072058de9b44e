// Package authz gates sensitive terminal actions on the current security
// verdict using Cedar policies.
//
// All gating decisions flow through Authorizer.Authorize. A missing verdict
// or an unknown action denies without consulting the policy set.
//
// # Policy context
//
// Each request is evaluated with a context record built from the latest
// policy.InitializationResult:
//   - device_secure: the verdict admits the terminal
//   - critical_failures: number of blocking failures (Long)
//   - warnings: number of warnings (Long)
//   - failure_kinds: set of failure kind strings
//   - build_mode: "development" or "release"
//   - biometric_verified: the caller completed a biometric prompt
//
// # Usage
//
//	gate, err := authz.NewAuthorizer(authz.Config{Logger: logger, Status: status})
//	if err != nil {
//		return err
//	}
//	if err := gate.Require(ctx, authz.ActionPaymentConfirm, biometricOK); err != nil {
//		return err
//	}
//
// # Thread Safety
//
// Authorizer is safe for concurrent use. The Cedar policy set is immutable
// after construction.
package authz
