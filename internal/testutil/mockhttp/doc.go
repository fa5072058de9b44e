// Package mockhttp serves a fake attestation backend for tests: a token
// endpoint shaped like the integrity sidecar and a verification endpoint
// shaped like the payment backend.
//
//	srv := mockhttp.New().Token("tok-123").Verdict(true, "").Build(t)
//	client := integrity.NewHTTPProvider(srv.TokenURL(), 0, srv.Client())
//
// Requests are captured for assertions:
//
//	reqs := srv.Requests(mockhttp.VerifyPath)
package mockhttp
