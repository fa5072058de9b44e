package mockhttp

import (
	"net/http"
	"strings"
	"testing"
)

func TestBackend_RecordsRequests(t *testing.T) {
	t.Log("Posting to both endpoints and checking capture")
	be := New().Build(t)

	for _, url := range []string{be.TokenURL(), be.VerifyURL()} {
		resp, err := be.Client().Post(url, "application/json", strings.NewReader(`{"nonce":"n"}`))
		if err != nil {
			t.Fatalf("post %s: %v", url, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d", url, resp.StatusCode)
		}
	}

	reqs := be.Requests(TokenPath)
	if len(reqs) != 1 {
		t.Fatalf("expected 1 token request, got %d", len(reqs))
	}
	var body struct{ Nonce string }
	if err := reqs[0].Decode(&body); err != nil || body.Nonce != "n" {
		t.Errorf("captured body = %q, err %v", reqs[0].Body, err)
	}
}

func TestBackend_GetIsRejected(t *testing.T) {
	be := New().Build(t)
	resp, err := be.Client().Get(be.TokenURL())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}
