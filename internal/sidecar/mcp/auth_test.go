package mcp

import (
	"bytes"
	"net/http"
	"testing"
	"time"
)

func TestHMAC_SignAndVerify_Vector(t *testing.T) {
	secret := []byte("topsecret")
	ts := "1700000000000"
	method := "POST"
	path := "/mcp"
	body := []byte("{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"list_tools\"}")

	canon := canonicalString(ts, method, path, body)
	got := signHMAC(secret, canon)
	want := "8d8937fdcea524a9301a74e8e2e4b3ee64ea5ae993f29219d57d0cd3d276613b"
	if got != want {
		t.Fatalf("signature mismatch: got=%s want=%s", got, want)
	}

	v := verifier{secret: secret, allowLegacy: true}
	req, _ := http.NewRequest(method, "http://example.invalid"+path, bytes.NewReader(body))
	req.Header.Set(headerClientID, "client_1")
	req.Header.Set(headerTS, ts)
	req.Header.Set(headerSignature, want)

	sr, err := v.verify(req, body, time.UnixMilli(1700000000000))
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if sr.clientID != "client_1" || !sr.legacy {
		t.Fatalf("signed request = %+v", sr)
	}

	v.allowLegacy = false
	if _, err := v.verify(req, body, time.UnixMilli(1700000000000)); err == nil || err.Error() != "missing x-nonce" {
		t.Fatalf("legacy signature accepted with legacy disabled: %v", err)
	}
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	ae, ok := err.(*authError)
	if !ok {
		t.Fatalf("err=%v want *authError", err)
	}
	if ae.status != want {
		t.Fatalf("status=%d want %d (%s)", ae.status, want, ae.msg)
	}
}

func TestHMAC_Verify_Expired(t *testing.T) {
	secret := []byte("topsecret")
	ts := "1700000000000"
	body := []byte("{\"jsonrpc\":\"2.0\"}")
	sig := signHMAC(secret, canonicalString(ts, "POST", "/mcp", body))

	req, _ := http.NewRequest("POST", "http://example.invalid/mcp", bytes.NewReader(body))
	req.Header.Set(headerClientID, "client_1")
	req.Header.Set(headerTS, ts)
	req.Header.Set(headerSignature, sig)

	v := verifier{secret: secret, allowLegacy: true}
	_, err := v.verify(req, body, time.UnixMilli(1700000000000+301_000))
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestHMAC_Verify_NonceBindsClient(t *testing.T) {
	secret := []byte("topsecret")
	v := verifier{secret: secret}
	ts := "1700000000000"
	body := []byte("{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"list_tools\"}")
	sig := signHMAC(secret, canonicalStringV2(ts, "POST", "/mcp", "client_1", "n1", body))

	mk := func(client, nonce string) *http.Request {
		req, _ := http.NewRequest("POST", "http://example.invalid/mcp", bytes.NewReader(body))
		req.Header.Set(headerClientID, client)
		req.Header.Set(headerTS, ts)
		req.Header.Set(headerSignature, sig)
		if nonce != "" {
			req.Header.Set(headerNonce, nonce)
		}
		return req
	}
	now := time.UnixMilli(1700000000000)
	if sr, err := v.verify(mk("client_1", "n1"), body, now); err != nil || sr.legacy {
		t.Fatalf("expected v2 ok, got %+v %v", sr, err)
	}
	_, err := v.verify(mk("client_2", "n1"), body, now)
	assertStatus(t, err, http.StatusUnauthorized)
	if _, err := v.verify(mk("client_1", ""), body, now); err == nil || err.Error() != "missing x-nonce" {
		t.Fatalf("expected missing nonce, got %v", err)
	}
}

func TestRequireLoopback(t *testing.T) {
	cases := []struct {
		addr string
		ok   bool
	}{
		{"127.0.0.1:5555", true},
		{"[::1]:5555", true},
		{"10.0.0.2:5555", false},
		{"", false},
	}
	for _, tc := range cases {
		r, _ := http.NewRequest("POST", "http://example.invalid/mcp", nil)
		r.RemoteAddr = tc.addr
		err := requireLoopback(r)
		if (err == nil) != tc.ok {
			t.Fatalf("requireLoopback(%q) err=%v want ok=%v", tc.addr, err, tc.ok)
		}
		if err != nil {
			assertStatus(t, err, http.StatusForbidden)
		}
	}
}
