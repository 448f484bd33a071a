package mcp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	headerClientID  = "x-client-id"
	headerTS        = "x-ts"
	headerSignature = "x-signature"
	headerNonce     = "x-nonce"

	signatureWindow = 5 * time.Minute
)

// authError is a rejected request; status is the HTTP status to answer with.
type authError struct {
	status int
	msg    string
}

func (e *authError) Error() string { return e.msg }

func unauthorized(msg string) *authError {
	return &authError{status: http.StatusUnauthorized, msg: msg}
}

// signedRequest is a request whose signature checked out.
type signedRequest struct {
	clientID  string
	signature string
	legacy    bool
}

// canonicalString is the legacy form without client and nonce.
func canonicalString(ts, method, path string, body []byte) string {
	return strings.Join([]string{ts, strings.ToUpper(method), path, string(body)}, "\n")
}

// canonicalStringV2 binds the signature to the client id and a nonce.
func canonicalStringV2(ts, method, path, clientID, nonce string, body []byte) string {
	return strings.Join([]string{
		ts, strings.ToUpper(method), path, strings.TrimSpace(clientID), strings.TrimSpace(nonce), string(body),
	}, "\n")
}

func signHMAC(secret []byte, canonical string) string {
	h := hmac.New(sha256.New, secret)
	_, _ = h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// verifier checks x-signature headers against a shared secret.
type verifier struct {
	secret      []byte
	allowLegacy bool
}

func (v verifier) verify(r *http.Request, body []byte, now time.Time) (signedRequest, error) {
	h := func(name string) string { return strings.TrimSpace(r.Header.Get(name)) }
	clientID, tsStr, sig, nonce := h(headerClientID), h(headerTS), strings.ToLower(h(headerSignature)), h(headerNonce)
	switch {
	case clientID == "":
		return signedRequest{}, unauthorized("missing " + headerClientID)
	case tsStr == "":
		return signedRequest{}, unauthorized("missing " + headerTS)
	case sig == "":
		return signedRequest{}, unauthorized("missing " + headerSignature)
	case nonce == "" && !v.allowLegacy:
		return signedRequest{}, unauthorized("missing " + headerNonce)
	}

	tsMS, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return signedRequest{}, unauthorized("bad " + headerTS)
	}
	if skew := now.Sub(time.UnixMilli(tsMS)); skew > signatureWindow || skew < -signatureWindow {
		return signedRequest{}, unauthorized(headerTS + " outside window")
	}

	if nonce != "" && hmac.Equal([]byte(sig), []byte(signHMAC(v.secret, canonicalStringV2(tsStr, r.Method, r.URL.Path, clientID, nonce, body)))) {
		return signedRequest{clientID: clientID, signature: sig}, nil
	}
	if v.allowLegacy && hmac.Equal([]byte(sig), []byte(signHMAC(v.secret, canonicalString(tsStr, r.Method, r.URL.Path, body)))) {
		return signedRequest{clientID: clientID, signature: sig, legacy: true}, nil
	}
	if nonce == "" {
		return signedRequest{}, unauthorized("missing " + headerNonce)
	}
	return signedRequest{}, unauthorized("bad signature")
}

// requireLoopback guards the unauthenticated mode.
func requireLoopback(r *http.Request) error {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil && ip.IsLoopback() {
		return nil
	}
	return &authError{status: http.StatusForbidden, msg: "forbidden: non-loopback client"}
}
