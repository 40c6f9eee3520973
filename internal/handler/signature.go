package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrMissingSignature = errors.New("missing x-signature header")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// SignatureVerifier checks Mercado Pago's x-signature header. A verifier
// with an empty secret accepts everything.
type SignatureVerifier struct {
	secret []byte
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

func (v *SignatureVerifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Verify validates header (ts=<ts>,v1=<hex hmac>) for the given data id and
// x-request-id.
func (v *SignatureVerifier) Verify(header, dataID, requestID string) error {
	if !v.Enabled() {
		return nil
	}
	if header == "" {
		return ErrMissingSignature
	}

	ts, sig := parseSignatureHeader(header)
	if ts == "" || sig == "" {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(signatureManifest(dataID, requestID, ts)))
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// signatureManifest leaves out the parts that were not sent.
func signatureManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")
	return b.String()
}

func parseSignatureHeader(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	return ts, v1
}
