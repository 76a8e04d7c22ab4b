package signature

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// FinversePublicKey verifies the fv-signature header Finverse attaches to every webhook.
const FinversePublicKey = `-----BEGIN PUBLIC KEY-----
MFkwEwYHKoZIzj0CAQYIKoZIzj0DAQcDQgAEuZId/6U0gKLodSihwC/EuMGtULx8
G3r7X7nZ3KWO5uNVtRTC64MH/1faq9zRp/2iIjCT8erSxiyO6y8wnlqMqw==
-----END PUBLIC KEY-----`

// VerificationError is returned when verification could not run at all.
// A signature that simply does not match is reported as false, not as an error.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return "signature verification error: " + e.Reason
}

// Verifier checks ECDSA-with-SHA-256 signatures over raw request bodies.
type Verifier struct {
	key *ecdsa.PublicKey
}

// NewVerifier parses a PKIX PEM-encoded P-256 public key.
func NewVerifier(pemKey string) (*Verifier, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemKey)))
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	ecKey, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("not an ECDSA public key")
	}
	if ecKey.Curve != elliptic.P256() {
		return nil, fmt.Errorf("unsupported curve %s", ecKey.Curve.Params().Name)
	}

	return &Verifier{key: ecKey}, nil
}

// NewFinverseVerifier returns a verifier for the embedded Finverse key.
func NewFinverseVerifier() (*Verifier, error) {
	return NewVerifier(FinversePublicKey)
}

// Verify reports whether signatureBase64 is a valid signature of rawBody.
// rawBody must be the bytes exactly as received; re-encoded JSON will not verify.
func (v *Verifier) Verify(rawBody []byte, signatureBase64 string) (bool, error) {
	if v == nil || v.key == nil {
		return false, &VerificationError{Reason: "verifier has no public key"}
	}

	sig := strings.TrimSpace(signatureBase64)
	if sig == "" {
		return false, nil
	}

	der, err := decodeBase64(sig)
	if err != nil {
		return false, nil
	}

	r, s, ok := parseDERSignature(der)
	if !ok {
		return false, nil
	}

	digest := sha256.Sum256(rawBody)
	return ecdsa.Verify(v.key, digest[:], r, s), nil
}

// decodeBase64 rejects non-zero padding bits so each signature has exactly one
// accepted text form.
func decodeBase64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.Strict().DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.Strict().DecodeString(s)
}

// parseDERSignature reads SEQUENCE { INTEGER r, INTEGER s } with no trailing data.
func parseDERSignature(der []byte) (*big.Int, *big.Int, bool) {
	var (
		r, s  = new(big.Int), new(big.Int)
		inner cryptobyte.String
	)

	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(s) ||
		!inner.Empty() {
		return nil, nil, false
	}

	if r.Sign() <= 0 || s.Sign() <= 0 {
		return nil, nil, false
	}

	return r, s, true
}
