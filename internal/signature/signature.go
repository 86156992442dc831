// Package signature authenticates inbound webhook callbacks.
//
// The upstream signs the exact raw request body with HMAC keyed by a shared
// secret and sends the hex digest in a header. Some deployments prefix the
// digest with an algorithm tag (e.g. "sha256="), others send it bare; the
// Verifier is configured for exactly one convention.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
)

// DefaultHeader is the header Neynar uses for webhook signatures.
const DefaultHeader = "X-Neynar-Signature"

var (
	// ErrMissingSignature is returned when the header or the secret is empty.
	ErrMissingSignature = errors.New("signature: missing signature")
	// ErrInvalidSignature is returned when the digest does not match the body.
	ErrInvalidSignature = errors.New("signature: invalid signature")
)

// Options configures a Verifier.
type Options struct {
	Secret string
	Digest string // "sha256" (default) or "sha512"
	Prefix string // stripped from the header before comparison, e.g. "sha256="
}

// Verifier checks HMAC signatures over raw request bodies.
type Verifier struct {
	secret []byte
	digest string
	newMAC func() hash.Hash
	prefix string
}

// New creates a Verifier. An empty secret yields a disabled verifier that
// rejects everything; callers check Enabled to decide whether to verify.
func New(opts Options) (*Verifier, error) {
	digest := strings.ToLower(strings.TrimSpace(opts.Digest))
	var h func() hash.Hash
	switch digest {
	case "", "sha256":
		digest = "sha256"
		h = sha256.New
	case "sha512":
		h = sha512.New
	default:
		return nil, fmt.Errorf("signature: unsupported digest %q", opts.Digest)
	}
	return &Verifier{
		secret: []byte(opts.Secret),
		digest: digest,
		newMAC: h,
		prefix: strings.TrimSpace(opts.Prefix),
	}, nil
}

// Enabled reports whether a shared secret is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Digest returns the configured digest algorithm name.
func (v *Verifier) Digest() string { return v.digest }

// Verify returns nil when header carries a valid signature for body.
func (v *Verifier) Verify(body []byte, header string) error {
	if !v.Enabled() {
		return ErrMissingSignature
	}
	got := strings.TrimSpace(header)
	if got == "" {
		return ErrMissingSignature
	}
	if v.prefix != "" {
		if len(got) < len(v.prefix) || !strings.EqualFold(got[:len(v.prefix)], v.prefix) {
			return ErrInvalidSignature
		}
		got = got[len(v.prefix):]
	}
	if got == "" {
		return ErrMissingSignature
	}

	sig, err := hex.DecodeString(got)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(sig, v.sum(body)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the header value the upstream would send for body.
func (v *Verifier) Sign(body []byte) string {
	return v.prefix + hex.EncodeToString(v.sum(body))
}

func (v *Verifier) sum(body []byte) []byte {
	mac := hmac.New(v.newMAC, v.secret)
	mac.Write(body)
	return mac.Sum(nil)
}
