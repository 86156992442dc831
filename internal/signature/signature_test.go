package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBody = []byte(`{"type":"cast.created","data":{"hash":"0xabc","text":"hi @castbot"}}`)

func newVerifier(t *testing.T, opts Options) *Verifier {
	t.Helper()
	v, err := New(opts)
	require.NoError(t, err)
	return v
}

func TestVerify_ValidSignature(t *testing.T) {
	v := newVerifier(t, Options{Secret: "s3cret"})
	assert.NoError(t, v.Verify(testBody, v.Sign(testBody)))
}

func TestVerify_SHA512(t *testing.T) {
	v := newVerifier(t, Options{Secret: "s3cret", Digest: "SHA512"})
	sig := v.Sign(testBody)
	assert.Len(t, sig, 128)
	assert.NoError(t, v.Verify(testBody, sig))
}

func TestVerify_UppercaseHexAccepted(t *testing.T) {
	v := newVerifier(t, Options{Secret: "s3cret"})
	assert.NoError(t, v.Verify(testBody, strings.ToUpper(v.Sign(testBody))))
}

func TestVerify_EveryBodyBitFlipRejected(t *testing.T) {
	v := newVerifier(t, Options{Secret: "s3cret"})
	sig := v.Sign(testBody)

	for i := range testBody {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), testBody...)
			mutated[i] ^= 1 << bit
			require.ErrorIs(t, v.Verify(mutated, sig), ErrInvalidSignature, "byte %d bit %d", i, bit)
		}
	}
}

func TestVerify_EverySignatureBitFlipRejected(t *testing.T) {
	v := newVerifier(t, Options{Secret: "s3cret"})
	raw := []byte(v.Sign(testBody))

	// Flip bits in the decoded digest by re-encoding mutated hex characters.
	for i := range raw {
		mutated := append([]byte(nil), raw...)
		if mutated[i] == '0' {
			mutated[i] = '1'
		} else {
			mutated[i] = '0'
		}
		assert.Error(t, v.Verify(testBody, string(mutated)), "position %d", i)
	}
}

func TestVerify_MissingHeader(t *testing.T) {
	v := newVerifier(t, Options{Secret: "s3cret"})
	assert.ErrorIs(t, v.Verify(testBody, ""), ErrMissingSignature)
	assert.ErrorIs(t, v.Verify(testBody, "   "), ErrMissingSignature)
}

func TestVerify_NoSecretRejects(t *testing.T) {
	signer := newVerifier(t, Options{Secret: "s3cret"})
	v := newVerifier(t, Options{})
	assert.False(t, v.Enabled())
	assert.ErrorIs(t, v.Verify(testBody, signer.Sign(testBody)), ErrMissingSignature)
}

func TestVerify_WrongSecret(t *testing.T) {
	signer := newVerifier(t, Options{Secret: "other"})
	v := newVerifier(t, Options{Secret: "s3cret"})
	assert.ErrorIs(t, v.Verify(testBody, signer.Sign(testBody)), ErrInvalidSignature)
}

func TestVerify_NotHex(t *testing.T) {
	v := newVerifier(t, Options{Secret: "s3cret"})
	assert.ErrorIs(t, v.Verify(testBody, "zz-not-hex"), ErrInvalidSignature)
}

func TestVerify_Prefix(t *testing.T) {
	v := newVerifier(t, Options{Secret: "s3cret", Prefix: "sha256="})
	sig := v.Sign(testBody)
	require.True(t, strings.HasPrefix(sig, "sha256="))

	assert.NoError(t, v.Verify(testBody, sig))
	assert.NoError(t, v.Verify(testBody, "SHA256="+strings.TrimPrefix(sig, "sha256=")))

	bare := strings.TrimPrefix(sig, "sha256=")
	assert.ErrorIs(t, v.Verify(testBody, bare), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify(testBody, "sha256="), ErrMissingSignature)
}

func TestVerify_BareVerifierRejectsPrefixedHeader(t *testing.T) {
	v := newVerifier(t, Options{Secret: "s3cret"})
	assert.ErrorIs(t, v.Verify(testBody, "sha256="+v.Sign(testBody)), ErrInvalidSignature)
}

func TestNew_UnsupportedDigest(t *testing.T) {
	_, err := New(Options{Secret: "x", Digest: "md5"})
	assert.Error(t, err)
}
