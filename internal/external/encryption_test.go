package external

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrips(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	enc, err := NewChaCha20Poly1305Encryptor(key)
	require.NoError(t, err)

	plaintext := []byte(`{"cardholder":"Ash Ketchum","token":"tok_visa_4242"}`)
	opaque, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEmpty(t, opaque)

	decrypted, err := enc.Decrypt(opaque)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	key := make([]byte, 32)
	enc, err := NewChaCha20Poly1305Encryptor(key)
	require.NoError(t, err)

	opaque, err := enc.Encrypt([]byte("billing address line"))
	require.NoError(t, err)

	tampered := opaque[:len(opaque)-4] + "abcd"
	_, err = enc.Decrypt(tampered)
	require.Error(t, err)
}
