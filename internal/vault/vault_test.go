package vault

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hexKey   = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	otherKey = "1f1e1d1c1b1a191817161514131211100f0e0d0c0b0a09080706050403020100"
)

func TestEncryptDecrypt(t *testing.T) {
	s, err := New(hexKey)
	require.NoError(t, err)

	sealed, err := s.Encrypt("A1234567")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "enc:"))
	assert.NotContains(t, sealed, "A1234567")

	plain, err := s.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "A1234567", plain)
}

func TestNonceDiffersPerCall(t *testing.T) {
	s, err := New(hexKey)
	require.NoError(t, err)
	a, _ := s.Encrypt("same")
	b, _ := s.Encrypt("same")
	assert.NotEqual(t, a, b)
}

func TestDecryptWithWrongKey(t *testing.T) {
	s1, err := New(hexKey)
	require.NoError(t, err)
	s2, err := New(otherKey)
	require.NoError(t, err)
	sealed, err := s1.Encrypt("secret")
	require.NoError(t, err)

	_, err = s2.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrTampered)
}

func TestNoKeyPassesThrough(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	v, err := s.Encrypt("+911234567890")
	require.NoError(t, err)
	assert.Equal(t, "+911234567890", v)

	_, err = s.Decrypt("enc:abcd")
	assert.Error(t, err)
}

func TestPlainValuesReadBack(t *testing.T) {
	s, _ := New(hexKey)
	v, err := s.Decrypt("legacy-plain")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plain", v)
}

func TestSealOpenOptional(t *testing.T) {
	s, _ := New(hexKey)
	out, err := s.Seal(nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	phone := "+910000000000"
	sealed, err := s.Seal(&phone)
	require.NoError(t, err)
	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, phone, *opened)
}

func TestKeyFormats(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	fromHex, err := New(hexKey)
	require.NoError(t, err)
	fromB64, err := New(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)

	sealed, err := fromHex.Encrypt("A1234567")
	require.NoError(t, err)
	plain, err := fromB64.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "A1234567", plain)
}

func TestRejectsWeakKeys(t *testing.T) {
	for _, key := range []string{"local-secret", "abcd", hexKey[:32], base64.StdEncoding.EncodeToString([]byte("short"))} {
		_, err := New(key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}
