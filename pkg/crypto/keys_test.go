package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPairAndAddress(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	addr := kp.Address()
	require.True(t, len(addr) == 42, "address should be 0x + 40 hex chars")
	require.Equal(t, "0x", addr[:2])

	addr2 := AddressFromPublicKeyHex(kp.PublicKeyHex())
	require.Equal(t, addr, addr2)

	require.Len(t, kp.PublicKeyHex(), 128, "public key is the bare 64-byte x||y point")
}

func TestSignAndVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("transfer 10 from alice to bob")
	sig, err := kp.Sign(msg)
	require.NoError(t, err)

	require.True(t, VerifySignature(msg, sig, kp.PublicKeyHex()))
	require.False(t, VerifySignature([]byte("tampered"), sig, kp.PublicKeyHex()))
}

func TestVerifySignatureNeverPanics(t *testing.T) {
	require.False(t, VerifySignature([]byte("x"), "not-hex", "not-hex-either"))
	require.False(t, VerifySignature([]byte("x"), "", ""))
}

func TestRoundTripPrivateKeyHex(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	kp2, err := NewKeyPairFromHex(kp.PrivateKeyHex())
	require.NoError(t, err)
	require.Equal(t, kp.Address(), kp2.Address())
	require.Equal(t, kp.PublicKeyHex(), kp2.PublicKeyHex())
}
