package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSign_Format(t *testing.T) {
	sig := Sign("topsecret", []byte(`{"event":"check.down"}`))
	require.True(t, strings.HasPrefix(sig, "sha256="))
	require.Len(t, sig, len("sha256=")+64)

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write([]byte(`{"event":"check.down"}`))
	require.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), sig)
}

func TestSign_Deterministic(t *testing.T) {
	body := []byte("payload")
	require.Equal(t, Sign("k", body), Sign("k", body))
	require.NotEqual(t, Sign("k1", body), Sign("k2", body))
	require.NotEqual(t, Sign("k", []byte("a")), Sign("k", []byte("b")))
}

func TestVerify(t *testing.T) {
	body := []byte(`{"n":1}`)
	sig := Sign("secret", body)

	require.True(t, Verify("secret", body, sig))
	require.False(t, Verify("wrong", body, sig))
	require.False(t, Verify("secret", []byte(`{"n":2}`), sig))
	require.False(t, Verify("secret", body, "sha256=deadbeef"))
	require.False(t, Verify("secret", body, ""))
}
