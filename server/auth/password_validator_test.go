package auth

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/require"
)

// clientResponse mirrors what a real mysql_native_password client computes,
// so tests can verify Authenticate accepts a genuine client response.
func clientResponse(password string, challenge []byte) []byte {
	stage1 := sha1Hash([]byte(password))
	stage2 := sha1Hash(stage1)
	combined := append(append([]byte{}, challenge...), stage2...)
	return xorBytes(stage1, sha1Hash(combined))
}

func TestGenerateChallengeHasNoNullBytes(t *testing.T) {
	challenge, err := GenerateChallenge()
	require.NoError(t, err)
	require.Len(t, challenge, 20)
	for _, b := range challenge {
		require.NotZero(t, b)
	}
}

func TestAuthenticateAcceptsCorrectPassword(t *testing.T) {
	challenge, err := GenerateChallenge()
	require.NoError(t, err)
	resp := clientResponse("secret", challenge)
	require.True(t, Authenticate("secret", challenge, resp))
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	challenge, err := GenerateChallenge()
	require.NoError(t, err)
	resp := clientResponse("wrong", challenge)
	require.False(t, Authenticate("secret", challenge, resp))
}

func TestAuthenticateRejectsBadChallengeLength(t *testing.T) {
	require.False(t, Authenticate("secret", []byte{1, 2, 3}, []byte("anything")))
}

func TestAuthenticateEmptyConfiguredPassword(t *testing.T) {
	challenge, err := GenerateChallenge()
	require.NoError(t, err)
	require.True(t, Authenticate("", challenge, nil))
	require.False(t, Authenticate("", challenge, []byte("x")))
}

func TestSha1HashMatchesStdlib(t *testing.T) {
	want := sha1.Sum([]byte("hello"))
	require.Equal(t, want[:], sha1Hash([]byte("hello")))
}
