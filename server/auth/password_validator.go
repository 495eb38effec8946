// Package auth implements MySQL's mysql_native_password challenge/response
// scheme against MiniSQL's single configured user (spec.md §4.H, §6).
package auth

import (
	"crypto/rand"
	"crypto/sha1"
	"fmt"
)

// GenerateChallenge returns a 20-byte auth-plugin-data nonce with no null
// bytes (a null byte would truncate the handshake's null-terminated framing
// on some clients).
func GenerateChallenge() ([]byte, error) {
	challenge := make([]byte, 20)
	if _, err := rand.Read(challenge); err != nil {
		return nil, fmt.Errorf("generating auth challenge: %w", err)
	}
	for i := range challenge {
		if challenge[i] == 0 {
			challenge[i] = 1
		}
	}
	return challenge, nil
}

// Authenticate verifies a client's mysql_native_password response against
// the configured plaintext password:
//
//	response == SHA1(password) XOR SHA1(challenge || SHA1(SHA1(password)))
//
// An empty configured password accepts only an empty response, matching
// MySQL's no-password convention.
func Authenticate(configuredPassword string, challenge, response []byte) bool {
	if configuredPassword == "" {
		return len(response) == 0
	}
	if len(challenge) != 20 {
		return false
	}
	stage1 := sha1Hash([]byte(configuredPassword))
	stage2 := sha1Hash(stage1)
	expected := xorBytes(stage1, sha1Hash(append(append([]byte{}, challenge...), stage2...)))
	return bytesEqual(expected, response)
}

func sha1Hash(data []byte) []byte {
	h := sha1.Sum(data)
	return h[:]
}

func xorBytes(a, b []byte) []byte {
	if len(a) != len(b) {
		return nil
	}
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
