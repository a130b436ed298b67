package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("unit-test-secret")

	token, err := v.Sign("user-42", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("unit-test-secret")

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name:  "garbage token",
			token: func(t *testing.T) string { return "not-a-jwt" },
		},
		{
			name:  "empty token",
			token: func(t *testing.T) string { return "" },
		},
		{
			name: "expired token",
			token: func(t *testing.T) string {
				tok, err := v.Sign("user-42", -time.Minute)
				require.NoError(t, err)
				return tok
			},
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				other := NewVerifier("different-secret")
				tok, err := other.Sign("user-42", time.Minute)
				require.NoError(t, err)
				return tok
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := v.Verify(tt.token(t))
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Empty(t, userID)
		})
	}
}
