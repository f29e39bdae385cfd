package gateway

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	id, err := requestID()
	require.NoError(t, err)
	assert.Len(t, id, 18)

	n, err := strconv.ParseInt(id, 10, 64)
	require.NoError(t, err)
	assert.Greater(t, n, int64(0))
}

func TestHmac256(t *testing.T) {
	key := []byte("shared-key")
	sig := Hmac256([]byte(`{"op":"reserve"}`), key)

	assert.True(t, VerifyHmac("shared-key", `{"op":"reserve"}`, sig))
	assert.False(t, VerifyHmac("shared-key", `{"op":"tampered"}`, sig))
	assert.False(t, VerifyHmac("other-key", `{"op":"reserve"}`, sig))
}
