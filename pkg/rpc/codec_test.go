package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestCodec_Registered(t *testing.T) {
	t.Parallel()
	codec := encoding.GetCodec(CodecName)
	require.NotNil(t, codec)
	assert.Equal(t, CodecName, codec.Name())
}

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()
	var c Codec
	in := &ValidateTokenResponse{UserID: 42, Email: "a@x.com", IsAdmin: true}

	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out ValidateTokenResponse
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, *in, out)
}

func TestCodec_Deterministic(t *testing.T) {
	t.Parallel()
	var c Codec
	a, err := c.Marshal(map[string]any{"b": 1, "a": 2, "c": 3})
	require.NoError(t, err)
	b, err := c.Marshal(map[string]any{"c": 3, "a": 2, "b": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCodec_IgnoresUnknownFields(t *testing.T) {
	t.Parallel()
	var c Codec
	data, err := c.Marshal(map[string]any{"token": "Bearer x", "extra": true})
	require.NoError(t, err)

	var req ValidateTokenRequest
	require.NoError(t, c.Unmarshal(data, &req))
	assert.Equal(t, "Bearer x", req.Token)
}

func TestCodec_RejectsGarbage(t *testing.T) {
	t.Parallel()
	var req ValidateTokenRequest
	assert.Error(t, Codec{}.Unmarshal([]byte{0xff, 0x00}, &req))
}
