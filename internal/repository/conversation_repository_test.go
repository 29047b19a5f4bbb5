package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	data, err := encodeTurns(sampleTurns())
	require.NoError(t, err)

	got, err := decodeTurns(data)
	require.NoError(t, err)
	assert.Equal(t, sampleTurns(), got)

	again, err := encodeTurns(got)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestCodec_EmptyIsArray(t *testing.T) {
	data, err := encodeTurns(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	got, err := decodeTurns([]byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = decodeTurns([]byte(`{"role":"user"}`))
	assert.Error(t, err)
}
