package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateLicenseKey(t *testing.T) {
	a, err := GenerateLicenseKey(0)
	require.NoError(t, err)
	require.Len(t, a, 32)
	require.Regexp(t, "^[0-9A-F]+$", a)

	b, err := GenerateLicenseKey(4)
	require.NoError(t, err)
	require.Len(t, b, 8)
	require.NotEqual(t, a[:8], b)
}
