package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedactJSON(t *testing.T) {
	got := RedactJSON(`{"signedTx":"0xf86c","nested":{"access_token":"tok","keep":1},"arr":[{"privateKey":"k"}]}`)
	require.Contains(t, got, `"signedTx":"***REDACTED***"`)
	require.Contains(t, got, `"access_token":"***REDACTED***"`)
	require.Contains(t, got, `"privateKey":"***REDACTED***"`)
	require.Contains(t, got, `"keep":1`)

	require.Equal(t, "not json", RedactJSON("not json"))
}
