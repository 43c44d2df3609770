package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestSessionSource_EnvFallback(t *testing.T) {
	keyring.MockInit()
	t.Setenv(sessionEnvVar, "env-token")

	src, err := NewSessionSource("butterandcrumble", "")
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, "https://vendor.test/", nil)
	require.NoError(t, src.SignRequest(req))

	cookie, err := req.Cookie("hp_session")
	require.NoError(t, err)
	assert.Equal(t, "env-token", cookie.Value)
}

func TestSessionSource_KeyringWins(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set(keyringService, "butterandcrumble", "ring-token"))
	t.Setenv(sessionEnvVar, "env-token")

	src, err := NewSessionSource("butterandcrumble", "cfg-token")
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, "https://vendor.test/", nil)
	require.NoError(t, src.SignRequest(req))

	cookie, err := req.Cookie("hp_session")
	require.NoError(t, err)
	assert.Equal(t, "ring-token", cookie.Value)
}

func TestSessionSource_NoToken(t *testing.T) {
	keyring.MockInit()
	t.Setenv(sessionEnvVar, "")

	_, err := NewSessionSource("butterandcrumble", "")
	assert.Error(t, err)
}

func TestSessionSource_Store(t *testing.T) {
	keyring.MockInit()
	t.Setenv(sessionEnvVar, "bootstrap")

	src, err := NewSessionSource("holeydough", "")
	require.NoError(t, err)
	require.NoError(t, src.Store("fresh-token"))

	stored, err := keyring.Get(keyringService, "holeydough")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", stored)
}
