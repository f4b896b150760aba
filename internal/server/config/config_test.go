package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":10002", c.EndpointAddrHTTP)
	assert.Empty(t, c.DatabaseDSN)
	assert.Equal(t, "localhost", c.Hostname)
	assert.Equal(t, "RS256", c.KeyAlgorithm)
	assert.Equal(t, 12, c.BcryptWorkFactor)
	assert.Equal(t, 10*time.Second, c.HashQueueTimeout)
	assert.Equal(t, 2419200000*time.Millisecond, c.AuthDuration)
	assert.Equal(t, 24*time.Hour, c.CertificateValidity)
	assert.Equal(t, 60*time.Second, c.MinTimeBetweenEmails)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	c := LoadConfig()
	require.NotNil(t, c, "LoadConfig must not return nil")

	var want Config
	want.LoadDefaults()
	assert.Equal(t, want, *c)
}
