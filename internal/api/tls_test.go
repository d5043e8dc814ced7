package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTLSEnabled(t *testing.T) {
	assert.False(t, TLSConfig{}.Enabled())
	assert.False(t, TLSConfig{CertFile: "/path/to/cert.pem"}.Enabled())
	assert.False(t, TLSConfig{KeyFile: "/path/to/key.pem"}.Enabled())
	assert.True(t, TLSConfig{CertFile: "/path/to/cert.pem", KeyFile: "/path/to/key.pem"}.Enabled())
}

func TestTLSLoadNotEnabled(t *testing.T) {
	cfg, err := TLSConfig{}.Load()
	assert.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestTLSLoadInvalidFiles(t *testing.T) {
	cfg, err := TLSConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}.Load()
	assert.Error(t, err)
	assert.Nil(t, cfg)
}
