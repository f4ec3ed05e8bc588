package proxylink

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrustalq/tg-proxy/internal/models"
)

func TestBuild(t *testing.T) {
	cfg := models.ProxyConfig{
		ServerAddress: "proxy1.example.com",
		Port:          443,
		ProxySecret:   "abc123",
	}

	links := Build(cfg)

	assert.Equal(t, "tg://proxy?port=443&secret=abc123&server=proxy1.example.com", links.TG)
	assert.Equal(t, "https://t.me/proxy?port=443&secret=abc123&server=proxy1.example.com", links.TMe)
	assert.Contains(t, links.QR, "api.qrserver.com")
	assert.Contains(t, links.QR, "size=300x300")
}

func TestBuild_EscapesAddress(t *testing.T) {
	cfg := models.ProxyConfig{
		ServerAddress: "host with space",
		Port:          8443,
		ProxySecret:   "s",
	}

	links := Build(cfg)
	assert.NotContains(t, links.TG, " ")
	assert.Contains(t, links.TG, "host+with+space")
}
