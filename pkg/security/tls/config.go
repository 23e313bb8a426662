package tls

import (
	"crypto/tls"

	"mercator-hq/permitgate/pkg/config"
)

// ServerConfig returns the crypto/tls configuration for the HTTP server.
// Certificates come from r on every handshake.
func ServerConfig(cfg *config.TLSConfig, r *Reloader) *tls.Config {
	return &tls.Config{
		MinVersion:     parseVersion(cfg.MinVersion),
		GetCertificate: r.GetCertificate,
	}
}

// parseVersion maps "1.2" to TLS 1.2 and anything else to TLS 1.3.
// Configuration validation rejects other values before they get here.
func parseVersion(v string) uint16 {
	if v == "1.2" {
		return tls.VersionTLS12
	}
	return tls.VersionTLS13
}
