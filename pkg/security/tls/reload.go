package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"mercator-hq/permitgate/pkg/config"
)

// Reloader holds the active certificate pair and swaps it when the files
// on disk change.
type Reloader struct {
	certFile string
	keyFile  string
	interval time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	cert     *tls.Certificate
	certTime time.Time
	keyTime  time.Time
}

// NewReloader loads the configured pair. A nil logger uses slog.Default().
func NewReloader(cfg *config.TLSConfig, logger *slog.Logger) (*Reloader, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, fmt.Errorf("tls: cert_file and key_file are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.ReloadInterval
	if interval <= 0 {
		interval = config.DefaultTLSReloadInterval
	}

	r := &Reloader{
		certFile: cfg.CertFile,
		keyFile:  cfg.KeyFile,
		interval: interval,
		logger:   logger.With("component", "tls"),
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	r.logCertificate("certificate loaded")
	return r, nil
}

// Run checks the files every interval until ctx is done.
func (r *Reloader) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.CheckNow(); err != nil {
				r.logger.Error("failed to reload certificate",
					"cert_file", r.certFile,
					"key_file", r.keyFile,
					"error", err,
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

// CheckNow reloads the pair if either file changed since the last load and
// reports whether it did. On error the previous pair stays active.
func (r *Reloader) CheckNow() (bool, error) {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return false, err
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return false, err
	}

	r.mu.RLock()
	changed := !certInfo.ModTime().Equal(r.certTime) || !keyInfo.ModTime().Equal(r.keyTime)
	r.mu.RUnlock()
	if !changed {
		return false, nil
	}

	if err := r.reload(); err != nil {
		return false, err
	}
	r.logCertificate("certificate reloaded")
	return true, nil
}

func (r *Reloader) reload() error {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}

	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("tls: failed to load certificate: %w", err)
	}
	x, err := leaf(&cert)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if err := validateAt(x, time.Now()); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	cert.Leaf = x

	r.mu.Lock()
	r.cert = &cert
	r.certTime = certInfo.ModTime()
	r.keyTime = keyInfo.ModTime()
	r.mu.Unlock()
	return nil
}

// Certificate returns the active pair.
func (r *Reloader) Certificate() *tls.Certificate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.Certificate(), nil
}

func (r *Reloader) logCertificate(msg string) {
	cert := r.Certificate()
	if cert == nil || cert.Leaf == nil {
		return
	}
	x := cert.Leaf
	remaining := time.Until(x.NotAfter)

	attrs := []any{
		"subject", x.Subject.CommonName,
		"issuer", x.Issuer.CommonName,
		"expires_at", x.NotAfter.Format(time.RFC3339),
		"expires_in_days", int(remaining.Hours() / 24),
	}
	if remaining < expiryWarning {
		r.logger.Warn("certificate expiring soon", attrs...)
		return
	}
	r.logger.Info(msg, attrs...)
}
