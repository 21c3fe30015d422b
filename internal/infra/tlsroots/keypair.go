package tlsroots

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a KeyPair waits after the last file event before
// reloading.
const DefaultSettle = 250 * time.Millisecond

// KeyPair is a serving certificate that follows its files on disk.
type KeyPair struct {
	certFile string
	keyFile  string
	settle   time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	cert     *tls.Certificate
	notAfter time.Time
}

// KeyPairOption configures a KeyPair.
type KeyPairOption func(*KeyPair)

// WithLogger sets the logger used for reload events.
func WithLogger(logger *slog.Logger) KeyPairOption {
	return func(k *KeyPair) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// WithSettle sets the quiet period before a reload.
func WithSettle(d time.Duration) KeyPairOption {
	return func(k *KeyPair) {
		k.settle = d
	}
}

// LoadKeyPair reads certFile and keyFile and returns a KeyPair serving them.
func LoadKeyPair(certFile, keyFile string, opts ...KeyPairOption) (*KeyPair, error) {
	k := &KeyPair{
		certFile: certFile,
		keyFile:  keyFile,
		settle:   DefaultSettle,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}

	if err := k.Reload(); err != nil {
		return nil, err
	}
	return k, nil
}

// Reload re-reads the key pair. The previous certificate stays in service
// when the new files do not parse.
func (k *KeyPair) Reload() error {
	cert, err := tls.LoadX509KeyPair(k.certFile, k.keyFile)
	if err != nil {
		return fmt.Errorf("tlsroots: load key pair: %w", err)
	}

	var notAfter time.Time
	if len(cert.Certificate) > 0 {
		if leaf, err := x509.ParseCertificate(cert.Certificate[0]); err == nil {
			cert.Leaf = leaf
			notAfter = leaf.NotAfter
		}
	}

	k.mu.Lock()
	k.cert = &cert
	k.notAfter = notAfter
	k.mu.Unlock()
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (k *KeyPair) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.cert, nil
}

// NotAfter returns the expiry of the current leaf certificate.
func (k *KeyPair) NotAfter() time.Time {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.notAfter
}

// ServerConfig returns a server TLS config backed by the key pair.
func (k *KeyPair) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: k.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// Watch reloads the key pair when either file is written or replaced. It
// blocks until ctx is done.
func (k *KeyPair) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	defer w.Close()

	// Directories survive editors that replace files by rename.
	dirs := map[string]struct{}{
		filepath.Dir(k.certFile): {},
		filepath.Dir(k.keyFile):  {},
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}

	names := map[string]struct{}{
		filepath.Base(k.certFile): {},
		filepath.Base(k.keyFile):  {},
	}

	timer := time.NewTimer(k.settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if _, match := names[filepath.Base(ev.Name)]; !match {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(k.settle)

		case <-timer.C:
			if err := k.Reload(); err != nil {
				k.logger.Error("certificate reload failed", "cert_file", k.certFile, "error", err)
				continue
			}
			k.logger.Info("certificate reloaded", "cert_file", k.certFile, "not_after", k.NotAfter())

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			k.logger.Warn("certificate watcher error", "error", err)
		}
	}
}
