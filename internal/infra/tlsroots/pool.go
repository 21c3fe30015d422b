package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoCertsFound is returned when PEM data holds no certificate block.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found")

// Pool is a set of trusted CA certificates.
type Pool struct {
	certs *x509.CertPool
	count int
}

// SystemPool returns a pool seeded with the host's trusted roots. Hosts
// without a system store get an empty pool.
func SystemPool() *Pool {
	certs, err := x509.SystemCertPool()
	if err != nil {
		certs = x509.NewCertPool()
	}
	return &Pool{certs: certs}
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{certs: x509.NewCertPool()}
}

// AppendFile adds every certificate in a PEM file.
func (p *Pool) AppendFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tlsroots: read %s: %w", path, err)
	}
	if err := p.AppendPEM(data); err != nil {
		return fmt.Errorf("%w (%s)", err, path)
	}
	return nil
}

// AppendPEM adds every CERTIFICATE block in data. Other block types are
// skipped.
func (p *Pool) AppendPEM(data []byte) error {
	added := 0
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		p.certs.AddCert(cert)
		added++
	}
	if added == 0 {
		return ErrNoCertsFound
	}
	p.count += added
	return nil
}

// AppendDir adds the .pem, .crt and .cer files of dir. Unreadable files are
// reported together after the whole directory has been scanned.
func (p *Pool) AppendDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("tlsroots: read dir %s: %w", dir, err)
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".pem", ".crt", ".cer":
			if err := p.AppendFile(filepath.Join(dir, entry.Name())); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of certificates appended to the pool. Roots from
// the system store are not counted.
func (p *Pool) Len() int {
	return p.count
}

// CertPool returns the underlying x509 pool.
func (p *Pool) CertPool() *x509.CertPool {
	return p.certs
}

// ClientConfig returns a client TLS config trusting the pool.
func (p *Pool) ClientConfig(insecure bool) *tls.Config {
	return &tls.Config{
		RootCAs:            p.certs,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecure, //nolint:gosec // opt-in for self-signed test servers
	}
}

// ClientConfig builds a client TLS config. An empty caFile trusts the system
// roots plus nothing else.
func ClientConfig(caFile string, insecure bool) (*tls.Config, error) {
	pool := SystemPool()
	if caFile != "" {
		if err := pool.AppendFile(caFile); err != nil {
			return nil, err
		}
	}
	return pool.ClientConfig(insecure), nil
}
