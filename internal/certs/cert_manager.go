package certs

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CertManager loads the extra CA certificates a station trusts when
// talking to a fulfillment service behind a private CA.
type CertManager struct {
	path string
	now  func() time.Time
}

// NewCertManager takes a PEM file or a directory of .crt/.pem files.
func NewCertManager(path string) *CertManager {
	return &CertManager{path: path, now: time.Now}
}

// LoadCertificates returns every certificate under the configured path.
func (cm *CertManager) LoadCertificates() ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	err := filepath.WalkDir(cm.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if path != cm.path && !strings.HasSuffix(d.Name(), ".crt") && !strings.HasSuffix(d.Name(), ".pem") {
			return nil
		}
		loaded, err := loadFile(path)
		if err != nil {
			return err
		}
		certs = append(certs, loaded...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates found in %s", cm.path)
	}
	return certs, nil
}

// Pool returns the system roots plus the loaded certificates. Expired
// certificates are an error so a stale bundle fails at startup rather
// than on the first scan.
func (cm *CertManager) Pool() (*x509.CertPool, error) {
	certs, err := cm.LoadCertificates()
	if err != nil {
		return nil, err
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	for _, cert := range certs {
		if cm.IsExpired(cert) {
			return nil, fmt.Errorf("certificate %q expired at %s", cert.Subject.CommonName, cert.NotAfter.Format(time.RFC3339))
		}
		pool.AddCert(cert)
	}
	return pool, nil
}

// IsExpired checks if a certificate is expired.
func (cm *CertManager) IsExpired(cert *x509.Certificate) bool {
	return cert.NotAfter.Before(cm.now())
}

func loadFile(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var certs []*x509.Certificate
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
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("failed to parse certificate PEM in " + path)
	}
	return certs, nil
}
