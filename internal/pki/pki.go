// Package pki is the embedded certificate authority for OpenVPN servers.
//
// The store is a directory: ca.crt/ca.key at the root, one file per issued
// certificate under issued/, copies of revoked certificates under revoked/,
// and crl.pem regenerated from the revoked set. The revoked set is
// append-only: a serial placed there is never trusted again, even though the
// issued record stays available for audit.
package pki

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"peerctl"
)

const (
	caLifetime   = 10 * 365 * 24 * time.Hour
	leafLifetime = 5 * 365 * 24 * time.Hour
	crlLifetime  = 30 * 24 * time.Hour
)

// CA is an open certificate authority store.
type CA struct {
	dir  string
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

// Leaf is an issued certificate with its private key, both PEM-encoded.
type Leaf struct {
	Serial  string
	CertPEM []byte
	KeyPEM  []byte
}

// Create initializes a new CA under dir: root key pair, empty issued and
// revoked sets, an empty CRL, and the tls-crypt key shared by all clients.
func Create(dir, commonName string) (*CA, error) {
	for _, d := range []string{dir, filepath.Join(dir, "issued"), filepath.Join(dir, "revoked")} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return nil, fmt.Errorf("create pki dir: %w", err)
		}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ca key: %w: %w", peerctl.ErrEntropyUnavailable, err)
	}
	serial, err := newSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now,
		NotAfter:              now.Add(caLifetime),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("self-sign ca certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse ca certificate: %w", err)
	}

	if err := writePEM(filepath.Join(dir, "ca.crt"), "CERTIFICATE", der, 0o644); err != nil {
		return nil, err
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal ca key: %w", err)
	}
	if err := writePEM(filepath.Join(dir, "ca.key"), "EC PRIVATE KEY", keyDER, 0o600); err != nil {
		return nil, err
	}

	ca := &CA{dir: dir, cert: cert, key: key}
	if err := ca.writeTLSCryptKey(); err != nil {
		return nil, err
	}
	if err := ca.writeCRL(nil); err != nil {
		return nil, err
	}
	return ca, nil
}

// Open loads an existing CA from dir. A missing store means the installer
// has not run and maps to ErrServerNotInitialized.
func Open(dir string) (*CA, error) {
	certPEM, err := os.ReadFile(filepath.Join(dir, "ca.crt"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("pki store %s: %w", dir, peerctl.ErrServerNotInitialized)
		}
		return nil, fmt.Errorf("read ca certificate: %w", err)
	}
	cert, err := parseCertPEM(certPEM)
	if err != nil {
		return nil, fmt.Errorf("parse ca certificate: %w", err)
	}

	keyPEM, err := os.ReadFile(filepath.Join(dir, "ca.key"))
	if err != nil {
		return nil, fmt.Errorf("read ca key: %w", err)
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("ca key is not PEM")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse ca key: %w", err)
	}

	return &CA{dir: dir, cert: cert, key: key}, nil
}

// IssueClient issues a client-auth certificate for the given common name.
// Common names are not required to be unique across issuance history: a
// revoked peer's name can be issued again under a fresh serial.
func (ca *CA) IssueClient(commonName string) (Leaf, error) {
	return ca.issue(commonName, x509.ExtKeyUsageClientAuth)
}

// IssueServer issues a server-auth certificate (used once, at init).
func (ca *CA) IssueServer(commonName string) (Leaf, error) {
	return ca.issue(commonName, x509.ExtKeyUsageServerAuth)
}

func (ca *CA) issue(commonName string, eku x509.ExtKeyUsage) (Leaf, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Leaf{}, fmt.Errorf("generate leaf key: %w: %w", peerctl.ErrEntropyUnavailable, err)
	}
	serial, err := newSerial()
	if err != nil {
		return Leaf{}, err
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    now,
		NotAfter:     now.Add(leafLifetime),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{eku},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		return Leaf{}, fmt.Errorf("sign certificate for %q: %w", commonName, err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return Leaf{}, fmt.Errorf("marshal leaf key: %w", err)
	}

	leaf := Leaf{
		Serial:  SerialString(serial),
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	}

	if err := os.WriteFile(ca.issuedPath(leaf.Serial), leaf.CertPEM, 0o644); err != nil {
		return Leaf{}, fmt.Errorf("store issued certificate: %w", err)
	}
	return leaf, nil
}

// Revoke moves a serial into the revoked set and regenerates the CRL. The
// issued record is retained; the revoked copy is what feeds the CRL.
func (ca *CA) Revoke(serial string) error {
	certPEM, err := os.ReadFile(ca.issuedPath(serial))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("serial %s: %w", serial, peerctl.ErrNotFound)
		}
		return fmt.Errorf("read issued certificate: %w", err)
	}

	revokedPath := filepath.Join(ca.dir, "revoked", serial+".crt")
	if err := os.WriteFile(revokedPath, certPEM, 0o644); err != nil {
		return fmt.Errorf("record revocation: %w", err)
	}

	revoked, err := ca.revokedEntries()
	if err != nil {
		return err
	}
	return ca.writeCRL(revoked)
}

// CRLPath returns the location of the current certificate revocation list.
func (ca *CA) CRLPath() string { return filepath.Join(ca.dir, "crl.pem") }

// CACertPEM returns the PEM-encoded authority certificate.
func (ca *CA) CACertPEM() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(ca.dir, "ca.crt"))
	if err != nil {
		return nil, fmt.Errorf("read ca certificate: %w", err)
	}
	return data, nil
}

// TLSCryptKey returns the shared tls-crypt key embedded into every client
// bundle.
func (ca *CA) TLSCryptKey() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(ca.dir, "ta.key"))
	if err != nil {
		return nil, fmt.Errorf("read tls-crypt key: %w", err)
	}
	return data, nil
}

// IsRevoked reports whether a serial is in the revoked set.
func (ca *CA) IsRevoked(serial string) bool {
	_, err := os.Stat(filepath.Join(ca.dir, "revoked", serial+".crt"))
	return err == nil
}

func (ca *CA) issuedPath(serial string) string {
	return filepath.Join(ca.dir, "issued", serial+".crt")
}

func (ca *CA) revokedEntries() ([]x509.RevocationListEntry, error) {
	dir := filepath.Join(ca.dir, "revoked")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read revoked set: %w", err)
	}

	var out []x509.RevocationListEntry
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".crt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read revoked certificate %s: %w", e.Name(), err)
		}
		cert, err := parseCertPEM(data)
		if err != nil {
			return nil, fmt.Errorf("parse revoked certificate %s: %w", e.Name(), err)
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat revoked certificate %s: %w", e.Name(), err)
		}
		out = append(out, x509.RevocationListEntry{
			SerialNumber:   cert.SerialNumber,
			RevocationTime: info.ModTime().UTC(),
		})
	}
	return out, nil
}

func (ca *CA) writeCRL(revoked []x509.RevocationListEntry) error {
	now := time.Now()
	tmpl := &x509.RevocationList{
		Number:                    big.NewInt(now.UnixNano()),
		ThisUpdate:                now,
		NextUpdate:                now.Add(crlLifetime),
		RevokedCertificateEntries: revoked,
	}
	der, err := x509.CreateRevocationList(rand.Reader, tmpl, ca.cert, ca.key)
	if err != nil {
		return fmt.Errorf("sign crl: %w", err)
	}
	return writePEM(ca.CRLPath(), "X509 CRL", der, 0o644)
}

func (ca *CA) writeTLSCryptKey() error {
	raw := make([]byte, 256)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate tls-crypt key: %w: %w", peerctl.ErrEntropyUnavailable, err)
	}

	var b strings.Builder
	b.WriteString("-----BEGIN OpenVPN Static key V1-----\n")
	for i := 0; i < len(raw); i += 16 {
		b.WriteString(hex.EncodeToString(raw[i:i+16]) + "\n")
	}
	b.WriteString("-----END OpenVPN Static key V1-----\n")
	return os.WriteFile(filepath.Join(ca.dir, "ta.key"), []byte(b.String()), 0o600)
}

// SerialString formats a certificate serial the way the registry stores it.
func SerialString(serial *big.Int) string {
	return strings.ToUpper(serial.Text(16))
}

func newSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w: %w", peerctl.ErrEntropyUnavailable, err)
	}
	return serial, nil
}

func parseCertPEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("not a PEM certificate")
	}
	return x509.ParseCertificate(block.Bytes)
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
