package settings

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base32"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/peerbeam/peerbeam/internal/logging"
)

const (
	certFile = "cert.pem"
	keyFile  = "key.pem"
)

// DeviceID identifies a device. It is derived from the device certificate,
// so it cannot be claimed without the matching private key.
type DeviceID string

// Identity is the local device's keypair and certificate.
type Identity struct {
	DeviceID DeviceID
	Cert     tls.Certificate
}

// LoadOrGenerateIdentity loads the device identity from dir, generating and
// persisting a fresh one on first run.
func LoadOrGenerateIdentity(dir string) (*Identity, error) {
	certPath := filepath.Join(dir, certFile)
	keyPath := filepath.Join(dir, keyFile)

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if os.IsNotExist(err) {
		return generateIdentity(dir, certPath, keyPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	return &Identity{
		DeviceID: DeviceIDFromCert(cert.Certificate[0]),
		Cert:     cert,
	}, nil
}

func generateIdentity(dir, certPath, keyPath string) (*Identity, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create identity dir: %w", err)
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	notBefore := time.Now().Add(-1 * time.Hour)
	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: "peerbeam",
		},
		NotBefore: notBefore,
		NotAfter:  notBefore.AddDate(20, 0, 0),

		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	if err := writeFileAtomic(certPath, certPEM, 0o644); err != nil {
		return nil, fmt.Errorf("write certificate: %w", err)
	}
	if err := writeFileAtomic(keyPath, keyPEM, 0o600); err != nil {
		return nil, fmt.Errorf("write key: %w", err)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("assemble keypair: %w", err)
	}

	id := DeviceIDFromCert(certDER)
	logging.Info("generated device identity",
		zap.String("device_id", string(id)),
		zap.String("dir", dir))

	return &Identity{DeviceID: id, Cert: cert}, nil
}

// DeviceIDFromCert derives the device ID from a DER-encoded certificate:
// the base32 form of its SHA-256 digest, in dash-separated groups of seven.
func DeviceIDFromCert(certDER []byte) DeviceID {
	digest := sha256.Sum256(certDER)
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(digest[:])

	var groups []string
	for len(enc) > 7 {
		groups = append(groups, enc[:7])
		enc = enc[7:]
	}
	groups = append(groups, enc)
	return DeviceID(strings.Join(groups, "-"))
}

// Short returns the first group of the ID, enough to tell devices apart in
// log output.
func (id DeviceID) Short() string {
	s := string(id)
	if i := strings.IndexByte(s, '-'); i > 0 {
		return s[:i]
	}
	return s
}

// writeFileAtomic writes data to a temp file and renames it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}
