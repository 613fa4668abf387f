package jwt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/sirupsen/logrus"
)

const (
	Algorithm = "ES384"

	PrivateKeyFile = "jwk.private.json"
	PublicKeyFile  = "jwk.public.json"

	Issuer   = "homeprov"
	Audience = "homeprov-tunnel"

	TokenLifetime = 24 * time.Hour
)

var ErrKeyExists = errors.New("key pair already exists")

// Claims identify this node to the tunnel backend.
type Claims struct {
	ClientID string   `json:"client-id"`
	Labels   []string `json:"labels,omitempty"`
	jwt.Claims
}

type Manager struct {
	logger     logrus.FieldLogger
	privateJWK jose.JSONWebKey
	publicJWK  jose.JSONWebKey
	signer     jose.Signer
}

func NewManager(logger logrus.FieldLogger) *Manager {
	return &Manager{logger: logger}
}

func (m *Manager) LoadKey(dir string) error {
	privateKeyPath := filepath.Join(dir, PrivateKeyFile)
	publicKeyPath := filepath.Join(dir, PublicKeyFile)

	m.logger.WithFields(logrus.Fields{
		"private_key": privateKeyPath,
		"public_key":  publicKeyPath,
	}).Debug("Loading tunnel keys")

	if _, err := os.Stat(privateKeyPath); os.IsNotExist(err) {
		return fmt.Errorf("tunnel private key not found at %s\n\n💡 Generate keys first with: homeprov keygen --key-path %s", privateKeyPath, dir)
	}

	privateJWK, err := readJWK(privateKeyPath)
	if err != nil {
		return fmt.Errorf("failed to load private key from %s: %w\n\n💡 Regenerate with: homeprov keygen --key-path %s --force", privateKeyPath, err, dir)
	}
	if !privateJWK.Valid() || privateJWK.IsPublic() {
		return fmt.Errorf("%s does not contain a private key", privateKeyPath)
	}

	publicJWK, err := readJWK(publicKeyPath)
	if err != nil {
		m.logger.WithError(err).Warn("Public key unreadable, deriving it from the private key")
		publicJWK = privateJWK.Public()
	}

	return m.use(privateJWK, publicJWK)
}

// GenerateKeyPair writes a fresh ES384 key pair into dir. Existing keys are
// only replaced when force is set.
func (m *Manager) GenerateKeyPair(dir string, force bool) error {
	if err := ensureWritableDir(dir); err != nil {
		return fmt.Errorf("key directory not usable: %w", err)
	}

	privateKeyPath := filepath.Join(dir, PrivateKeyFile)
	publicKeyPath := filepath.Join(dir, PublicKeyFile)

	if _, err := os.Stat(privateKeyPath); err == nil && !force {
		return fmt.Errorf("%w at %s (use --force to overwrite)", ErrKeyExists, privateKeyPath)
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key pair: %w", err)
	}

	privateJWK := jose.JSONWebKey{Key: privateKey, Algorithm: string(jose.ES384), Use: "sig"}
	publicJWK := privateJWK.Public()

	// The private key may be read-only from a previous run.
	_ = os.Remove(privateKeyPath)
	if err := writeJWK(privateKeyPath, privateJWK, 0400); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}
	if err := writeJWK(publicKeyPath, publicJWK, 0644); err != nil {
		return fmt.Errorf("failed to save public key: %w", err)
	}

	m.logger.WithField("path", dir).Info("🔑 Generated new ES384 key pair")
	return m.use(privateJWK, publicJWK)
}

func (m *Manager) use(privateJWK, publicJWK jose.JSONWebKey) error {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES384, Key: privateJWK}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	m.privateJWK = privateJWK
	m.publicJWK = publicJWK
	m.signer = signer
	return nil
}

// PublicKeyJSON is what gets registered with the tunnel backend.
func (m *Manager) PublicKeyJSON() ([]byte, error) {
	if m.signer == nil {
		return nil, fmt.Errorf("no key loaded")
	}
	return json.MarshalIndent(m.publicJWK, "", "  ")
}

func (m *Manager) CreateJWT(clientID string, labels []string) (string, error) {
	if m.signer == nil {
		return "", fmt.Errorf("signer not initialized - call LoadKey or GenerateKeyPair first")
	}

	now := time.Now()
	claims := Claims{
		ClientID: clientID,
		Labels:   labels,
		Claims: jwt.Claims{
			Issuer:   Issuer,
			Subject:  clientID,
			Audience: jwt.Audience{Audience},
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(TokenLifetime)),
		},
	}

	token, err := jwt.Signed(m.signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to create JWT: %w", err)
	}

	return token, nil
}

// Verify checks a token against the loaded public key.
func (m *Manager) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	claims := &Claims{}
	if err := parsed.Claims(m.publicJWK.Key, claims); err != nil {
		return nil, fmt.Errorf("failed to verify JWT: %w", err)
	}

	if err := claims.Validate(jwt.Expected{
		Issuer:   Issuer,
		Audience: jwt.Audience{Audience},
		Time:     time.Now(),
	}); err != nil {
		return nil, err
	}

	return claims, nil
}

func ensureWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0700)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".homeprov-write-test-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

func readJWK(path string) (jose.JSONWebKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return jose.JSONWebKey{}, err
	}

	var jwk jose.JSONWebKey
	if err := json.Unmarshal(data, &jwk); err != nil {
		return jose.JSONWebKey{}, fmt.Errorf("invalid JWK JSON: %w", err)
	}
	return jwk, nil
}

func writeJWK(path string, jwk jose.JSONWebKey, mode os.FileMode) error {
	data, err := json.MarshalIndent(jwk, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JWK: %w", err)
	}
	return os.WriteFile(path, data, mode)
}
