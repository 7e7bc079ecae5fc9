// Package push implements the notification dispatch subsystem: OAuth2
// credential acquisition for the JWT-bearer flow and concurrency-bounded
// fan-out over the modern per-token protocol or the legacy batch protocol.
package push

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"

	apperrors "github.com/Abir7109/neon-trace-backend/internal/errors"
)

// ServiceAccount is the signing-capable service identity for the modern
// delivery protocol, parsed from the standard service-account JSON blob.
type ServiceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	ProjectID   string `json:"project_id"`
	TokenURI    string `json:"token_uri"`
}

// ParseServiceAccount decodes and validates a service-account JSON document.
func ParseServiceAccount(raw string) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal([]byte(raw), &sa); err != nil {
		return nil, apperrors.ConfigurationError("service account is not valid JSON").WithField("parse_error", err.Error())
	}
	if sa.ClientEmail == "" {
		return nil, apperrors.ConfigurationError("service account is missing client_email")
	}
	if sa.PrivateKey == "" {
		return nil, apperrors.ConfigurationError("service account is missing private_key")
	}
	if sa.ProjectID == "" {
		return nil, apperrors.ConfigurationError("service account is missing project_id")
	}
	return &sa, nil
}

// SigningKey parses the PEM-encoded RSA private key (PKCS#8 or PKCS#1).
func (sa *ServiceAccount) SigningKey() (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(sa.PrivateKey))
	if block == nil {
		return nil, apperrors.ConfigurationError("service account private_key is not valid PEM")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, apperrors.ConfigurationError(fmt.Sprintf("service account key must be RSA, got %T", key))
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, apperrors.ConfigurationError("service account private_key is not a parsable RSA key").WithField("parse_error", err.Error())
	}
	return key, nil
}
