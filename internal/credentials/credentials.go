// Package credentials decodes the secrets used for key-pair authentication.
package credentials

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/youmark/pkcs8"
)

// EncodeBase64 encodes text with standard base64
func EncodeBase64(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(text))
}

// DecodeBase64 decodes standard base64 text
func DecodeBase64(text string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	return string(data), nil
}

// ParsePrivateKey parses a PEM encoded RSA private key. The PEM text may
// itself be base64 encoded. PKCS#8 keys may be encrypted with passphrase;
// unencrypted PKCS#1 keys are accepted too.
func ParsePrivateKey(key, passphrase string) (*rsa.PrivateKey, error) {
	block, err := decodePEM(key)
	if err != nil {
		return nil, err
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("could not parse PKCS#1 key: %w", err)
		}
		return rsaKey, nil
	default:
		var (
			parsed any
			err    error
		)
		if block.Type == "ENCRYPTED PRIVATE KEY" {
			if passphrase == "" {
				return nil, fmt.Errorf("private key is encrypted but no passphrase was given")
			}
			parsed, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes, []byte(passphrase))
		} else {
			parsed, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes)
		}
		if err != nil {
			return nil, fmt.Errorf("could not parse key: %w", err)
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is %T, expected an RSA key", parsed)
		}
		return rsaKey, nil
	}
}

// PrivateKeyToDER converts a PEM encoded private key to unencrypted PKCS#8
// DER bytes
func PrivateKeyToDER(key, passphrase string) ([]byte, error) {
	rsaKey, err := ParsePrivateKey(key, passphrase)
	if err != nil {
		return nil, err
	}
	der, err := pkcs8.MarshalPrivateKey(rsaKey, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("could not marshal key: %w", err)
	}
	return der, nil
}

func decodePEM(key string) (*pem.Block, error) {
	text := strings.TrimSpace(key)
	if !strings.HasPrefix(text, "-----BEGIN") {
		decoded, err := DecodeBase64(text)
		if err != nil {
			return nil, fmt.Errorf("invalid private key data: neither PEM nor base64 encoded PEM")
		}
		text = decoded
	}

	block, _ := pem.Decode([]byte(text))
	if block == nil {
		return nil, fmt.Errorf("invalid private key data: no PEM block found")
	}
	return block, nil
}
