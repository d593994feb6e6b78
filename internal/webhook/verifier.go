package webhook

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Verifier authenticates inbound platform callbacks. With no encrypt key
// configured, signature checks and decryption become pass-throughs so local
// development works against plain payloads.
type Verifier struct {
	verifyToken string
	encryptKey  string
	logger      *zap.Logger
}

// NewVerifier creates a new webhook verifier
func NewVerifier(verifyToken, encryptKey string, logger *zap.Logger) *Verifier {
	return &Verifier{
		verifyToken: verifyToken,
		encryptKey:  encryptKey,
		logger:      logger,
	}
}

// VerifyChallenge answers the platform's endpoint-registration handshake. It
// returns the challenge string to echo back, or an error if the payload is
// not a url_verification request or carries the wrong token.
func (v *Verifier) VerifyChallenge(body []byte) (string, error) {
	var payload struct {
		Challenge string `json:"challenge"`
		Token     string `json:"token"`
		Type      string `json:"type"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to unmarshal challenge: %w", err)
	}
	if payload.Type != "url_verification" {
		return "", fmt.Errorf("invalid challenge type: %s", payload.Type)
	}
	if v.verifyToken != "" && payload.Token != v.verifyToken {
		return "", fmt.Errorf("invalid verification token")
	}
	return payload.Challenge, nil
}

// VerifySignature checks the request signature header against
// sha256(timestamp + nonce + encrypt_key + body).
func (v *Verifier) VerifySignature(timestamp, nonce, signature, body string) bool {
	if v.encryptKey == "" {
		return true
	}
	sum := sha256.Sum256([]byte(timestamp + nonce + v.encryptKey + body))
	return hex.EncodeToString(sum[:]) == signature
}

// DecryptData decrypts an AES-CBC encrypted callback payload. The first
// block of the base64-decoded ciphertext is the IV.
func (v *Verifier) DecryptData(encryptedData string) (string, error) {
	if v.encryptKey == "" {
		return encryptedData, nil
	}

	raw, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(raw) < 2*aes.BlockSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	block, err := aes.NewCipher(v.cipherKey())
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv, ciphertext := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return string(stripPKCS7(plaintext)), nil
}

// cipherKey normalizes the configured encrypt key to the 32 bytes AES-256
// requires.
func (v *Verifier) cipherKey() []byte {
	key := make([]byte, 32)
	copy(key, v.encryptKey)
	return key
}

func stripPKCS7(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > len(data) || pad > aes.BlockSize {
		return data
	}
	return data[:len(data)-pad]
}

// ValidateEventType reports whether the callback carries an event the bot
// acts on: inbound chat messages and card button actions.
func (v *Verifier) ValidateEventType(eventType string) bool {
	return strings.Contains(eventType, "im.message.receive") ||
		strings.Contains(eventType, "card.action")
}
