package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"regexp"
)

var (
	// ErrMissingSecret falha o startup: sem o segredo externo não há assinatura
	ErrMissingSecret = errors.New("vault master key is required")
	// ErrTamperedCiphertext cobre chave errada, corpo corrompido ou tag
	// adulterada — falha dura, nunca devolve plaintext alterado
	ErrTamperedCiphertext = errors.New("ciphertext tampered or invalid")
)

// seedPattern cobre o formato de seed custodial Stellar (S + 55 base32).
// Qualquer mensagem de erro que sai da camada de settlement passa por Scrub
var seedPattern = regexp.MustCompile(`S[A-Z2-7]{55}`)

// Vault cifra/decifra material de assinatura custodial em repouso com
// AES-256-GCM. A chave é derivada uma única vez do segredo externo; a seed
// em claro só existe transientemente, em memória, na hora de assinar
type Vault struct {
	aead cipher.AEAD
}

// New deriva a chave (SHA-256 do segredo) e monta o AEAD.
// Segredo vazio é erro: o chamador deve tratar como fatal no startup
func New(masterKey string) (*Vault, error) {
	if masterKey == "" {
		return nil, ErrMissingSecret
	}
	key := sha256.Sum256([]byte(masterKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Vault{aead: aead}, nil
}

// Encrypt cifra com nonce aleatório por chamada; saída = nonce || ciphertext
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt valida a tag de autenticação antes de devolver qualquer byte
func (v *Vault) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) <= v.aead.NonceSize() {
		return nil, ErrTamperedCiphertext
	}
	nonce, body := ciphertext[:v.aead.NonceSize()], ciphertext[v.aead.NonceSize():]
	plain, err := v.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, ErrTamperedCiphertext
	}
	return plain, nil
}

// EncryptString devolve o ciphertext em base64, pronto para coluna de banco
func (v *Vault) EncryptString(plaintext string) (string, error) {
	b, err := v.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (v *Vault) DecryptString(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrTamperedCiphertext
	}
	plain, err := v.Decrypt(raw)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Scrub remove qualquer seed custodial de uma mensagem antes de log/persistência
func Scrub(msg string) string {
	return seedPattern.ReplaceAllString(msg, "[seed redacted]")
}

// ScrubErr é o equivalente de Scrub para valores de erro
func ScrubErr(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(Scrub(err.Error()))
}
