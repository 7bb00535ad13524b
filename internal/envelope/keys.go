package envelope

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Параметры вывода ключа шифрования.
const (
	pbkdf2Iterations = 100_000
	encryptionKeyLen = 32
)

// Keys — неизменяемая пара ключей конвертов: подпись JWS (HS256)
// и шифрование AES-256-GCM. Создаётся один раз при старте.
type Keys struct {
	signing    []byte
	encryption []byte
}

// DeriveKeys выводит ключ шифрования из парольной фразы и соли (PBKDF2-SHA256).
// Секрет подписи используется как есть.
func DeriveKeys(signingSecret, passphrase, salt string) (Keys, error) {
	if signingSecret == "" || passphrase == "" || salt == "" {
		return Keys{}, errors.New("секрет подписи, парольная фраза и соль обязательны")
	}
	enc := pbkdf2.Key([]byte(passphrase), []byte(salt), pbkdf2Iterations, encryptionKeyLen, sha256.New)
	return NewKeys([]byte(signingSecret), enc)
}

// NewKeys создаёт пару ключей из готовых байтов.
// Ключ шифрования должен быть 32 байта.
func NewKeys(signing, encryption []byte) (Keys, error) {
	if len(signing) == 0 {
		return Keys{}, errors.New("пустой ключ подписи")
	}
	if len(encryption) != encryptionKeyLen {
		return Keys{}, fmt.Errorf("ключ шифрования: ожидается %d байт, получено %d", encryptionKeyLen, len(encryption))
	}
	return Keys{
		signing:    append([]byte(nil), signing...),
		encryption: append([]byte(nil), encryption...),
	}, nil
}
