// Пакет envelope — подписанные и зашифрованные конверты обмена
// с исполнительным слоем хранения: JWS (HS256) внутри AES-256-GCM.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Ошибки конвертов.
var (
	// ErrInvalid — конверт не расшифровывается, подпись неверна или срок истёк.
	ErrInvalid = errors.New("некорректный конверт")
	// ErrUnavailable — не удалось подписать или зашифровать конверт.
	ErrUnavailable = errors.New("криптография недоступна")
)

// Claims — содержимое конверта.
type Claims map[string]any

// Option — функциональная опция Codec.
type Option func(*Codec)

// WithClock задаёт источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// Codec открывает входящие конверты и запечатывает ответные.
// Безопасен для конкурентного использования.
type Codec struct {
	signing []byte
	encKey  []byte
	gcm     cipher.AEAD
	now     func() time.Time
}

// NewCodec создаёт Codec с заданными ключами.
func NewCodec(keys Keys, opts ...Option) (*Codec, error) {
	block, err := aes.NewCipher(keys.encryption)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	c := &Codec{
		signing: keys.signing,
		encKey:  keys.encryption,
		gcm:     gcm,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Open расшифровывает конверт и проверяет подпись и срок действия.
// Содержимое claims не проверяется.
func (c *Codec) Open(ciphertext string) (Claims, error) {
	raw, err := decodeBase64(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrInvalid, err)
	}

	nonceSize := c.gcm.NonceSize()
	if len(raw) <= nonceSize {
		return nil, fmt.Errorf("%w: данные слишком короткие", ErrInvalid)
	}

	token, err := c.gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: расшифровка: %v", ErrInvalid, err)
	}

	return c.Verify(string(token))
}

// Verify проверяет подпись HS256 и обязательный exp подписанного
// (но не зашифрованного) токена.
func (c *Codec) Verify(token string) (Claims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return c.signing, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return Claims(claims), nil
}

// Seal добавляет exp = now+ttl, подписывает и шифрует claims.
// Результат детерминирован при одинаковых ключах, времени и claims:
// nonce выводится из HMAC-SHA256 открытого текста.
func (c *Codec) Seal(claims Claims, ttl time.Duration) (string, error) {
	token, err := c.Sign(claims, ttl)
	if err != nil {
		return "", err
	}

	plaintext := []byte(token)
	nonce := c.nonceFor(plaintext)
	sealed := c.gcm.Seal(nonce, nonce, plaintext, nil)

	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Sign добавляет exp = now+ttl и подписывает claims без шифрования.
func (c *Codec) Sign(claims Claims, ttl time.Duration) (string, error) {
	mc := make(jwt.MapClaims, len(claims)+1)
	for k, v := range claims {
		mc[k] = v
	}
	mc["exp"] = c.now().Add(ttl).Unix()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(c.signing)
	if err != nil {
		return "", fmt.Errorf("%w: подпись: %v", ErrUnavailable, err)
	}
	return token, nil
}

func (c *Codec) nonceFor(plaintext []byte) []byte {
	mac := hmac.New(sha256.New, c.encKey)
	mac.Write(plaintext)
	return mac.Sum(nil)[:c.gcm.NonceSize()]
}

// decodeBase64 принимает base64url с выравниванием и без него.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "=") {
		return base64.URLEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}
