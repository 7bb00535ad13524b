// Пакет session — зашифрованные сессионные cookie пользователей
// веб-приложения. Шифрование AES-256-GCM, cookie содержит только
// идентификатор пользователя и срок действия.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CookieName — имя cookie сессии.
const CookieName = "sg_session"

// Ошибки сессии.
var (
	ErrInvalid = errors.New("некорректная сессия")
	ErrExpired = errors.New("сессия истекла")
)

// Data — содержимое cookie.
type Data struct {
	UserID    string `json:"uid"`
	ExpiresAt int64  `json:"exp"`
}

// Manager шифрует и расшифровывает Data.
type Manager struct {
	gcm cipher.AEAD
	now func() time.Time
}

// NewManager создаёт менеджер. secret — base64 32-байтового ключа
// или произвольная строка (хешируется SHA-256). Cookie выдаёт
// веб-приложение, шлюз их только читает.
func NewManager(secret string) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("секрет сессии не задан")
	}

	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil || len(key) != 32 {
		sum := sha256.Sum256([]byte(secret))
		key = sum[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &Manager{gcm: gcm, now: time.Now}, nil
}

// Encrypt шифрует данные сессии.
func (m *Manager) Encrypt(d *Data) (string, error) {
	plaintext, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации сессии: %w", err)
	}

	nonce := make([]byte, m.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}
	return base64.URLEncoding.EncodeToString(m.gcm.Seal(nonce, nonce, plaintext, nil)), nil
}

// Decrypt расшифровывает cookie и проверяет срок действия.
func (m *Manager) Decrypt(encrypted string) (*Data, error) {
	raw, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrInvalid, err)
	}

	nonceSize := m.gcm.NonceSize()
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("%w: данные слишком короткие", ErrInvalid)
	}
	plaintext, err := m.gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var d Data
	if err := json.Unmarshal(plaintext, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if d.UserID == "" {
		return nil, fmt.Errorf("%w: нет пользователя", ErrInvalid)
	}
	if m.now().Unix() >= d.ExpiresAt {
		return nil, ErrExpired
	}
	return &d, nil
}

// FromRequest возвращает данные сессии запроса; nil, nil — cookie нет.
func (m *Manager) FromRequest(r *http.Request) (*Data, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}
	return m.Decrypt(cookie.Value)
}
