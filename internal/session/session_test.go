package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestManager_RoundTrip(t *testing.T) {
	m, err := NewManager("session-secret")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	value, err := m.Encrypt(&Data{UserID: "u1", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: value})
	d, err := m.FromRequest(req)
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if d.UserID != "u1" {
		t.Errorf("UserID = %q, хотели u1", d.UserID)
	}
}

func TestManager_NoCookie(t *testing.T) {
	m, _ := NewManager("s")
	d, err := m.FromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	if d != nil || err != nil {
		t.Errorf("без cookie ожидалось nil, nil; получено %v, %v", d, err)
	}
}

func TestManager_Rejects(t *testing.T) {
	m, _ := NewManager("key-a")
	other, _ := NewManager("key-b")

	foreign, err := other.Encrypt(&Data{UserID: "u1", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatal(err)
	}
	expired, err := m.Encrypt(&Data{UserID: "u1", ExpiresAt: time.Now().Add(-time.Minute).Unix()})
	if err != nil {
		t.Fatal(err)
	}
	anonymous, err := m.Encrypt(&Data{ExpiresAt: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		value   string
		wantErr error
	}{
		{"чужой ключ", foreign, ErrInvalid},
		{"не base64", "%%%", ErrInvalid},
		{"слишком короткие данные", "YWJj", ErrInvalid},
		{"истёкшая", expired, ErrExpired},
		{"без пользователя", anonymous, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Decrypt(tt.value); !errors.Is(err, tt.wantErr) {
				t.Errorf("ожидалась %v, получено %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewManager_EmptySecret(t *testing.T) {
	if _, err := NewManager(""); err == nil {
		t.Error("ожидалась ошибка для пустого секрета")
	}
}
