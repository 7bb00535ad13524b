package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/storage-gateway/internal/repository"
)

// countingUsers считает обращения к хранилищу.
type countingUsers struct {
	users map[string]*model.User
	calls int
}

func (c *countingUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	c.calls++
	u, ok := c.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func TestUserCache_GetByID(t *testing.T) {
	repo := &countingUsers{users: map[string]*model.User{
		"u1": {ID: "u1", Fullname: "Ada", IsActive: true},
	}}
	cache := NewUserCache(repo, 10, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		u, err := cache.GetByID(ctx, "u1")
		if err != nil || u.Fullname != "Ada" {
			t.Fatalf("GetByID = %+v, %v", u, err)
		}
	}
	if repo.calls != 1 {
		t.Errorf("обращений к хранилищу = %d, хотели 1", repo.calls)
	}

	cache.Invalidate("u1")
	if _, err := cache.GetByID(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if repo.calls != 2 {
		t.Errorf("после инвалидации обращений = %d, хотели 2", repo.calls)
	}
}

func TestUserCache_MissingNotCached(t *testing.T) {
	repo := &countingUsers{users: map[string]*model.User{}}
	cache := NewUserCache(repo, 10, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.GetByID(context.Background(), "ghost"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("ожидалась ErrNotFound, получено %v", err)
		}
	}
	if repo.calls != 2 {
		t.Errorf("отсутствующий пользователь не должен кэшироваться, обращений %d", repo.calls)
	}
}

func TestUserCache_TTL(t *testing.T) {
	repo := &countingUsers{users: map[string]*model.User{"u1": {ID: "u1"}}}
	cache := NewUserCache(repo, 10, 20*time.Millisecond)

	if _, err := cache.GetByID(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, err := cache.GetByID(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if repo.calls != 2 {
		t.Errorf("после истечения TTL обращений = %d, хотели 2", repo.calls)
	}
}

func TestNewDephealthService_NoDependencies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewDephealthService(DephealthParams{ServiceID: "storage-gateway", Group: "g"}, logger); !errors.Is(err, ErrNoDependencies) {
		t.Errorf("ожидалась ErrNoDependencies, получено %v", err)
	}
}

func TestJWKSHealthPath(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"путь realm", "https://idp.example.org/realms/osf/protocol/openid-connect/certs", "/realms/osf/protocol/openid-connect/certs"},
		{"без пути", "https://idp.example.org", "/health"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := jwksHealthPath(tt.url); got != tt.want {
				t.Errorf("jwksHealthPath = %q, хотели %q", got, tt.want)
			}
		})
	}
}
