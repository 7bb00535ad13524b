package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
)

func TestNewOSFStorage_InvalidJSON(t *testing.T) {
	if _, err := NewOSFStorage("filesystem", "default", "{not json"); err == nil {
		t.Error("ожидалась ошибка разбора JSON")
	}
}

func TestRegistry_Serialize(t *testing.T) {
	osf, err := NewOSFStorage("s3", "eu-1", `{"access_key":"ak","secret_key":"sk"}`)
	if err != nil {
		t.Fatal(err)
	}
	reg := NewRegistry(Stored{}, osf)
	ctx := context.Background()

	t.Run("osfstorage с версией", func(t *testing.T) {
		settings := &model.ProviderSettings{ResourceID: "abc12", Provider: OSFStorageName}
		version := &model.FileVersion{Identifier: 3, Location: map[string]string{"object": "sha"}}

		creds, sett, err := reg.Serialize(ctx, settings, version)
		if err != nil {
			t.Fatalf("Serialize: %v", err)
		}
		if creds["access_key"] != "ak" {
			t.Errorf("credentials = %v", creds)
		}
		if sett["version"] != "3" || sett["nid"] != "abc12" {
			t.Errorf("settings = %v", sett)
		}
		loc, ok := sett["location"].(map[string]any)
		if !ok || loc["object"] != "sha" {
			t.Errorf("location = %v", sett["location"])
		}
		storage, _ := sett["storage"].(map[string]any)
		if storage["region"] != "eu-1" {
			t.Errorf("storage = %v", storage)
		}
	})

	t.Run("osfstorage без версии", func(t *testing.T) {
		settings := &model.ProviderSettings{ResourceID: "abc12", Provider: OSFStorageName}
		_, sett, err := reg.Serialize(ctx, settings, nil)
		if err != nil {
			t.Fatalf("Serialize: %v", err)
		}
		if _, ok := sett["version"]; ok {
			t.Error("без версии не должно быть ключа version")
		}
	})

	t.Run("внешний поставщик", func(t *testing.T) {
		settings := &model.ProviderSettings{
			ResourceID:  "abc12",
			Provider:    "s3",
			Credentials: map[string]any{"token": "t"},
			Settings:    map[string]any{"bucket": "b"},
		}
		creds, sett, err := reg.Serialize(ctx, settings, nil)
		if err != nil {
			t.Fatalf("Serialize: %v", err)
		}
		if creds["token"] != "t" || sett["bucket"] != "b" {
			t.Errorf("creds = %v, settings = %v", creds, sett)
		}
		// Копия, а не ссылка на сохранённые данные
		creds["token"] = "changed"
		if settings.Credentials["token"] != "t" {
			t.Error("сериализация должна возвращать копию")
		}
	})

	t.Run("внешний поставщик без учётных данных", func(t *testing.T) {
		settings := &model.ProviderSettings{ResourceID: "abc12", Provider: "box"}
		if _, _, err := reg.Serialize(ctx, settings, nil); !errors.Is(err, ErrMisconfigured) {
			t.Errorf("ожидалась ErrMisconfigured, получено %v", err)
		}
	})
}

func TestOSFStorage_NoCredentials(t *testing.T) {
	osf, err := NewOSFStorage("filesystem", "default", "")
	if err != nil {
		t.Fatal(err)
	}
	reg := NewRegistry(nil, osf)

	settings := &model.ProviderSettings{ResourceID: "abc12", Provider: OSFStorageName}
	if _, _, err := reg.Serialize(context.Background(), settings, nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("ожидалась ErrUnavailable, получено %v", err)
	}

	missing := &model.ProviderSettings{ResourceID: "abc12", Provider: "dropbox"}
	if _, _, err := reg.Serialize(context.Background(), missing, nil); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("без fallback ожидалась ErrProviderNotFound, получено %v", err)
	}
}
