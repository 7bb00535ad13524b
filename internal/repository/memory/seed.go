package memory

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
)

// Checkout — блокировка файла из seed. Ставится через дерево файлов,
// когда оно собрано: путь разрешается так же, как в запросах.
type Checkout struct {
	ResourceID string `json:"resource_id"`
	Provider   string `json:"provider"`
	Path       string `json:"path"`
	UserID     string `json:"user_id"`
}

// seedFile — начальные данные внешней системы для SG_STORE=memory.
type seedFile struct {
	Resources []struct {
		ID            string  `json:"id"`
		ParentID      *string `json:"parent_id"`
		Type          string  `json:"type"`
		Title         string  `json:"title"`
		IsPublic      bool    `json:"is_public"`
		IsDeleted     bool    `json:"is_deleted"`
		IsRetracted   bool    `json:"is_retracted"`
		PrimaryFileID *string `json:"primary_file_id"`
	} `json:"resources"`
	Users []struct {
		ID       string `json:"id"`
		Fullname string `json:"fullname"`
		Username string `json:"username"`
		IsActive bool   `json:"is_active"`
	} `json:"users"`
	Grants []struct {
		ResourceID string `json:"resource_id"`
		UserID     string `json:"user_id"`
		Permission string `json:"permission"`
	} `json:"grants"`
	ProviderSettings []struct {
		ResourceID  string         `json:"resource_id"`
		Provider    string         `json:"provider"`
		Credentials map[string]any `json:"credentials"`
		Settings    map[string]any `json:"settings"`
	} `json:"provider_settings"`
	Checkouts []Checkout `json:"checkouts"`
}

// LoadSeed наполняет хранилище ресурсами, пользователями, правами и
// настройками провайдеров из JSON. Блокировки файлов возвращаются
// вызывающему.
func (s *Store) LoadSeed(r io.Reader) ([]Checkout, error) {
	var seed seedFile
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return nil, fmt.Errorf("ошибка чтения seed: %w", err)
	}

	for _, g := range seed.Grants {
		if !model.Permission(g.Permission).IsValid() {
			return nil, fmt.Errorf("seed: недопустимый уровень доступа %q для %s на %s", g.Permission, g.UserID, g.ResourceID)
		}
	}
	for _, c := range seed.Checkouts {
		if c.ResourceID == "" || c.Provider == "" || c.Path == "" || c.UserID == "" {
			return nil, fmt.Errorf("seed: неполная блокировка %+v", c)
		}
	}

	for _, r := range seed.Resources {
		s.PutResource(&model.Resource{
			ID:            r.ID,
			ParentID:      r.ParentID,
			Type:          model.ResourceType(r.Type),
			Title:         r.Title,
			IsPublic:      r.IsPublic,
			IsDeleted:     r.IsDeleted,
			IsRetracted:   r.IsRetracted,
			PrimaryFileID: r.PrimaryFileID,
		})
	}
	for _, u := range seed.Users {
		s.PutUser(&model.User{ID: u.ID, Fullname: u.Fullname, Username: u.Username, IsActive: u.IsActive})
	}
	for _, g := range seed.Grants {
		s.Grant(g.ResourceID, g.UserID, model.Permission(g.Permission))
	}
	for _, ps := range seed.ProviderSettings {
		s.PutProviderSettings(&model.ProviderSettings{
			ResourceID:  ps.ResourceID,
			Provider:    ps.Provider,
			Credentials: ps.Credentials,
			Settings:    ps.Settings,
		})
	}
	return seed.Checkouts, nil
}
