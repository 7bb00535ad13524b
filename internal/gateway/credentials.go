package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/goartstore/storage-gateway/internal/action"
	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/storage-gateway/internal/envelope"
	"github.com/bigkaa/goartstore/storage-gateway/internal/events"
	"github.com/bigkaa/goartstore/storage-gateway/internal/filetree"
	"github.com/bigkaa/goartstore/storage-gateway/internal/permission"
	"github.com/bigkaa/goartstore/storage-gateway/internal/provider"
	"github.com/bigkaa/goartstore/storage-gateway/internal/repository"
)

// IssueCredentials проверяет зашифрованный запрос исполнительного слоя
// и возвращает зашифрованный конверт с учётными данными поставщика.
func (g *Gateway) IssueCredentials(ctx context.Context, ciphertext string, caller permission.Caller) (string, error) {
	claims, err := g.deps.Codec.Open(ciphertext)
	if err != nil {
		envelopeRejectionsTotal.WithLabelValues("issue_credentials").Inc()
		return "", err
	}

	var req credentialsRequest
	if err := decodeClaims(claims, &req); err != nil {
		return "", err
	}
	required, err := action.RequiredPermission(req.Action)
	if err != nil {
		return "", err
	}

	res, err := g.resource(ctx, req.ResourceID)
	if err != nil {
		return "", err
	}
	user, err := g.identify(ctx, caller)
	if err != nil {
		return "", err
	}
	if err := g.deps.Resolver.Authorize(ctx, caller, res, req.Action); err != nil {
		return "", err
	}

	settings, err := g.providerSettings(ctx, res.ID, req.Provider)
	if err != nil {
		return "", err
	}

	var version *model.FileVersion
	switch {
	case action.IsContentRead(req.Action) && isFilePath(req.Path):
		if version, err = g.resolveReadTarget(ctx, res.ID, req); err != nil {
			return "", err
		}
	case required == model.PermissionWrite && req.Provider == provider.OSFStorageName && isFilePath(req.Path):
		if err := g.checkWritable(ctx, res.ID, req, caller.UserID); err != nil {
			return "", err
		}
	}

	creds, sett, err := g.deps.Providers.Serialize(ctx, settings, version)
	if err != nil {
		return "", err
	}

	if action.IsContentRead(req.Action) {
		ev := events.Event{
			Kind:       events.KindFileAccessed,
			ResourceID: res.ID,
			ActorID:    caller.UserID,
			Action:     accessAction(req.Action),
			Provider:   req.Provider,
			Path:       req.Path,
		}
		if version != nil {
			ev.Version = version.Identifier
		}
		g.deps.Bus.PublishAsync(ctx, ev)
	}

	sealed, err := g.deps.Codec.Seal(envelope.Claims{
		"auth":         g.authClaims(user),
		"credentials":  creds,
		"settings":     sett,
		"callback_url": g.cfg.CallbackURL(res.ID),
	}, g.cfg.EnvelopeTTL)
	if err != nil {
		return "", err
	}

	credentialsIssuedTotal.WithLabelValues(req.Provider, req.Action).Inc()
	g.logger.Debug("Учётные данные выданы",
		slog.String("resource_id", res.ID),
		slog.String("provider", req.Provider),
		slog.String("action", req.Action),
		slog.String("user_id", caller.UserID),
	)
	return sealed, nil
}

// providerSettings возвращает настройки поставщика ресурса. Встроенное
// хранилище подключено к каждому ресурсу, даже без сохранённой строки.
func (g *Gateway) providerSettings(ctx context.Context, resourceID, name string) (*model.ProviderSettings, error) {
	settings, err := g.deps.Resources.GetProviderSettings(ctx, resourceID, name)
	switch {
	case err == nil:
		return settings, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	case name == provider.OSFStorageName:
		return &model.ProviderSettings{ResourceID: resourceID, Provider: name}, nil
	default:
		return nil, fmt.Errorf("%w: %s", provider.ErrProviderNotFound, name)
	}
}

// resolveReadTarget разрешает файл и, для встроенного хранилища, его версию.
// Если версии нет, узел, созданный при разрешении пути, откатывается.
func (g *Gateway) resolveReadTarget(ctx context.Context, resourceID string, req credentialsRequest) (*model.FileVersion, error) {
	var version *model.FileVersion
	err := g.deps.Tx.RunInTx(ctx, func(ctx context.Context) error {
		node, err := g.deps.Tree.Resolve(ctx, resourceID, req.Provider, req.Path)
		if err != nil {
			return err
		}
		if req.Provider != provider.OSFStorageName {
			return nil
		}

		version, err = g.deps.Tree.ResolveVersion(ctx, node, string(req.Version))
		if errors.Is(err, filetree.ErrVersionNotFound) && req.Version == "" {
			return fmt.Errorf("%w: %s", ErrFileNotFound, req.Path)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// checkWritable отклоняет запись в файл, заблокированный другим.
func (g *Gateway) checkWritable(ctx context.Context, resourceID string, req credentialsRequest, actor string) error {
	node, err := g.deps.Tree.Lookup(ctx, resourceID, req.Provider, req.Path)
	if errors.Is(err, filetree.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if node.CheckedOutByOther(actor) {
		return &CheckoutError{Action: req.Action, Err: fmt.Errorf("%w: %s", filetree.ErrCheckedOut, req.Path)}
	}
	return nil
}

// authClaims — сводка вызывающего для исполнительного слоя.
func (g *Gateway) authClaims(u *model.User) map[string]any {
	if u == nil {
		return map[string]any{}
	}
	return map[string]any{
		"id":    u.ID,
		"name":  u.Fullname,
		"email": u.ID + "@" + g.cfg.ContactDomain,
	}
}

// accessAction — действие аналитики для чтения содержимого.
func accessAction(act string) string {
	if act == action.Download {
		return "downloaded"
	}
	return "viewed"
}

func isFilePath(p string) bool {
	return p != "" && !strings.HasSuffix(p, "/")
}
