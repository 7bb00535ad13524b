// auth.go — определение вызывающего: bearer-токен IdP, cookie сессии
// или анонимный доступ. Результат помещается в контекст запроса.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/goartstore/storage-gateway/internal/api/errors"
	"github.com/bigkaa/goartstore/storage-gateway/internal/permission"
	"github.com/bigkaa/goartstore/storage-gateway/internal/session"
)

type contextKey string

// ContextKeyCaller — вызывающий в контексте запроса.
const ContextKeyCaller contextKey = "caller"

// tokenClaims — claims bearer-токена IdP.
type tokenClaims struct {
	jwt.RegisteredClaims
	// Scope — scopes через пробел
	Scope string `json:"scope,omitempty"`
}

// Authenticator определяет вызывающего для каждого запроса.
type Authenticator struct {
	jwks     keyfunc.Keyfunc
	sessions *session.Manager
	issuer   string
	leeway   time.Duration
	logger   *slog.Logger
}

// AuthOptions — параметры проверки bearer-токенов.
type AuthOptions struct {
	// JWKSURL — JWKS endpoint IdP; пустой — bearer-токены отклоняются
	JWKSURL string
	// Issuer — ожидаемый iss (пустой — не проверяется)
	Issuer string
	// Leeway — допустимое расхождение часов
	Leeway time.Duration
	// ClientTimeout — таймаут HTTP-клиента JWKS
	ClientTimeout time.Duration
	// RefreshInterval — интервал обновления ключей
	RefreshInterval time.Duration
}

// NewAuthenticator создаёт Authenticator. sessions может быть nil.
func NewAuthenticator(opts AuthOptions, sessions *session.Manager, logger *slog.Logger) (*Authenticator, error) {
	a := &Authenticator{
		sessions: sessions,
		issuer:   opts.Issuer,
		leeway:   opts.Leeway,
		logger:   logger.With(slog.String("component", "auth")),
	}
	if opts.JWKSURL == "" {
		a.logger.Warn("JWKS URL не задан, bearer-токены будут отклоняться")
		return a, nil
	}

	// Стартуем, даже если IdP ещё недоступен
	storage, err := jwkset.NewStorageFromHTTP(opts.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: opts.ClientTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           opts.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", opts.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	a.jwks = k
	return a, nil
}

// NewAuthenticatorWithKeyfunc создаёт Authenticator с готовой keyfunc (для тестов).
func NewAuthenticatorWithKeyfunc(kf keyfunc.Keyfunc, issuer string, sessions *session.Manager, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		jwks:     kf,
		sessions: sessions,
		issuer:   issuer,
		logger:   logger.With(slog.String("component", "auth")),
	}
}

// Middleware помещает вызывающего в контекст. Некорректный bearer-токен
// отклоняется с 401; некорректная cookie сессии означает анонимный доступ.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := permission.Anonymous()

			if header := r.Header.Get("Authorization"); header != "" {
				c, msg := a.fromBearer(r.Context(), header)
				if msg != "" {
					a.logger.Debug("Bearer-токен отклонён",
						slog.String("reason", msg),
						slog.String("remote_addr", r.RemoteAddr),
					)
					apierrors.Unauthorized(w, msg)
					return
				}
				caller = c
			} else if a.sessions != nil {
				data, err := a.sessions.FromRequest(r)
				switch {
				case err != nil:
					a.logger.Debug("Cookie сессии отклонена",
						slog.String("error", err.Error()),
						slog.String("remote_addr", r.RemoteAddr),
					)
				case data != nil:
					caller = permission.Caller{UserID: data.UserID, Method: permission.MethodSession}
				}
			}

			ctx := context.WithValue(r.Context(), ContextKeyCaller, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// fromBearer проверяет bearer-токен. Непустое сообщение — причина отказа.
func (a *Authenticator) fromBearer(ctx context.Context, header string) (permission.Caller, string) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return permission.Caller{}, "Неверный формат Authorization: ожидается Bearer <token>"
	}
	if a.jwks == nil {
		return permission.Caller{}, "Bearer-токены не принимаются"
	}

	claims := &tokenClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.leeway),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(parts[1], claims, a.jwks.KeyfuncCtx(ctx), parserOpts...)
	if err != nil || !token.Valid {
		return permission.Caller{}, "Невалидный или просроченный токен"
	}
	if claims.Subject == "" {
		return permission.Caller{}, "Отсутствует sub в токене"
	}

	return permission.Caller{
		UserID: claims.Subject,
		Method: permission.MethodBearer,
		Scopes: strings.Fields(claims.Scope),
	}, ""
}

// CallerFromContext возвращает вызывающего; без middleware — анонимный.
func CallerFromContext(ctx context.Context) permission.Caller {
	if c, ok := ctx.Value(ContextKeyCaller).(permission.Caller); ok {
		return c
	}
	return permission.Anonymous()
}
