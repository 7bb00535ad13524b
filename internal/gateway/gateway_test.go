package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/storage-gateway/internal/action"
	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
	"github.com/bigkaa/goartstore/storage-gateway/internal/envelope"
	"github.com/bigkaa/goartstore/storage-gateway/internal/events"
	"github.com/bigkaa/goartstore/storage-gateway/internal/filetree"
	"github.com/bigkaa/goartstore/storage-gateway/internal/permission"
	"github.com/bigkaa/goartstore/storage-gateway/internal/provider"
	"github.com/bigkaa/goartstore/storage-gateway/internal/repository"
	"github.com/bigkaa/goartstore/storage-gateway/internal/repository/memory"
)

const osf = provider.OSFStorageName

var (
	writer = permission.Caller{UserID: "u1", Method: permission.MethodSession}
	reader = permission.Caller{UserID: "u2", Method: permission.MethodSession}
	other  = permission.Caller{UserID: "u4", Method: permission.MethodSession}
)

// eventRecorder запоминает события шины.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Name() string { return "recorder" }

func (r *eventRecorder) Handle(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) byKind(kind events.Kind) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	gw       *Gateway
	store    *memory.Store
	codec    *envelope.Codec
	tree     *filetree.Tree
	bus      *events.Bus
	recorder *eventRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memory.New()
	store.PutResource(&model.Resource{ID: "R123", Type: model.ResourceProject, Title: "Проект"})
	store.PutResource(&model.Resource{ID: "PUB1", Type: model.ResourceProject, IsPublic: true})
	store.PutResource(&model.Resource{ID: "DEL1", Type: model.ResourceProject, IsDeleted: true})
	store.PutResource(&model.Resource{ID: "R999", Type: model.ResourceProject})
	store.PutUser(&model.User{ID: "u1", Fullname: "Ada Writer", IsActive: true})
	store.PutUser(&model.User{ID: "u2", Fullname: "Rita Reader", IsActive: true})
	store.PutUser(&model.User{ID: "u3", Fullname: "Ivan Inactive"})
	store.PutUser(&model.User{ID: "u4", Fullname: "Oleg Other", IsActive: true})
	store.Grant("R123", "u1", model.PermissionWrite)
	store.Grant("R123", "u2", model.PermissionRead)
	store.Grant("R123", "u3", model.PermissionWrite)
	store.Grant("R123", "u4", model.PermissionWrite)
	store.Grant("R999", "u1", model.PermissionAdmin)

	keys, err := envelope.NewKeys([]byte("signing-secret"), bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatal(err)
	}
	codec, err := envelope.NewCodec(keys)
	if err != nil {
		t.Fatal(err)
	}

	tree := filetree.New(filetree.Deps{
		Tx:        store,
		Nodes:     store.Nodes(),
		Versions:  store.Versions(),
		Resources: store.Resources(),
	}, logger)

	osfProvider, err := provider.NewOSFStorage("filesystem", "default", `{"token":"wb-token"}`)
	if err != nil {
		t.Fatal(err)
	}

	recorder := &eventRecorder{}
	bus := events.NewBus(logger, time.Second, recorder)

	gw := New(Deps{
		Codec:     codec,
		Resolver:  permission.NewResolver(store.Resources(), logger),
		Tree:      tree,
		Providers: provider.NewRegistry(provider.Stored{}, osfProvider),
		Bus:       bus,
		Tx:        store,
		Resources: store.Resources(),
		Users:     store.Users(),
		Audit:     store.Audit(),
		Usage:     store.Usage(),
	}, Config{
		EnvelopeTTL:   time.Minute,
		ContactDomain: "users.test",
		CallbackURL: func(id string) string {
			return "https://gw.test/api/v1/resources/" + id + "/waterbutler/logs"
		},
	}, logger)

	return &fixture{gw: gw, store: store, codec: codec, tree: tree, bus: bus, recorder: recorder}
}

// request шифрует запрос учётных данных.
func (f *fixture) request(t *testing.T, claims envelope.Claims) string {
	t.Helper()
	ct, err := f.codec.Seal(claims, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return ct
}

// report подписывает отчёт об операции.
func (f *fixture) report(t *testing.T, claims envelope.Claims) string {
	t.Helper()
	signed, err := f.codec.Sign(claims, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.bus.Wait(ctx); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) auditActions(t *testing.T, resourceID string) []string {
	t.Helper()
	entries, err := f.store.Audit().ListByResource(context.Background(), resourceID, 100)
	if err != nil {
		t.Fatal(err)
	}
	actions := make([]string, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
	}
	return actions
}

func fileEndpoint(nid, p string, size int, sum string) map[string]any {
	return map[string]any{
		"nid":          nid,
		"provider":     osf,
		"materialized": p,
		"size":         size,
		"contentType":  "application/pdf",
		"hashes":       map[string]any{"sha256": sum},
		"location":     map[string]any{"object": sum},
	}
}

func createReport(p string, size int, sum string) envelope.Claims {
	return envelope.Claims{
		"action":   action.OpCreate,
		"provider": osf,
		"auth":     map[string]any{"id": "u1"},
		"metadata": fileEndpoint("R123", p, size, sum),
	}
}

func (f *fixture) record(t *testing.T, resourceID string, claims envelope.Claims) {
	t.Helper()
	if err := f.gw.RecordOperation(context.Background(), resourceID, f.report(t, claims)); err != nil {
		t.Fatalf("RecordOperation: %v", err)
	}
}

func TestUploadThenRecordCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ct := f.request(t, envelope.Claims{
		"nid": "R123", "action": action.Upload, "provider": osf, "path": "/report.pdf",
	})
	resp, err := f.gw.IssueCredentials(ctx, ct, writer)
	if err != nil {
		t.Fatalf("IssueCredentials: %v", err)
	}

	claims, err := f.codec.Open(resp)
	if err != nil {
		t.Fatalf("ответ не открывается: %v", err)
	}
	creds, _ := claims["credentials"].(map[string]any)
	if creds["token"] != "wb-token" {
		t.Errorf("credentials = %v", claims["credentials"])
	}
	settings, _ := claims["settings"].(map[string]any)
	if settings["nid"] != "R123" {
		t.Errorf("settings = %v", claims["settings"])
	}
	if _, ok := settings["version"]; ok {
		t.Error("для загрузки версия не выбирается")
	}
	if claims["callback_url"] != "https://gw.test/api/v1/resources/R123/waterbutler/logs" {
		t.Errorf("callback_url = %v", claims["callback_url"])
	}
	auth, _ := claims["auth"].(map[string]any)
	if auth["id"] != "u1" || auth["name"] != "Ada Writer" || auth["email"] != "u1@users.test" {
		t.Errorf("auth = %v", claims["auth"])
	}
	if _, err := f.tree.Lookup(ctx, "R123", osf, "/report.pdf"); !errors.Is(err, filetree.ErrNotFound) {
		t.Errorf("выдача учётных данных на загрузку не должна создавать узел: %v", err)
	}

	f.record(t, "R123", createReport("/report.pdf", 10, "abc"))

	if got := f.auditActions(t, "R123"); len(got) != 1 || got[0] != "added" {
		t.Fatalf("журнал = %v, хотели [added]", got)
	}
	node, err := f.tree.Lookup(ctx, "R123", osf, "/report.pdf")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	v, err := f.tree.ResolveVersion(ctx, node, "")
	if err != nil || v.Identifier != 1 || v.Size != 10 || v.CreatorID == nil || *v.CreatorID != "u1" {
		t.Errorf("версия = %+v, %v", v, err)
	}
	usage, err := f.store.Usage().Get(ctx, "R123")
	if err != nil || usage.BytesUsed != 10 || usage.VersionCount != 1 || usage.LogCount != 1 {
		t.Errorf("usage = %+v, %v", usage, err)
	}

	f.wait(t)
	recorded := f.recorder.byKind(events.KindOperationRecorded)
	if len(recorded) != 1 || recorded[0].Action != "added" || recorded[0].Version != 1 {
		t.Errorf("события = %+v", recorded)
	}
}

func TestRecordMoveClassifiedAsRename(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "R123", createReport("/docs/old.txt", 4, "old"))
	before, _ := f.tree.Lookup(ctx, "R123", osf, "/docs/old.txt")

	f.record(t, "R123", envelope.Claims{
		"action":   action.OpMove,
		"provider": osf,
		"auth":     map[string]any{"id": "u1"},
		"source": map[string]any{
			"nid": "R123", "provider": osf, "materialized": "/docs/old.txt", "name": "old.txt",
		},
		"destination": map[string]any{
			"nid": "R123", "provider": osf, "materialized": "/docs/new.txt", "name": "new.txt",
		},
	})

	if got := f.auditActions(t, "R123"); len(got) != 2 || got[0] != "renamed" {
		t.Fatalf("журнал = %v, последним ожидался renamed", got)
	}
	after, err := f.tree.Lookup(ctx, "R123", osf, "/docs/new.txt")
	if err != nil || after.ID != before.ID {
		t.Errorf("переименованный узел = %+v, %v", after, err)
	}
	if _, err := f.tree.Lookup(ctx, "R123", osf, "/docs/old.txt"); !errors.Is(err, filetree.ErrNotFound) {
		t.Errorf("старый путь должен исчезнуть: %v", err)
	}
}

func TestRecordMoveAcrossResources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "R123", createReport("/data/big.bin", 100, "big"))

	f.record(t, "R123", envelope.Claims{
		"action": action.OpMove,
		"auth":   map[string]any{"id": "u1"},
		"source": map[string]any{
			"nid": "R123", "provider": osf, "materialized": "/data/big.bin", "name": "big.bin",
		},
		"destination": map[string]any{
			"nid": "R999", "provider": osf, "materialized": "/big.bin", "name": "big.bin",
		},
	})

	if got := f.auditActions(t, "R123"); got[0] != "moved" {
		t.Errorf("последнее действие = %q, хотели moved", got[0])
	}
	src, _ := f.store.Usage().Get(ctx, "R123")
	dst, _ := f.store.Usage().Get(ctx, "R999")
	if src.BytesUsed != 0 || dst == nil || dst.BytesUsed != 100 || dst.VersionCount != 1 {
		t.Errorf("usage источника = %+v, назначения = %+v", src, dst)
	}

	f.wait(t)
	recorded := f.recorder.byKind(events.KindOperationRecorded)
	last := recorded[len(recorded)-1]
	if len(last.CleanupNodeIDs) != 1 {
		t.Errorf("после переноса ожидалась очистка прежнего родителя: %+v", last)
	}
}

func TestDownloadSelectsVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "R123", createReport("/paper.pdf", 10, "v1"))
	f.record(t, "R123", createReport("/paper.pdf", 20, "v2"))

	tests := []struct {
		name    string
		version any
		want    string
	}{
		{"последняя версия", nil, "2"},
		{"явная версия строкой", "1", "1"},
		{"явная версия числом", 1, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := envelope.Claims{"nid": "R123", "action": action.Download, "provider": osf, "path": "/paper.pdf"}
			if tt.version != nil {
				claims["version"] = tt.version
			}
			resp, err := f.gw.IssueCredentials(ctx, f.request(t, claims), reader)
			if err != nil {
				t.Fatalf("IssueCredentials: %v", err)
			}
			opened, _ := f.codec.Open(resp)
			settings, _ := opened["settings"].(map[string]any)
			if settings["version"] != tt.want {
				t.Errorf("version = %v, хотели %s", settings["version"], tt.want)
			}
		})
	}

	f.wait(t)
	accessed := f.recorder.byKind(events.KindFileAccessed)
	if len(accessed) != len(tests) || accessed[0].Action != "downloaded" {
		t.Errorf("события чтения = %+v", accessed)
	}
}

func TestIssueCredentials_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "R123", createReport("/exists.txt", 1, "e"))

	anonymous := permission.Anonymous()
	inactive := permission.Caller{UserID: "u3", Method: permission.MethodSession}
	unscoped := permission.Caller{UserID: "u1", Method: permission.MethodBearer, Scopes: []string{permission.ScopeFilesRead}}

	req := func(nid, act, prov, p string) envelope.Claims {
		return envelope.Claims{"nid": nid, "action": act, "provider": prov, "path": p}
	}

	tests := []struct {
		name    string
		claims  envelope.Claims
		raw     string
		caller  permission.Caller
		wantErr error
	}{
		{"повреждённый конверт", nil, "not-an-envelope", writer, envelope.ErrInvalid},
		{"нет nid", envelope.Claims{"action": action.Metadata, "provider": osf}, "", writer, ErrMalformed},
		{"неизвестное действие", req("R123", "destroy", osf, "/"), "", writer, action.ErrUnknownAction},
		{"ресурс не найден", req("NOPE", action.Metadata, osf, "/"), "", writer, ErrResourceNotFound},
		{"ресурс удалён", req("DEL1", action.Metadata, osf, "/"), "", writer, ErrResourceGone},
		{"аноним на закрытом ресурсе", req("R123", action.Metadata, osf, "/"), "", anonymous, permission.ErrUnauthenticated},
		{"неактивный пользователь", req("R123", action.Metadata, osf, "/"), "", inactive, permission.ErrUnauthenticated},
		{"читатель пишет", req("R123", action.Upload, osf, "/new.txt"), "", reader, permission.ErrForbidden},
		{"токен без scope записи", req("R123", action.Upload, osf, "/new.txt"), "", unscoped, permission.ErrInsufficientScope},
		{"поставщик не подключён", req("R123", action.Metadata, "s3", "/"), "", writer, provider.ErrProviderNotFound},
		{"скачивание отсутствующего файла", req("R123", action.Download, osf, "/missing.txt"), "", writer, ErrFileNotFound},
		{"отсутствующая версия", envelope.Claims{
			"nid": "R123", "action": action.Download, "provider": osf, "path": "/exists.txt", "version": "7",
		}, "", writer, filetree.ErrVersionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct := tt.raw
			if ct == "" {
				ct = f.request(t, tt.claims)
			}
			if _, err := f.gw.IssueCredentials(ctx, ct, tt.caller); !errors.Is(err, tt.wantErr) {
				t.Errorf("ожидалась %v, получено %v", tt.wantErr, err)
			}
		})
	}

	// Узел, созданный при поиске версии, откатывается
	if _, err := f.tree.Lookup(ctx, "R123", osf, "/missing.txt"); !errors.Is(err, filetree.ErrNotFound) {
		t.Errorf("узел отсутствующего файла должен откатиться: %v", err)
	}
}

func TestIssueCredentials_PublicAnonymous(t *testing.T) {
	f := newFixture(t)
	ct := f.request(t, envelope.Claims{"nid": "PUB1", "action": action.Metadata, "provider": osf, "path": "/"})
	resp, err := f.gw.IssueCredentials(context.Background(), ct, permission.Anonymous())
	if err != nil {
		t.Fatalf("IssueCredentials: %v", err)
	}
	claims, _ := f.codec.Open(resp)
	if auth, _ := claims["auth"].(map[string]any); len(auth) != 0 {
		t.Errorf("для анонима auth должен быть пустым: %v", auth)
	}
}

func TestCheckedOutFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "R123", createReport("/locked.docx", 3, "l"))
	node, _ := f.tree.Lookup(ctx, "R123", osf, "/locked.docx")
	if _, err := f.tree.Checkout(ctx, node, "u1"); err != nil {
		t.Fatal(err)
	}

	ct := f.request(t, envelope.Claims{"nid": "R123", "action": action.Upload, "provider": osf, "path": "/locked.docx"})
	_, err := f.gw.IssueCredentials(ctx, ct, other)
	var coErr *CheckoutError
	if !errors.As(err, &coErr) || coErr.Action != action.Upload {
		t.Fatalf("загрузка в чужой заблокированный файл: %v", err)
	}
	if _, err := f.gw.IssueCredentials(ctx, ct, writer); err != nil {
		t.Errorf("держатель блокировки может загружать: %v", err)
	}

	deleteReport := envelope.Claims{
		"action":   action.OpDelete,
		"auth":     map[string]any{"id": "u4"},
		"metadata": fileEndpoint("R123", "/locked.docx", 0, ""),
	}
	err = f.gw.RecordOperation(ctx, "R123", f.report(t, deleteReport))
	if !errors.As(err, &coErr) || coErr.Action != action.Delete {
		t.Fatalf("удаление чужого заблокированного файла: %v", err)
	}
	if got := f.auditActions(t, "R123"); len(got) != 1 {
		t.Errorf("отклонённая операция не должна попадать в журнал: %v", got)
	}
}

func TestRecordOperation_PrimaryFileRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "R123", createReport("/main.pdf", 8, "m"))
	node, _ := f.tree.Lookup(ctx, "R123", osf, "/main.pdf")
	f.store.PutResource(&model.Resource{ID: "R123", Type: model.ResourcePreprint, PrimaryFileID: &node.ID})

	err := f.gw.RecordOperation(ctx, "R123", f.report(t, envelope.Claims{
		"action": action.OpMove,
		"auth":   map[string]any{"id": "u1"},
		"source": map[string]any{
			"nid": "R123", "provider": osf, "materialized": "/main.pdf", "name": "main.pdf",
		},
		"destination": map[string]any{
			"nid": "R123", "provider": osf, "materialized": "/archive/main.pdf", "name": "main.pdf",
		},
	}))
	if !errors.Is(err, filetree.ErrPrimaryFileProtected) {
		t.Fatalf("ожидалась ErrPrimaryFileProtected, получено %v", err)
	}

	if got := f.auditActions(t, "R123"); len(got) != 1 {
		t.Errorf("журнал = %v, откат должен отменить запись", got)
	}
	usage, _ := f.store.Usage().Get(ctx, "R123")
	if usage.LogCount != 1 {
		t.Errorf("LogCount = %d, хотели 1", usage.LogCount)
	}
	if _, err := f.tree.Lookup(ctx, "R123", osf, "/archive/"); !errors.Is(err, filetree.ErrNotFound) {
		t.Errorf("папка назначения должна откатиться: %v", err)
	}
}

func TestRecordOperation_Variants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Скачивание подтверждается без записи
	f.record(t, "R123", envelope.Claims{"action": action.OpDownloadFile, "auth": map[string]any{"id": "u1"}})

	// Ошибка исполнительного слоя — уведомление без записи
	failed := createReport("/broken.txt", 1, "b")
	failed["errors"] = []any{"disk full"}
	f.record(t, "R123", failed)

	if got := f.auditActions(t, "R123"); len(got) != 0 {
		t.Fatalf("журнал = %v, хотели пустой", got)
	}

	// Повторная загрузка того же содержимого уточняет метаданные
	f.record(t, "R123", createReport("/same.txt", 5, "s"))
	update := createReport("/same.txt", 5, "s")
	update["action"] = action.OpUpdate
	update["metadata"].(map[string]any)["contentType"] = "text/plain"
	f.record(t, "R123", update)

	node, _ := f.tree.Lookup(ctx, "R123", osf, "/same.txt")
	versions, _ := f.store.Versions().List(ctx, node.ID)
	if len(versions) != 1 || versions[0].ContentType != "text/plain" {
		t.Errorf("версии = %+v, хотели одну с уточнённым типом", versions)
	}

	// Папка: создание, повтор, удаление
	folder := envelope.Claims{
		"action":   action.OpCreateFolder,
		"auth":     map[string]any{"id": "u1"},
		"metadata": map[string]any{"nid": "R123", "provider": osf, "materialized": "/dir/", "kind": "folder"},
	}
	f.record(t, "R123", folder)
	if err := f.gw.RecordOperation(ctx, "R123", f.report(t, folder)); !errors.Is(err, filetree.ErrNameConflict) {
		t.Errorf("повторное создание папки: ожидалась ErrNameConflict, получено %v", err)
	}

	f.record(t, "R123", createReport("/dir/inner.bin", 50, "i"))
	f.record(t, "R123", envelope.Claims{
		"action":   action.OpDelete,
		"auth":     map[string]any{"id": "u1"},
		"metadata": map[string]any{"nid": "R123", "provider": osf, "materialized": "/dir/", "kind": "folder"},
	})
	if _, err := f.tree.Lookup(ctx, "R123", osf, "/dir/inner.bin"); !errors.Is(err, filetree.ErrNotFound) {
		t.Errorf("содержимое удалённой папки должно исчезнуть: %v", err)
	}

	usage, _ := f.store.Usage().Get(ctx, "R123")
	if usage.BytesUsed != 5 || usage.VersionCount != 1 {
		t.Errorf("usage = %+v, после удаления папки ожидалось 5 байт и 1 версия", usage)
	}
	want := []string{"removed", "added", "folder_created", "updated", "added"}
	got := f.auditActions(t, "R123")
	if len(got) != len(want) {
		t.Fatalf("журнал = %v, хотели %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("журнал[%d] = %q, хотели %q", i, got[i], want[i])
		}
	}

	f.wait(t)
	if failures := f.recorder.byKind(events.KindOperationFailed); len(failures) != 1 {
		t.Errorf("событий об ошибке = %d, хотели 1", len(failures))
	}
}

func TestRecordOperation_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired, err := f.codec.Sign(createReport("/x.txt", 1, "x"), -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		signed  string
		res     string
		wantErr error
	}{
		{"истёкшая подпись", expired, "R123", envelope.ErrInvalid},
		{"перенос без назначения", f.report(t, envelope.Claims{
			"action": action.OpMove,
			"source": map[string]any{"nid": "R123", "provider": osf, "materialized": "/a", "name": "a"},
		}), "R123", ErrMalformed},
		{"создание без metadata", f.report(t, envelope.Claims{"action": action.OpCreate}), "R123", ErrMalformed},
		{"неизвестная операция", f.report(t, envelope.Claims{"action": "explode"}), "R123", ErrMalformed},
		{"удалённый ресурс", f.report(t, createReport("/x.txt", 1, "x")), "DEL1", ErrResourceGone},
		{"перенос из несуществующего ресурса", f.report(t, transferReport(action.OpMove, "GHOST", "R123")), "R123", ErrResourceNotFound},
		{"перенос из удалённого ресурса", f.report(t, transferReport(action.OpMove, "DEL1", "R123")), "R123", ErrResourceGone},
		{"копия в несуществующий ресурс", f.report(t, transferReport(action.OpCopy, "R123", "GHOST")), "R123", ErrResourceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.gw.RecordOperation(ctx, tt.res, tt.signed); !errors.Is(err, tt.wantErr) {
				t.Errorf("ожидалась %v, получено %v", tt.wantErr, err)
			}
		})
	}

	if _, err := f.store.Usage().Get(ctx, "R123"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("отклонённые отчёты не должны менять счётчики: %v", err)
	}
	if got := f.auditActions(t, "R123"); len(got) != 0 {
		t.Errorf("журнал = %v, хотели пустой", got)
	}
	for _, id := range []string{"GHOST", "DEL1"} {
		if _, err := f.tree.Lookup(ctx, id, osf, "/"); !errors.Is(err, filetree.ErrNotFound) {
			t.Errorf("для ресурса %s не должно появиться дерево: %v", id, err)
		}
	}
}

// transferReport — перенос или копия /a.txt между ресурсами.
func transferReport(op, srcNid, dstNid string) envelope.Claims {
	return envelope.Claims{
		"action":      op,
		"auth":        map[string]any{"id": "u1"},
		"source":      fileEndpoint(srcNid, "/a.txt", 1, "a"),
		"destination": fileEndpoint(dstNid, "/a.txt", 1, "a"),
	}
}

func TestRecordOperation_Redelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	signed := f.report(t, createReport("/twice.pdf", 5, "t"))
	for range 2 {
		if err := f.gw.RecordOperation(ctx, "R123", signed); err != nil {
			t.Fatalf("RecordOperation: %v", err)
		}
	}

	// Дедупликации нет: обе доставки попадают в журнал,
	// но одинаковое содержимое не порождает вторую версию.
	if got := f.auditActions(t, "R123"); len(got) != 2 || got[0] != "added" || got[1] != "added" {
		t.Errorf("журнал = %v, хотели две записи added", got)
	}
	node, err := f.tree.Lookup(ctx, "R123", osf, "/twice.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if versions, _ := f.store.Versions().List(ctx, node.ID); len(versions) != 1 {
		t.Errorf("версий = %d, хотели 1", len(versions))
	}
	usage, err := f.store.Usage().Get(ctx, "R123")
	if err != nil {
		t.Fatal(err)
	}
	if usage.LogCount != 2 || usage.BytesUsed != 5 || usage.VersionCount != 1 {
		t.Errorf("использование = %+v", usage)
	}
}

func TestRecordOperation_FolderAfterRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutProviderSettings(&model.ProviderSettings{
		ResourceID: "R123",
		Provider:   "s3",
		Settings:   map[string]any{"bucket": "papers"},
	})

	// Чтение по ещё не известному пути создаёт промежуточную папку /x/
	ct := f.request(t, envelope.Claims{"nid": "R123", "action": action.Download, "provider": "s3", "path": "/x/y.txt"})
	if _, err := f.gw.IssueCredentials(ctx, ct, writer); err != nil {
		t.Fatalf("IssueCredentials: %v", err)
	}
	placeholder, err := f.tree.Lookup(ctx, "R123", "s3", "/x/")
	if err != nil {
		t.Fatal(err)
	}

	f.record(t, "R123", envelope.Claims{
		"action":   action.OpCreateFolder,
		"auth":     map[string]any{"id": "u1"},
		"metadata": map[string]any{"nid": "R123", "provider": "s3", "materialized": "/x/", "kind": "folder"},
	})

	folder, err := f.tree.Lookup(ctx, "R123", "s3", "/x/")
	if err != nil {
		t.Fatal(err)
	}
	if folder.ID != placeholder.ID || folder.Origin != model.OriginCreated {
		t.Errorf("папка = %+v, ожидался узел %s с происхождением created", folder, placeholder.ID)
	}
	if got := f.auditActions(t, "R123"); len(got) != 1 || got[0] != "folder_created" {
		t.Errorf("журнал = %v, хотели [folder_created]", got)
	}
}
