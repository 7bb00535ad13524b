package filetree

import (
	"fmt"
	"strings"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
)

// ParsePath разбирает материализованный путь на сегменты.
// Завершающий слеш означает папку, "/" — корень.
func ParsePath(p string) ([]string, model.NodeKind, error) {
	p = strings.TrimSpace(p)
	kind := model.KindFile
	if p == "" || p == "/" {
		return nil, model.KindFolder, nil
	}
	if strings.HasSuffix(p, "/") {
		kind = model.KindFolder
	}

	trimmed := strings.Trim(p, "/")
	segments := strings.Split(trimmed, "/")
	for _, s := range segments {
		if s == "" || s == "." || s == ".." {
			return nil, "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return segments, kind, nil
}

// ParentPath возвращает путь родительской папки ("/a/b.txt" → "/a/").
func ParentPath(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx <= 0 {
		return "/"
	}
	return trimmed[:idx+1]
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.Contains(name, "/")
}
