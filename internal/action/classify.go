package action

import (
	"path"
	"strings"

	"github.com/bigkaa/goartstore/storage-gateway/internal/domain/model"
)

// Операции, о которых сообщает исполнительный слой.
const (
	OpCreate       = "create"
	OpUpdate       = "update"
	OpDelete       = "delete"
	OpCreateFolder = "create_folder"
	OpMove         = "move"
	OpCopy         = "copy"
	OpDownloadFile = "download_file"
	OpDownloadZip  = "download_zip"
)

// LogAction — действие, записываемое в журнал ресурса.
type LogAction string

const (
	LogAdded         LogAction = "added"
	LogUpdated       LogAction = "updated"
	LogRemoved       LogAction = "removed"
	LogFolderCreated LogAction = "folder_created"
	LogMoved         LogAction = "moved"
	LogCopied        LogAction = "copied"
	LogRenamed       LogAction = "renamed"
)

var baseLogAction = map[string]LogAction{
	OpCreate:       LogAdded,
	OpUpdate:       LogUpdated,
	OpDelete:       LogRemoved,
	OpCreateFolder: LogFolderCreated,
	OpMove:         LogMoved,
	OpCopy:         LogCopied,
}

// Location — источник или назначение операции.
type Location struct {
	Provider   string
	ResourceID string
	Path       string
	Kind       model.NodeKind
}

// IsDownload сообщает, что операция — скачивание (в журнал не пишется).
func IsDownload(op string) bool {
	return op == OpDownloadFile || op == OpDownloadZip
}

// Classify определяет действие журнала для завершённой операции.
// Второе значение false означает, что операция не журналируется.
func Classify(op string, src, dst *Location) (LogAction, bool) {
	if IsDownload(op) {
		return "", false
	}
	act, ok := baseLogAction[op]
	if !ok {
		return "", false
	}
	if op == OpMove && src != nil && dst != nil && isRename(*src, *dst) {
		return LogRenamed, true
	}
	return act, true
}

// isRename: тот же провайдер и ресурс, та же родительская папка,
// другое имя.
func isRename(src, dst Location) bool {
	if src.Provider != dst.Provider || src.ResourceID != dst.ResourceID {
		return false
	}
	srcPath, dstPath := src.Path, dst.Path
	if src.Kind == model.KindFolder && dst.Kind == model.KindFolder {
		srcPath = strings.TrimSuffix(srcPath, "/")
		dstPath = strings.TrimSuffix(dstPath, "/")
	}
	srcDir, srcName := path.Split(srcPath)
	dstDir, dstName := path.Split(dstPath)
	return srcDir == dstDir && srcName != dstName
}

// ClassifyPaths — Classify для операции внутри одного провайдера и
// ресурса, когда известны только материализованные пути. Вид узла
// определяется завершающим слешем.
func ClassifyPaths(op, srcPath, dstPath string) (LogAction, bool) {
	src := Location{Path: srcPath, Kind: kindOf(srcPath)}
	dst := Location{Path: dstPath, Kind: kindOf(dstPath)}
	return Classify(op, &src, &dst)
}

func kindOf(p string) model.NodeKind {
	if strings.HasSuffix(p, "/") {
		return model.KindFolder
	}
	return model.KindFile
}
