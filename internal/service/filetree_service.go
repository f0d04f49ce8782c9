package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"go-file-tree/internal/model"
	"go-file-tree/internal/storage"
	"go-file-tree/internal/util"
	"go-file-tree/pkg/apierror"
)

const searchCancelCheckEvery = 256

// FileTreeService is the entry point for every file operation. Each call
// authorizes its paths against the caller's principal before touching the
// store.
type FileTreeService struct {
	guard  *storage.Guard
	store  *storage.Storage
	walker *storage.Walker
	engine *storage.Engine
	trash  *TrashService
	audit  *AuditService
	now    func() time.Time
}

func NewFileTreeService(store *storage.Storage, engine *storage.Engine, trash *TrashService, audit *AuditService) *FileTreeService {
	return &FileTreeService{
		guard:  storage.NewGuard(),
		store:  store,
		walker: storage.NewWalker(store, storage.TrashDirName),
		engine: engine,
		trash:  trash,
		audit:  audit,
		now:    time.Now,
	}
}

func (s *FileTreeService) ListDirectory(ctx context.Context, principal model.Principal, dirPath string, page int, pageSize int) (model.DirectoryListData, model.Meta, error) {
	root, err := s.principalRoot(principal)
	if err != nil {
		return model.DirectoryListData{}, model.Meta{}, err
	}

	resolved, err := s.authorize(principal, dirPath)
	if err != nil {
		return model.DirectoryListData{}, model.Meta{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.DirectoryListData{}, model.Meta{}, err
	}

	files, dirs, err := s.walker.List(resolved)
	if err != nil {
		return model.DirectoryListData{}, model.Meta{}, err
	}

	items := make([]model.TreeEntry, 0, len(files)+len(dirs))
	items = append(items, dirs...)
	items = append(items, files...)
	sortEntries(items)

	pageItems, meta := paginate(items, page, pageSize)

	parent := ""
	if resolved != root {
		parent = path.Dir(resolved)
	}

	return model.DirectoryListData{CurrentPath: resolved, ParentPath: parent, Items: pageItems}, meta, nil
}

func (s *FileTreeService) Search(ctx context.Context, principal model.Principal, query model.SearchQuery, page int, pageSize int) (model.SearchData, model.Meta, error) {
	filter, err := newSearchFilter(query)
	if err != nil {
		return model.SearchData{}, model.Meta{}, err
	}

	root, err := s.principalRoot(principal)
	if err != nil {
		return model.SearchData{}, model.Meta{}, err
	}

	seq, err := s.walker.WalkAll(root)
	if err != nil {
		return model.SearchData{}, model.Meta{}, err
	}

	items := make([]model.TreeEntry, 0)
	visited := 0
	for entry, rel := range seq {
		visited++
		if visited%searchCancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return model.SearchData{}, model.Meta{}, err
			}
		}

		if filter.matches(entry, rel) {
			items = append(items, entry)
		}
	}

	sortEntries(items)
	pageItems, meta := paginate(items, page, pageSize)

	return model.SearchData{Query: strings.TrimSpace(query.Query), Items: pageItems}, meta, nil
}

func (s *FileTreeService) Upload(ctx context.Context, principal model.Principal, dirPath string, filename string, r io.Reader, overwrite bool) (model.UploadItem, error) {
	name, err := util.SanitizeFilename(filename, false)
	if err != nil {
		return model.UploadItem{}, err
	}

	dir, err := s.authorize(principal, dirPath)
	if err != nil {
		return model.UploadItem{}, err
	}
	target, err := s.authorize(principal, path.Join(dir, name))
	if err != nil {
		return model.UploadItem{}, err
	}

	info, err := s.store.Stat(target)
	switch {
	case err == nil && info.IsDir():
		return model.UploadItem{}, apierror.AlreadyExists("a directory with this name already exists", target)
	case err == nil && !overwrite:
		return model.UploadItem{}, apierror.AlreadyExists("file already exists", target)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return model.UploadItem{}, translateFSError(err, "directory not found", dir)
	}

	written, err := s.engine.Save(ctx, target, r)
	if err != nil {
		return model.UploadItem{}, err
	}

	item := model.UploadItem{Name: name, Path: target, Size: written, MimeType: s.detectContentType(target)}

	s.audit.record(ctx, principal, model.AuditActionUpload, target, map[string]any{
		"bytes":     written,
		"overwrite": overwrite,
	})

	return item, nil
}

func (s *FileTreeService) CreateDirectory(ctx context.Context, principal model.Principal, parentPath string, name string) (model.DirectoryCreateData, error) {
	cleanName, err := util.SanitizeFilename(name, false)
	if err != nil {
		return model.DirectoryCreateData{}, err
	}

	parent, err := s.authorize(principal, parentPath)
	if err != nil {
		return model.DirectoryCreateData{}, err
	}
	target, err := s.authorize(principal, path.Join(parent, cleanName))
	if err != nil {
		return model.DirectoryCreateData{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.DirectoryCreateData{}, err
	}

	parentInfo, err := s.store.Stat(parent)
	if err != nil {
		return model.DirectoryCreateData{}, translateFSError(err, "parent directory not found", parent)
	}
	if !parentInfo.IsDir() {
		return model.DirectoryCreateData{}, apierror.InvalidArgument("parent is not a directory", parent)
	}

	exists, err := s.store.Exists(target)
	if err != nil {
		return model.DirectoryCreateData{}, translateFSError(err, "parent directory not found", parent)
	}
	if exists {
		return model.DirectoryCreateData{}, apierror.AlreadyExists("directory already exists", target)
	}

	if err := s.store.MkdirAll(target, 0o755); err != nil {
		return model.DirectoryCreateData{}, translateFSError(err, "parent directory not found", parent)
	}

	return model.DirectoryCreateData{
		Name:      cleanName,
		Path:      target,
		Type:      model.EntryTypeDirectory,
		CreatedAt: s.now().UTC(),
	}, nil
}

// Download opens a file for streaming. The caller must close the returned
// file.
func (s *FileTreeService) Download(ctx context.Context, principal model.Principal, filePath string) (*os.File, model.TreeEntry, string, error) {
	resolved, err := s.authorize(principal, filePath)
	if err != nil {
		return nil, model.TreeEntry{}, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, model.TreeEntry{}, "", err
	}

	file, info, err := s.engine.Open(resolved)
	if err != nil {
		return nil, model.TreeEntry{}, "", err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, model.TreeEntry{}, "", apierror.InvalidArgument("cannot download a directory", resolved)
	}

	contentType, err := util.DetectContentType(file)
	if err != nil {
		_ = file.Close()
		return nil, model.TreeEntry{}, "", apierror.IOError("failed to read file", err)
	}

	return file, storage.NewTreeEntry(resolved, info), contentType, nil
}

// ReadRange returns length bytes of a file starting at offset. A negative
// length reads to the end.
func (s *FileTreeService) ReadRange(ctx context.Context, principal model.Principal, filePath string, offset int64, length int64) (io.ReadCloser, error) {
	resolved, err := s.authorize(principal, filePath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.engine.OpenRange(resolved, offset, length)
}

// Delete moves the target into the trash, or removes it outright when
// permanent is set. The returned record is nil for permanent deletes.
func (s *FileTreeService) Delete(ctx context.Context, principal model.Principal, targetPath string, permanent bool) (*model.TrashRecord, error) {
	root, err := s.principalRoot(principal)
	if err != nil {
		return nil, err
	}
	resolved, err := s.authorize(principal, targetPath)
	if err != nil {
		return nil, err
	}
	if resolved == root {
		return nil, apierror.InvalidArgument("cannot delete the root directory", resolved)
	}

	info, err := s.store.Stat(resolved)
	if err != nil {
		return nil, translateFSError(err, "path not found", resolved)
	}

	if !permanent {
		record, err := s.trash.SoftDelete(ctx, principal, resolved, info.IsDir())
		if err != nil {
			return nil, err
		}

		s.audit.record(ctx, principal, model.AuditActionSoftDelete, resolved, map[string]any{
			"trash_id": record.ID,
			"bytes":    record.Size,
			"type":     record.Type,
		})
		return &record, nil
	}

	var deleted bool
	if info.IsDir() {
		deleted, err = s.engine.DeleteTree(resolved)
	} else {
		deleted, err = s.engine.Delete(resolved)
	}
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, apierror.NotFound("path not found", resolved)
	}

	s.audit.record(ctx, principal, model.AuditActionPermanentDelete, resolved, map[string]any{
		"type": entryType(info.IsDir()),
	})
	return nil, nil
}

// MoveBatch moves every item into the destination directory. All paths are
// authorized before any item is moved. Items then succeed or fail
// independently; a partially failed batch is reported, not returned as an
// error. onProgress receives bytes moved across the whole batch.
func (s *FileTreeService) MoveBatch(ctx context.Context, principal model.Principal, req model.MoveBatchRequest, onProgress storage.ProgressFunc) (model.MoveBatchReport, error) {
	if len(req.Items) == 0 {
		return model.MoveBatchReport{}, apierror.InvalidArgument("no items to move", "")
	}

	root, err := s.principalRoot(principal)
	if err != nil {
		return model.MoveBatchReport{}, err
	}
	destination, err := s.authorize(principal, req.Destination)
	if err != nil {
		return model.MoveBatchReport{}, err
	}

	sources := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if strings.TrimSpace(item) == "" {
			return model.MoveBatchReport{}, apierror.InvalidArgument("empty item path", "")
		}
		resolved, authErr := s.authorize(principal, item)
		if authErr != nil {
			return model.MoveBatchReport{}, authErr
		}
		sources = append(sources, resolved)
	}

	destInfo, err := s.store.Stat(destination)
	if err != nil {
		return model.MoveBatchReport{}, translateFSError(err, "destination not found", destination)
	}
	if !destInfo.IsDir() {
		return model.MoveBatchReport{}, apierror.InvalidArgument("destination is not a directory", destination)
	}

	report := model.MoveBatchReport{Total: len(sources), Items: make([]model.MoveItemResult, 0, len(sources))}
	for _, source := range sources {
		result := s.moveItem(ctx, root, source, destination, req.Overwrite, &report, onProgress)

		report.Items = append(report.Items, result)
		if result.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}

		severity := model.SeverityInfo
		if !result.Success {
			severity = model.SeverityWarning
		}
		s.audit.Log(ctx, model.AuditEvent{
			UserID:   principal.ID,
			Action:   model.AuditActionMove,
			Resource: source,
			Details: map[string]any{
				"destination": result.Destination,
				"bytes":       result.Bytes,
				"success":     result.Success,
				"reason":      result.Reason,
			},
			Severity: severity,
		})
	}

	return report, nil
}

// AuthorizeMove checks every path of a move request before any work is
// queued and returns the bytes the move is expected to transfer. Items that
// cannot be sized count as zero.
func (s *FileTreeService) AuthorizeMove(ctx context.Context, principal model.Principal, req model.MoveBatchRequest) (int64, error) {
	if len(req.Items) == 0 {
		return 0, apierror.InvalidArgument("no items to move", "")
	}
	if _, err := s.authorize(principal, req.Destination); err != nil {
		return 0, err
	}

	var planned int64
	for _, item := range req.Items {
		resolved, err := s.authorize(principal, item)
		if err != nil {
			return 0, err
		}
		if stats, sizeErr := s.engine.TreeSize(ctx, resolved); sizeErr == nil {
			planned += stats.Bytes
		}
	}
	return planned, nil
}

func (s *FileTreeService) moveItem(ctx context.Context, root string, source string, destination string, overwrite bool, report *model.MoveBatchReport, onProgress storage.ProgressFunc) model.MoveItemResult {
	result := model.MoveItemResult{Source: source}

	if err := ctx.Err(); err != nil {
		result.Reason = "cancelled"
		return result
	}
	if source == root {
		result.Reason = "cannot move the root directory"
		return result
	}

	info, err := s.store.Stat(source)
	if err != nil {
		result.Reason = failureReason(translateFSError(err, "source not found", source))
		return result
	}

	target := path.Join(destination, path.Base(source))
	result.Destination = target

	if target == source {
		result.Success = true
		return result
	}
	if info.IsDir() && strings.HasPrefix(target+"/", source+"/") {
		result.Reason = "cannot move a directory into itself"
		return result
	}

	targetInfo, err := s.store.Stat(target)
	switch {
	case err == nil && !overwrite:
		result.Reason = "destination already exists"
		return result
	case err == nil && targetInfo.IsDir() != info.IsDir():
		result.Reason = "destination exists with a different type"
		return result
	case err != nil && !errors.Is(err, os.ErrNotExist):
		result.Reason = failureReason(translateFSError(err, "destination not found", target))
		return result
	}

	planned := info.Size()
	if info.IsDir() {
		stats, sizeErr := s.engine.TreeSize(ctx, source)
		if sizeErr != nil {
			result.Reason = failureReason(sizeErr)
			return result
		}
		planned = stats.Bytes
	}
	report.BytesPlanned += planned

	base := report.BytesMoved
	var transferred int64
	progress := func(n int64) {
		transferred = n
		if onProgress != nil {
			onProgress(base + n)
		}
	}

	var moved bool
	if info.IsDir() {
		moved, err = s.engine.MoveDirectory(ctx, source, target, progress)
	} else {
		moved, err = s.engine.MoveFile(ctx, source, target, progress)
	}

	result.Bytes = transferred
	report.BytesMoved += transferred

	switch {
	case err != nil:
		result.Reason = failureReason(err)
	case !moved:
		result.Reason = "source not found"
	default:
		result.Success = true
	}
	return result
}

func (s *FileTreeService) Checksum(ctx context.Context, principal model.Principal, filePath string) (model.ChecksumResult, error) {
	resolved, err := s.authorize(principal, filePath)
	if err != nil {
		return model.ChecksumResult{}, err
	}

	algorithm, digest, err := s.engine.Checksum(ctx, resolved)
	if err != nil {
		return model.ChecksumResult{}, err
	}

	s.audit.record(ctx, principal, model.AuditActionChecksum, resolved, map[string]any{
		"algorithm": algorithm,
	})

	return model.ChecksumResult{Path: resolved, Algorithm: algorithm, Digest: digest}, nil
}

func (s *FileTreeService) ListTrash(ctx context.Context, principal model.Principal, page int, pageSize int) ([]model.TrashRecord, model.Meta, error) {
	if _, ok := s.guard.Authorize(principal, ""); !ok {
		return nil, model.Meta{}, apierror.Unauthorized("")
	}

	records, err := s.trash.List(ctx, principal.ID)
	if err != nil {
		return nil, model.Meta{}, err
	}

	pageItems, meta := paginate(records, page, pageSize)
	return pageItems, meta, nil
}

func (s *FileTreeService) RestoreTrash(ctx context.Context, principal model.Principal, id string) (model.TrashRecord, error) {
	record, err := s.ownedTrashRecord(ctx, principal, id)
	if err != nil {
		return model.TrashRecord{}, err
	}

	if err := s.trash.Restore(ctx, record); err != nil {
		return model.TrashRecord{}, err
	}

	s.audit.record(ctx, principal, model.AuditActionRestore, record.OriginalPath, map[string]any{
		"trash_id": record.ID,
		"bytes":    record.Size,
	})
	return record, nil
}

func (s *FileTreeService) PermanentlyDeleteTrash(ctx context.Context, principal model.Principal, id string) error {
	record, err := s.ownedTrashRecord(ctx, principal, id)
	if err != nil {
		return err
	}

	if err := s.trash.PermanentlyDelete(ctx, record); err != nil {
		return err
	}

	s.audit.record(ctx, principal, model.AuditActionPermanentDelete, record.OriginalPath, map[string]any{
		"trash_id": record.ID,
		"bytes":    record.Size,
	})
	return nil
}

// Usage totals the principal's live tree and trash.
func (s *FileTreeService) Usage(ctx context.Context, principal model.Principal) (model.UsageData, error) {
	root, err := s.principalRoot(principal)
	if err != nil {
		return model.UsageData{}, err
	}

	stats, err := s.engine.TreeSize(ctx, root)
	if err != nil {
		return model.UsageData{}, err
	}

	trashStats, err := s.engine.TreeSize(ctx, storage.TrashRoot(principal))
	switch {
	case err == nil:
		stats.Files -= trashStats.Files
		stats.Directories -= trashStats.Directories + 1
		stats.Bytes -= trashStats.Bytes
	case !apierror.Is(err, apierror.CodeNotFound):
		return model.UsageData{}, err
	}

	records, err := s.trash.List(ctx, principal.ID)
	if err != nil {
		return model.UsageData{}, err
	}

	usage := model.UsageData{
		Files:       stats.Files,
		Directories: stats.Directories,
		Bytes:       stats.Bytes,
		TrashItems:  len(records),
	}
	for _, record := range records {
		usage.TrashBytes += record.Size
	}
	return usage, nil
}

func (s *FileTreeService) ownedTrashRecord(ctx context.Context, principal model.Principal, id string) (model.TrashRecord, error) {
	if _, ok := s.guard.Authorize(principal, ""); !ok {
		return model.TrashRecord{}, apierror.Unauthorized("")
	}

	record, err := s.trash.Get(ctx, principal.ID, id)
	if err != nil {
		return model.TrashRecord{}, err
	}

	if _, ok := s.guard.Authorize(principal, record.OriginalPath); !ok {
		return model.TrashRecord{}, apierror.Unauthorized(record.OriginalPath)
	}
	return record, nil
}

// authorize resolves logicalPath for principal. The trash directory is only
// reachable through the trash operations.
func (s *FileTreeService) authorize(principal model.Principal, logicalPath string) (string, error) {
	resolved, ok := s.guard.Authorize(principal, logicalPath)
	if !ok || s.guard.IsReserved(resolved) {
		return "", apierror.Unauthorized(logicalPath)
	}
	return resolved, nil
}

// principalRoot authorizes the principal itself and creates its root
// directory on first use.
func (s *FileTreeService) principalRoot(principal model.Principal) (string, error) {
	root, err := s.authorize(principal, "")
	if err != nil {
		return "", err
	}

	if err := s.store.MkdirAll(root, 0o755); err != nil {
		return "", translateFSError(err, "root directory not found", root)
	}
	return root, nil
}

func (s *FileTreeService) detectContentType(target string) string {
	file, _, err := s.engine.Open(target)
	if err != nil {
		return ""
	}
	defer file.Close()

	contentType, err := util.DetectContentType(file)
	if err != nil {
		return ""
	}
	return contentType
}

func failureReason(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}

	slog.Error("unexpected move failure", "error", err)
	return "move failed"
}

func entryType(isDir bool) string {
	if isDir {
		return model.EntryTypeDirectory
	}
	return model.EntryTypeFile
}
