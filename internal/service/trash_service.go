package service

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"go-file-tree/internal/metrics"
	"go-file-tree/internal/model"
	"go-file-tree/internal/storage"
	"go-file-tree/pkg/apierror"
)

const (
	DefaultTrashRetention = 30 * 24 * time.Hour

	trashStampLayout = "20060102T150405.000000000Z"
)

// TrashRecordStore persists trash records. ListByUser returns newest first.
type TrashRecordStore interface {
	Create(ctx context.Context, record model.TrashRecord) error
	FindByID(ctx context.Context, id string) (model.TrashRecord, error)
	ListByUser(ctx context.Context, userID string) ([]model.TrashRecord, error)
	ListExpired(ctx context.Context, now time.Time) ([]model.TrashRecord, error)
	Delete(ctx context.Context, id string) error
}

// TrashService moves items into a principal's .trash directory and owns the
// lifecycle of the matching records: Live -> Trashed -> Restored or Purged.
type TrashService struct {
	store     *storage.Storage
	engine    *storage.Engine
	records   TrashRecordStore
	audit     *AuditService
	metrics   *metrics.Recorder
	retention time.Duration
	now       func() time.Time
	relocate  func(ctx context.Context, src string, dst string) (bool, error)
}

func NewTrashService(store *storage.Storage, engine *storage.Engine, records TrashRecordStore, audit *AuditService, recorder *metrics.Recorder, retention time.Duration) *TrashService {
	if retention <= 0 {
		retention = DefaultTrashRetention
	}

	return &TrashService{
		store:     store,
		engine:    engine,
		records:   records,
		audit:     audit,
		metrics:   recorder,
		retention: retention,
		now:       time.Now,
		relocate:  engine.Relocate,
	}
}

// SoftDelete moves originalPath into the principal's trash and records it.
// The caller is responsible for authorizing originalPath.
func (s *TrashService) SoftDelete(ctx context.Context, principal model.Principal, originalPath string, isDir bool) (model.TrashRecord, error) {
	original := storage.CleanRelative(originalPath)

	info, err := s.store.Stat(original)
	if err != nil {
		return model.TrashRecord{}, translateFSError(err, "item not found", original)
	}
	if info.IsDir() != isDir {
		return model.TrashRecord{}, apierror.InvalidArgument("item type does not match", original)
	}

	trashRoot := storage.TrashRoot(principal)
	if err := s.store.MkdirAll(trashRoot, 0o755); err != nil {
		return model.TrashRecord{}, apierror.IOError("failed to create trash directory", err)
	}

	deletedAt := s.now().UTC()
	name := path.Base(original)
	trashPath, err := s.uniqueTrashPath(trashRoot, deletedAt, name)
	if err != nil {
		return model.TrashRecord{}, err
	}

	size := info.Size()
	itemType := model.EntryTypeFile
	if isDir {
		itemType = model.EntryTypeDirectory
		stats, sizeErr := s.engine.TreeSize(ctx, original)
		if sizeErr != nil {
			return model.TrashRecord{}, sizeErr
		}
		size = stats.Bytes
	}

	moved, err := s.relocate(ctx, original, trashPath)
	if err != nil {
		if movedAnything(err) {
			s.undoPartialMove(ctx, trashPath, original, isDir)
		}
		return model.TrashRecord{}, err
	}
	if !moved {
		return model.TrashRecord{}, apierror.NotFound("item not found", original)
	}

	record := model.TrashRecord{
		ID:           uuid.NewString(),
		UserID:       principal.ID,
		OriginalPath: original,
		TrashPath:    trashPath,
		Name:         name,
		Type:         itemType,
		Size:         size,
		DeletedAt:    deletedAt,
		ExpiresAt:    deletedAt.Add(s.retention),
	}

	// The item is already in the trash, so the record is written even if the
	// caller has gone away.
	if err := s.records.Create(context.WithoutCancel(ctx), record); err != nil {
		s.undoPartialMove(ctx, trashPath, original, isDir)
		return model.TrashRecord{}, apierror.IOError("failed to record trash item", err)
	}

	return record, nil
}

// Restore moves a trashed item back to its original path and drops the
// record. It refuses to overwrite anything now occupying that path.
func (s *TrashService) Restore(ctx context.Context, record model.TrashRecord) error {
	occupied, err := s.store.Exists(record.OriginalPath)
	if err != nil {
		return apierror.IOError("failed to check original path", err)
	}
	if occupied {
		return apierror.AlreadyExists("original path is occupied", record.OriginalPath)
	}

	moved, err := s.relocate(ctx, record.TrashPath, record.OriginalPath)
	if err != nil {
		if movedAnything(err) {
			s.undoPartialMove(ctx, record.OriginalPath, record.TrashPath, record.Type == model.EntryTypeDirectory)
		}
		return err
	}
	if !moved {
		return apierror.NotFound("trashed item is missing", record.TrashPath)
	}

	if err := s.records.Delete(context.WithoutCancel(ctx), record.ID); err != nil && !errors.Is(err, model.ErrTrashItemNotFound) {
		return apierror.IOError("failed to remove trash record", err)
	}
	return nil
}

// PermanentlyDelete removes the trashed item and its record. A missing item
// on disk is not an error.
func (s *TrashService) PermanentlyDelete(ctx context.Context, record model.TrashRecord) error {
	if record.Type == model.EntryTypeDirectory {
		if _, err := s.engine.DeleteTree(record.TrashPath); err != nil {
			return err
		}
	} else if _, err := s.engine.Delete(record.TrashPath); err != nil {
		return err
	}

	if err := s.records.Delete(ctx, record.ID); err != nil && !errors.Is(err, model.ErrTrashItemNotFound) {
		return apierror.IOError("failed to remove trash record", err)
	}
	return nil
}

// PurgeExpired permanently deletes every record whose expiry is at or before
// now. Failures for single records are logged and skipped.
func (s *TrashService) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.records.ListExpired(ctx, now)
	if err != nil {
		return 0, apierror.IOError("failed to list expired trash", err)
	}

	purged := 0
	for _, record := range expired {
		if ctx.Err() != nil {
			break
		}
		if !record.Expired(now) {
			continue
		}

		if err := s.PermanentlyDelete(ctx, record); err != nil {
			slog.Warn("failed to purge trash item", "id", record.ID, "path", record.TrashPath, "error", err)
			continue
		}

		purged++
		s.audit.Log(ctx, model.AuditEvent{
			UserID:   record.UserID,
			Action:   model.AuditActionPurge,
			Resource: record.OriginalPath,
			Details:  map[string]any{"trash_id": record.ID, "bytes": record.Size},
			Severity: model.SeverityInfo,
		})
	}

	s.metrics.ObservePurge(purged)
	return purged, ctx.Err()
}

func (s *TrashService) List(ctx context.Context, userID string) ([]model.TrashRecord, error) {
	records, err := s.records.ListByUser(ctx, userID)
	if err != nil {
		return nil, apierror.IOError("failed to list trash", err)
	}
	return records, nil
}

// Get returns a record owned by userID. Records of other users are reported
// as not found.
func (s *TrashService) Get(ctx context.Context, userID string, id string) (model.TrashRecord, error) {
	record, err := s.records.FindByID(ctx, id)
	if errors.Is(err, model.ErrTrashItemNotFound) || (err == nil && record.UserID != userID) {
		return model.TrashRecord{}, apierror.NotFound("trash item not found", id)
	}
	if err != nil {
		return model.TrashRecord{}, apierror.IOError("failed to load trash item", err)
	}
	return record, nil
}

// StartPurgeTicker runs PurgeExpired on a regular interval until ctx is cancelled.
func (s *TrashService) StartPurgeTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run once on startup to clear anything that expired while stopped.
	s.purgeNow(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purgeNow(ctx)
		}
	}
}

func (s *TrashService) purgeNow(ctx context.Context) {
	purged, err := s.PurgeExpired(ctx, s.now().UTC())
	if err != nil && ctx.Err() == nil {
		slog.Error("trash purge failed", "error", err)
		return
	}
	if purged > 0 {
		slog.Info("purged expired trash", "count", purged)
	}
}

func (s *TrashService) uniqueTrashPath(trashRoot string, deletedAt time.Time, name string) (string, error) {
	candidate := path.Join(trashRoot, deletedAt.Format(trashStampLayout)+"_"+name)

	exists, err := s.store.Exists(candidate)
	if err != nil {
		return "", apierror.IOError("failed to check trash path", err)
	}
	if !exists {
		return candidate, nil
	}

	return path.Join(trashRoot, deletedAt.Format(trashStampLayout)+"_"+uuid.NewString()[:8]+"_"+name), nil
}

// undoPartialMove carries whatever already reached dst back to src after a
// failed move, so no item is left without a record. A whole item is renamed
// back; a partial one is merged into what remains at src. Cancellation of
// ctx is ignored.
func (s *TrashService) undoPartialMove(ctx context.Context, dst string, src string, isDir bool) {
	ctx = context.WithoutCancel(ctx)

	_, err := s.relocate(ctx, dst, src)
	if apierror.Is(err, apierror.CodeAlreadyExists) {
		if isDir {
			_, err = s.engine.MoveDirectory(ctx, dst, src, nil)
		} else {
			_, err = s.engine.MoveFile(ctx, dst, src, nil)
		}
	}
	if err != nil {
		slog.Error("failed to undo partial move", "from", dst, "to", src, "error", err)
	}
}

// movedAnything reports whether a failed relocate may have left data at the
// destination. Rejections made before the move touch nothing.
func movedAnything(err error) bool {
	return !apierror.Is(err, apierror.CodeAlreadyExists) &&
		!apierror.Is(err, apierror.CodeInvalidArgument) &&
		!apierror.Is(err, apierror.CodeUnauthorized)
}

// translateFSError maps a raw filesystem error onto the API taxonomy.
// Errors that already carry a code pass through unchanged.
func translateFSError(err error, notFoundMessage string, resource string) error {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	if errors.Is(err, fs.ErrNotExist) {
		return apierror.NotFound(notFoundMessage, resource)
	}
	return apierror.IOError("storage operation failed", err)
}
