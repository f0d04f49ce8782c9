package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"go-file-tree/internal/model"
)

// Key layout:
//
//	trash/<id>                        -> JSON TrashRecord
//	trash-user/<userID>/<id>          -> empty
//	trash-exp/<unix nanos, 20 digits>/<id> -> empty
const (
	trashRecordPrefix = "trash/"
	trashUserPrefix   = "trash-user/"
	trashExpiryPrefix = "trash-exp/"
)

// BadgerTrashStore keeps trash records in an embedded Badger database. It is
// the default record store when no PostgreSQL database is configured.
type BadgerTrashStore struct {
	db *badger.DB
}

// OpenBadgerTrashStore opens (or creates) the store at dir. An empty dir
// keeps everything in memory.
func OpenBadgerTrashStore(dir string) (*BadgerTrashStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING).WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open trash store at %q: %w", dir, err)
	}

	return &BadgerTrashStore{db: db}, nil
}

// Ping fails once the store has been closed.
func (s *BadgerTrashStore) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("trash store is closed")
	}
	return nil
}

func (s *BadgerTrashStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close trash store: %w", err)
	}
	return nil
}

func (s *BadgerTrashStore) Create(ctx context.Context, record model.TrashRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal trash record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, getErr := txn.Get(trashRecordKey(record.ID)); getErr == nil {
			return fmt.Errorf("trash record %s already exists", record.ID)
		} else if !errors.Is(getErr, badger.ErrKeyNotFound) {
			return getErr
		}

		if err := txn.Set(trashRecordKey(record.ID), value); err != nil {
			return err
		}
		if err := txn.Set(trashUserKey(record.UserID, record.ID), nil); err != nil {
			return err
		}
		return txn.Set(trashExpiryKey(record.ExpiresAt, record.ID), nil)
	})
	if err != nil {
		return fmt.Errorf("create trash record: %w", err)
	}
	return nil
}

func (s *BadgerTrashStore) FindByID(ctx context.Context, id string) (model.TrashRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.TrashRecord{}, err
	}

	var rec model.TrashRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var getErr error
		rec, getErr = getTrashRecord(txn, id)
		return getErr
	})
	if errors.Is(err, model.ErrTrashItemNotFound) {
		return model.TrashRecord{}, err
	}
	if err != nil {
		return model.TrashRecord{}, fmt.Errorf("find trash by id: %w", err)
	}
	return rec, nil
}

func (s *BadgerTrashStore) ListByUser(ctx context.Context, userID string) ([]model.TrashRecord, error) {
	records := make([]model.TrashRecord, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(trashUserPrefix + userID + "/")
		ids, err := scanIDs(ctx, txn, prefix)
		if err != nil {
			return err
		}

		for _, id := range ids {
			rec, getErr := getTrashRecord(txn, id)
			if errors.Is(getErr, model.ErrTrashItemNotFound) {
				continue
			}
			if getErr != nil {
				return getErr
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].DeletedAt.After(records[j].DeletedAt)
	})
	return records, nil
}

func (s *BadgerTrashStore) ListExpired(ctx context.Context, now time.Time) ([]model.TrashRecord, error) {
	records := make([]model.TrashRecord, 0)
	limit := string(trashExpiryKey(now, ""))

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(trashExpiryPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		var ids []string
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			key := string(it.Item().Key())
			stamp, id, ok := strings.Cut(strings.TrimPrefix(key, trashExpiryPrefix), "/")
			if !ok {
				continue
			}
			if trashExpiryPrefix+stamp+"/" > limit {
				break
			}
			ids = append(ids, id)
		}

		for _, id := range ids {
			rec, getErr := getTrashRecord(txn, id)
			if errors.Is(getErr, model.ErrTrashItemNotFound) {
				continue
			}
			if getErr != nil {
				return getErr
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list expired trash: %w", err)
	}
	return records, nil
}

func (s *BadgerTrashStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := getTrashRecord(txn, id)
		if err != nil {
			return err
		}

		if err := txn.Delete(trashRecordKey(id)); err != nil {
			return err
		}
		if err := txn.Delete(trashUserKey(rec.UserID, id)); err != nil {
			return err
		}
		return txn.Delete(trashExpiryKey(rec.ExpiresAt, id))
	})
	if errors.Is(err, model.ErrTrashItemNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("delete trash record: %w", err)
	}
	return nil
}

func getTrashRecord(txn *badger.Txn, id string) (model.TrashRecord, error) {
	item, err := txn.Get(trashRecordKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.TrashRecord{}, model.ErrTrashItemNotFound
	}
	if err != nil {
		return model.TrashRecord{}, err
	}

	var rec model.TrashRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return model.TrashRecord{}, fmt.Errorf("decode trash record %s: %w", id, err)
	}
	return rec, nil
}

func scanIDs(ctx context.Context, txn *badger.Txn, prefix []byte) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids = append(ids, string(it.Item().Key()[len(prefix):]))
	}
	return ids, nil
}

func trashRecordKey(id string) []byte {
	return []byte(trashRecordPrefix + id)
}

func trashUserKey(userID string, id string) []byte {
	return []byte(trashUserPrefix + userID + "/" + id)
}

// trashExpiryKey sorts lexically by expiry time. Times before the epoch
// clamp to zero.
func trashExpiryKey(expiresAt time.Time, id string) []byte {
	nanos := expiresAt.UnixNano()
	if nanos < 0 {
		nanos = 0
	}
	return []byte(fmt.Sprintf("%s%020d/%s", trashExpiryPrefix, nanos, id))
}
