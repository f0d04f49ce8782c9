package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-file-tree/internal/model"
)

const trashColumns = `id, user_id, original_path, trash_path, name, item_type, size_bytes, deleted_at, expires_at`

type TrashRepository struct {
	pool *pgxpool.Pool
}

func NewTrashRepository(pool *pgxpool.Pool) *TrashRepository {
	return &TrashRepository{pool: pool}
}

func (r *TrashRepository) Create(ctx context.Context, record model.TrashRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO trash_records (`+trashColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID, record.UserID, record.OriginalPath, record.TrashPath, record.Name,
		record.Type, record.Size, record.DeletedAt, record.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create trash record: %w", err)
	}
	return nil
}

func (r *TrashRepository) FindByID(ctx context.Context, id string) (model.TrashRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+trashColumns+` FROM trash_records WHERE id = $1`, id)

	rec, err := scanTrashRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TrashRecord{}, model.ErrTrashItemNotFound
	}
	if err != nil {
		return model.TrashRecord{}, fmt.Errorf("find trash by id: %w", err)
	}
	return rec, nil
}

func (r *TrashRepository) ListByUser(ctx context.Context, userID string) ([]model.TrashRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+trashColumns+` FROM trash_records
		 WHERE user_id = $1
		 ORDER BY deleted_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}
	return collectTrashRecords(rows)
}

func (r *TrashRepository) ListExpired(ctx context.Context, now time.Time) ([]model.TrashRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+trashColumns+` FROM trash_records
		 WHERE expires_at <= $1
		 ORDER BY expires_at ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("list expired trash: %w", err)
	}
	return collectTrashRecords(rows)
}

func (r *TrashRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM trash_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete trash record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrTrashItemNotFound
	}
	return nil
}

func collectTrashRecords(rows pgx.Rows) ([]model.TrashRecord, error) {
	defer rows.Close()

	records := make([]model.TrashRecord, 0)
	for rows.Next() {
		rec, err := scanTrashRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trash record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanTrashRecord(row pgx.Row) (model.TrashRecord, error) {
	var rec model.TrashRecord
	err := row.Scan(&rec.ID, &rec.UserID, &rec.OriginalPath, &rec.TrashPath, &rec.Name,
		&rec.Type, &rec.Size, &rec.DeletedAt, &rec.ExpiresAt)
	if err != nil {
		return model.TrashRecord{}, err
	}

	rec.DeletedAt = rec.DeletedAt.UTC()
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	return rec, nil
}
