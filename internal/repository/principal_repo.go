package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-file-tree/internal/model"
)

type PrincipalRepository struct {
	pool *pgxpool.Pool
}

func NewPrincipalRepository(pool *pgxpool.Pool) *PrincipalRepository {
	return &PrincipalRepository{pool: pool}
}

func (r *PrincipalRepository) FindByID(ctx context.Context, id string) (model.Principal, error) {
	var p model.Principal
	err := r.pool.QueryRow(ctx,
		`SELECT id, root_path, is_active FROM users WHERE id = $1`, id).
		Scan(&p.ID, &p.RootPath, &p.Active)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Principal{}, model.ErrPrincipalNotFound
	}
	if err != nil {
		return model.Principal{}, fmt.Errorf("find principal by id: %w", err)
	}
	return p, nil
}
