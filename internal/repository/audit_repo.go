package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"go-file-tree/internal/model"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Write(ctx context.Context, event model.AuditEvent) error {
	var detailsJSON []byte
	if len(event.Details) > 0 {
		var err error
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_entries (user_id, action, resource, details, severity, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.UserID, event.Action, event.Resource, detailsJSON, event.Severity, event.Timestamp)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}
