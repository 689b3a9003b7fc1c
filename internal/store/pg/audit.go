package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"ideaboard.app/internal/audit"
)

// AuditStore implements audit.Store on the append-only audit_logs table.
type AuditStore struct {
	db *sql.DB
}

var _ audit.Store = (*AuditStore)(nil)

func (s *AuditStore) Append(ctx context.Context, e audit.Entry) error {
	if s.db == nil {
		return errNoDB
	}
	metaJSON := []byte("{}")
	if len(e.Metadata) > 0 {
		bytes, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metaJSON = bytes
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs (id, actor_user_id, token_id, action, resource_type, resource_id, metadata, ip, user_agent, request_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, nullIfEmpty(e.ActorUserID), nullIfEmpty(e.TokenID), e.Action,
		nullIfEmpty(e.ResourceType), nullIfEmpty(e.ResourceID), metaJSON,
		nullIfEmpty(e.IP), nullIfEmpty(e.UserAgent), nullIfEmpty(e.RequestID), e.CreatedAt.UTC())
	return err
}

func (s *AuditStore) List(ctx context.Context, limit int) ([]audit.Entry, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, coalesce(actor_user_id, ''), coalesce(token_id, ''), action,
		       coalesce(resource_type, ''), coalesce(resource_id, ''), metadata,
		       coalesce(ip, ''), coalesce(user_agent, ''), coalesce(request_id, ''), created_at
		from audit_logs
		order by created_at desc, id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []audit.Entry{}
	for rows.Next() {
		var (
			e       audit.Entry
			rawMeta []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorUserID, &e.TokenID, &e.Action, &e.ResourceType, &e.ResourceID,
			&rawMeta, &e.IP, &e.UserAgent, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Metadata = map[string]any{}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		e.CreatedAt = e.CreatedAt.UTC()
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
