// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-devicetrust.
//
// go-devicetrust is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package postgres

import (
	"context"

	"github.com/jeremyhahn/go-devicetrust/pkg/audit"
)

type auditLog struct {
	db DBTX
}

func (l *auditLog) Record(ctx context.Context, e audit.Event) error {
	query := `
		INSERT INTO audit_events (id, type, user_id, credential_id, detail, correlation_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := l.db.ExecContext(ctx, query,
		e.ID, string(e.Type), e.UserID, e.CredentialID, e.Detail, e.CorrelationID, e.OccurredAt)
	if err != nil {
		return dbError(err)
	}
	return nil
}

// Recent treats a non-positive limit as no limit; LIMIT NULL is unbounded.
func (l *auditLog) Recent(ctx context.Context, userID string, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, type, user_id, credential_id, detail, correlation_id, occurred_at
		FROM audit_events
		WHERE $1 = '' OR user_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := l.db.QueryContext(ctx, query, userID, lim)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	var result []audit.Event
	for rows.Next() {
		var (
			e   audit.Event
			typ string
		)
		if err := rows.Scan(&e.ID, &typ, &e.UserID, &e.CredentialID, &e.Detail, &e.CorrelationID, &e.OccurredAt); err != nil {
			return nil, dbError(err)
		}
		e.Type = audit.EventType(typ)
		e.OccurredAt = e.OccurredAt.UTC()
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return result, nil
}
