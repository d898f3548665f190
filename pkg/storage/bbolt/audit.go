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

package bbolt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/jeremyhahn/go-devicetrust/pkg/audit"
	"github.com/jeremyhahn/go-devicetrust/pkg/storage"
)

// auditLog appends events under a big-endian bucket sequence, so cursor
// order is insertion order.
type auditLog struct {
	db *bbolt.DB
}

func (l *auditLog) Record(ctx context.Context, e audit.Event) error {
	return l.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAudit)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return put(b, itob(seq), e)
	})
}

func (l *auditLog) Recent(ctx context.Context, userID string, limit int) ([]audit.Event, error) {
	var result []audit.Event
	err := l.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(result) >= limit {
				break
			}
			var e audit.Event
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("%w: %w", storage.ErrCorrupt, err)
			}
			if userID == "" || e.UserID == userID {
				result = append(result, e)
			}
		}
		return nil
	})
	return result, err
}
