package workspace

import (
	"database/sql"
	"errors"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/cloudsync/internal/cloudsync"
)

// KV persists small string values such as the pending OAuth state and
// provider credentials.
type KV struct {
	db *sqlx.DB
}

func NewKV(db *sqlx.DB) *KV {
	return &KV{db: db}
}

func (kv *KV) GetLocal(key string) (string, bool) {
	var value string
	err := kv.db.Get(&value, `SELECT value FROM kv WHERE key = ?`, key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("kv get", "key", key, "error", err)
		}
		return "", false
	}
	return value, true
}

func (kv *KV) SetLocal(key, value string) error {
	_, err := kv.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func (kv *KV) RemoveLocal(key string) error {
	_, err := kv.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

var _ cloudsync.Storage = (*KV)(nil)
