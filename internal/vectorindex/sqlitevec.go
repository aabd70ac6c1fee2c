package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"

	"github.com/dale0525/secondloop/internal/store"
)

const messageVecTable = "message_embeddings_vec"

// loadExtensionEnabler matches (*sqlite3.SQLiteConn).EnableLoadExtension.
type loadExtensionEnabler interface {
	EnableLoadExtension(enable bool) error
}

type extStatus struct {
	ok      bool
	errText string
}

// sqliteVecBackend drives the sqlite-vec virtual table living inside the
// vault's own encrypted sqlite file. The extension is loaded per-connection
// rather than process-wide: mattn/go-sqlite3 has no equivalent of SQLite's
// C-level sqlite3_auto_extension hook, so every raw connection pulled from
// the pool must re-enable and load the extension before it can see vec0
// tables (grounded on beeper-ai-bridge's memory_vector.go withVectorConn).
type sqliteVecBackend struct {
	store         *store.Store
	extensionPath string

	mu     sync.Mutex
	status *extStatus
}

func newSQLiteVecBackend(s *store.Store, extensionPath string) *sqliteVecBackend {
	return &sqliteVecBackend{store: s, extensionPath: extensionPath}
}

func (b *sqliteVecBackend) withVectorConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	b.mu.Lock()
	if b.status != nil && !b.status.ok {
		errText := b.status.errText
		b.mu.Unlock()
		return fmt.Errorf("vector extension unavailable: %s", errText)
	}
	b.mu.Unlock()

	conn, err := b.store.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("vector conn: %w", err)
	}
	defer conn.Close()

	if err := b.loadExtension(ctx, conn); err != nil {
		return err
	}
	return fn(conn)
}

func (b *sqliteVecBackend) loadExtension(ctx context.Context, conn *sql.Conn) error {
	if b.extensionPath == "" {
		return nil
	}

	b.mu.Lock()
	status := b.status
	b.mu.Unlock()
	if status != nil {
		if !status.ok {
			return fmt.Errorf("vector extension unavailable: %s", status.errText)
		}
		return b.doLoad(ctx, conn)
	}

	if err := b.doLoad(ctx, conn); err != nil {
		b.mu.Lock()
		b.status = &extStatus{ok: false, errText: err.Error()}
		b.mu.Unlock()
		return err
	}
	b.mu.Lock()
	b.status = &extStatus{ok: true}
	b.mu.Unlock()
	return nil
}

func (b *sqliteVecBackend) doLoad(ctx context.Context, conn *sql.Conn) error {
	_ = conn.Raw(func(driverConn any) error {
		if enabler, ok := driverConn.(loadExtensionEnabler); ok {
			return enabler.EnableLoadExtension(true)
		}
		return nil
	})
	if _, err := conn.ExecContext(ctx, "SELECT load_extension(?)", b.extensionPath); err != nil {
		return fmt.Errorf("vector extension load: %w", err)
	}
	_ = conn.Raw(func(driverConn any) error {
		if enabler, ok := driverConn.(loadExtensionEnabler); ok {
			return enabler.EnableLoadExtension(false)
		}
		return nil
	})
	return nil
}

// EnsureTable creates the vec0 virtual table for dims if it doesn't exist.
// Safe to call repeatedly; a vault never changes dims once the table is
// created (§4.5: vector virtual table with dimension 384).
func (b *sqliteVecBackend) EnsureTable(ctx context.Context, dims int) error {
	return b.withVectorConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, fmt.Sprintf(
			"CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding FLOAT[%d])", messageVecTable, dims))
		return err
	})
}

func vectorToBlob(values []float32) []byte {
	buf := make([]byte, 0, len(values)*4)
	for _, v := range values {
		bits := math.Float32bits(v)
		buf = append(buf, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
	}
	return buf
}

// Upsert replaces (never duplicates, per invariant 2) any prior vector row
// for messageID under modelName.
func (b *sqliteVecBackend) Upsert(ctx context.Context, messageID, modelName string, vec []float32) error {
	return b.withVectorConn(ctx, func(conn *sql.Conn) error {
		var existingRowID int64
		err := conn.QueryRowContext(ctx,
			`SELECT vec_rowid FROM message_embedding_rows WHERE message_id = ? AND model_name = ?`,
			messageID, modelName).Scan(&existingRowID)
		blob := vectorToBlob(vec)
		switch {
		case err == nil:
			_, err = conn.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET embedding = ? WHERE rowid = ?", messageVecTable),
				blob, existingRowID)
			return err
		case err == sql.ErrNoRows:
			res, err := conn.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s(embedding) VALUES (?)", messageVecTable), blob)
			if err != nil {
				return err
			}
			rowID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			_, err = conn.ExecContext(ctx, `INSERT INTO message_embedding_rows(message_id, model_name, vec_rowid)
				VALUES (?, ?, ?)`, messageID, modelName, rowID)
			return err
		default:
			return err
		}
	})
}

func (b *sqliteVecBackend) Search(ctx context.Context, queryVec []float32, modelName string, limit int) ([]searchHit, error) {
	blob := vectorToBlob(queryVec)
	var hits []searchHit
	err := b.withVectorConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, fmt.Sprintf(
			`SELECT mer.message_id, v.distance FROM %s v
			 JOIN message_embedding_rows mer ON mer.vec_rowid = v.rowid
			 WHERE v.embedding MATCH ? AND mer.model_name = ?
			 ORDER BY v.distance ASC LIMIT ?`, messageVecTable),
			blob, modelName, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var h searchHit
			if err := rows.Scan(&h.messageID, &h.distance); err != nil {
				return err
			}
			hits = append(hits, h)
		}
		return rows.Err()
	})
	return hits, err
}

// Reset drops the virtual table and sidecar map so a model switch starts
// clean; EnsureTable recreates it at the new dimension.
func (b *sqliteVecBackend) Reset(ctx context.Context) error {
	return b.withVectorConn(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", messageVecTable)); err != nil {
			return err
		}
		_, err := conn.ExecContext(ctx, `DELETE FROM message_embedding_rows`)
		return err
	})
}
