package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/dale0525/secondloop/internal/embedding"
	"github.com/dale0525/secondloop/internal/store"
	"github.com/dale0525/secondloop/internal/verr"
)

const todoVecTable = "todo_embeddings_vec"

// Todo-thread search is currently sqlite-vec only: it shares the vault's
// encrypted sqlite file and there is no product requirement yet to run it
// against a remote ANN service, unlike message search which a vault might
// reasonably want to scale onto Qdrant.

type todoEntityKind string

const (
	todoEntityTodo     todoEntityKind = "todo"
	todoEntityActivity todoEntityKind = "todo_activity"
)

func (idx *Index) sqliteBackend() (*sqliteVecBackend, error) {
	b, ok := idx.backend.(*sqliteVecBackend)
	if !ok {
		return nil, fmt.Errorf("todo-thread search requires the sqlite-vec backend")
	}
	return b, nil
}

func (b *sqliteVecBackend) ensureTodoTable(ctx context.Context, dims int) error {
	return b.withVectorConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, fmt.Sprintf(
			"CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding FLOAT[%d])", todoVecTable, dims))
		return err
	})
}

func (b *sqliteVecBackend) upsertTodoVector(ctx context.Context, entityID string, kind todoEntityKind, modelName string, vec []float32) error {
	return b.withVectorConn(ctx, func(conn *sql.Conn) error {
		var existingRowID int64
		err := conn.QueryRowContext(ctx,
			`SELECT vec_rowid FROM todo_embedding_rows WHERE entity_id = ? AND entity_kind = ? AND model_name = ?`,
			entityID, string(kind), modelName).Scan(&existingRowID)
		blob := vectorToBlob(vec)
		switch {
		case err == nil:
			_, err = conn.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET embedding = ? WHERE rowid = ?", todoVecTable),
				blob, existingRowID)
			return err
		case err == sql.ErrNoRows:
			res, err := conn.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s(embedding) VALUES (?)", todoVecTable), blob)
			if err != nil {
				return err
			}
			rowID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			_, err = conn.ExecContext(ctx, `INSERT INTO todo_embedding_rows(entity_id, entity_kind, model_name, vec_rowid)
				VALUES (?, ?, ?, ?)`, entityID, string(kind), modelName, rowID)
			return err
		default:
			return err
		}
	})
}

type todoSearchHit struct {
	entityID string
	kind     todoEntityKind
	distance float64
}

func (b *sqliteVecBackend) searchTodoVectors(ctx context.Context, queryVec []float32, modelName string, limit int) ([]todoSearchHit, error) {
	blob := vectorToBlob(queryVec)
	var hits []todoSearchHit
	err := b.withVectorConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, fmt.Sprintf(
			`SELECT ter.entity_id, ter.entity_kind, v.distance FROM %s v
			 JOIN todo_embedding_rows ter ON ter.vec_rowid = v.rowid
			 WHERE v.embedding MATCH ? AND ter.model_name = ?
			 ORDER BY v.distance ASC LIMIT ?`, todoVecTable),
			blob, modelName, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var h todoSearchHit
			var kind string
			if err := rows.Scan(&h.entityID, &kind, &h.distance); err != nil {
				return err
			}
			h.kind = todoEntityKind(kind)
			hits = append(hits, h)
		}
		return rows.Err()
	})
	return hits, err
}

// ProcessPendingTodoThreadEmbeddings embeds every todo title and todo
// activity note flagged needs_embedding. It never sets the flag itself —
// only UpsertTodo/AppendTodoNote do — so running a search between calls to
// this function cannot mark anything pending (§4.5).
func (idx *Index) ProcessPendingTodoThreadEmbeddings(ctx context.Context, embedder embedding.Embedder, batchSize int) (int, error) {
	b, err := idx.sqliteBackend()
	if err != nil {
		return 0, err
	}
	if err := b.ensureTodoTable(ctx, embedder.Dims()); err != nil {
		return 0, err
	}

	processed := 0

	todoIDs, err := idx.store.PendingEmbeddingTodoIDs(batchSize)
	if err != nil {
		return processed, err
	}
	for _, id := range todoIDs {
		todo, err := idx.store.GetTodo(id)
		if err != nil {
			return processed, err
		}
		if err := idx.embedTodoEntity(ctx, b, embedder, id, todoEntityTodo, todo.Title); err != nil {
			return processed, err
		}
		if err := idx.store.ClearTodoNeedsEmbedding(id); err != nil {
			return processed, err
		}
		processed++
	}

	activityIDs, err := idx.store.PendingEmbeddingTodoActivityIDs(batchSize)
	if err != nil {
		return processed, err
	}
	for _, id := range activityIDs {
		activity, err := idx.store.GetTodoActivity(id)
		if err != nil {
			return processed, err
		}
		text := ""
		if activity.Content != nil {
			text = *activity.Content
		}
		if err := idx.embedTodoEntity(ctx, b, embedder, id, todoEntityActivity, text); err != nil {
			return processed, err
		}
		if err := idx.store.ClearTodoActivityNeedsEmbedding(id); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (idx *Index) embedTodoEntity(ctx context.Context, b *sqliteVecBackend, embedder embedding.Embedder, entityID string, kind todoEntityKind, text string) error {
	vectors, err := embedder.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("embed %s %s: %w", kind, entityID, err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("embed %s %s: expected 1 vector, got %d", kind, entityID, len(vectors))
	}
	return b.upsertTodoVector(ctx, entityID, kind, embedder.ModelName(), vectors[0])
}

// TodoThreadResult is one ranked hit from a todo-thread search: either a
// todo itself or one of its activity notes.
type TodoThreadResult struct {
	TodoID         string
	TodoActivityID *string
	Score          float64
}

// SearchSimilarTodoThread searches todos and their activity notes together.
// Reading these rows for search never flips needs_embedding — only writes
// to title/content do — so the pending flag survives a search untouched.
func (idx *Index) SearchSimilarTodoThread(ctx context.Context, embedder embedding.Embedder, queryText string, limit int) ([]TodoThreadResult, error) {
	b, err := idx.sqliteBackend()
	if err != nil {
		return nil, err
	}
	vectors, err := embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, verr.Input("embed query: expected 1 vector, got %d", len(vectors))
	}

	fetchLimit := limit * 4
	if fetchLimit < limit {
		fetchLimit = limit
	}
	hits, err := b.searchTodoVectors(ctx, vectors[0], embedder.ModelName(), fetchLimit)
	if err != nil {
		return nil, err
	}

	seenTodos := make(map[string]bool, len(hits))
	var out []TodoThreadResult
	for _, h := range hits {
		var todoID string
		var activityID *string
		switch h.kind {
		case todoEntityTodo:
			if _, err := idx.store.GetTodo(h.entityID); err != nil {
				continue
			}
			todoID = h.entityID
		case todoEntityActivity:
			activity, err := idx.store.GetTodoActivity(h.entityID)
			if err != nil {
				continue
			}
			todoID = activity.TodoID
			id := h.entityID
			activityID = &id
		default:
			continue
		}
		dedupeKey := todoID
		if activityID != nil {
			dedupeKey = todoID + ":" + *activityID
		}
		if seenTodos[dedupeKey] {
			continue
		}
		seenTodos[dedupeKey] = true
		out = append(out, TodoThreadResult{TodoID: todoID, TodoActivityID: activityID, Score: -h.distance})
		if len(out) >= limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
