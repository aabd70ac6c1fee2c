package vectorindex

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// qdrantBackend is the alternate ANN backend used when the host sqlite3
// build cannot load the sqlite-vec extension (§9 "dynamic provider
// dispatch"). Points are keyed by a deterministic UUIDv5 of the message id
// (qdrant only accepts UUIDs or positive integers as point ids) with the
// original id and model name carried in the payload, mirroring
// intelligencedev-manifold's qdrantVector.
type qdrantBackend struct {
	client     *qdrant.Client
	collection string
}

func newQdrantBackend(host string, port int, apiKey string, useTLS bool, collection string) (*qdrantBackend, error) {
	if collection == "" {
		collection = "secondloop_messages"
	}
	config := &qdrant.Config{Host: host, Port: port, UseTLS: useTLS}
	if apiKey != "" {
		config.APIKey = apiKey
	}
	client, err := qdrant.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &qdrantBackend{client: client, collection: collection}, nil
}

func (q *qdrantBackend) pointID(messageID string) *qdrant.PointId {
	id := messageID
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
	}
	return qdrant.NewIDUUID(id)
}

func (q *qdrantBackend) EnsureTable(ctx context.Context, dims int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if dims <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (q *qdrantBackend) Upsert(ctx context.Context, messageID, modelName string, vec []float32) error {
	payload := qdrant.NewValueMap(map[string]any{
		"message_id": messageID,
		"model_name": modelName,
	})
	points := []*qdrant.PointStruct{{
		Id:      q.pointID(messageID),
		Vectors: qdrant.NewVectorsDense(vec),
		Payload: payload,
	}}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	return err
}

func (q *qdrantBackend) Search(ctx context.Context, queryVec []float32, modelName string, limit int) ([]searchHit, error) {
	lim := uint64(limit)
	result, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(queryVec),
		Limit:          &lim,
		Filter:         &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("model_name", modelName)}},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	hits := make([]searchHit, 0, len(result))
	for _, hit := range result {
		messageID := ""
		if hit.Payload != nil {
			if v, ok := hit.Payload["message_id"]; ok {
				messageID = v.GetStringValue()
			}
		}
		if messageID == "" {
			continue
		}
		hits = append(hits, searchHit{messageID: messageID, distance: float64(1 - hit.Score)})
	}
	return hits, nil
}

func (q *qdrantBackend) Reset(ctx context.Context) error {
	_, err := q.client.DeleteCollection(ctx, q.collection)
	return err
}
