package vectorstore

import (
	"context"

	"github.com/qdrant/go-client/qdrant"

	errs "github.com/kbforge/kbindexd/internal/errors"
)

// QdrantStore talks to a Qdrant server over gRPC.
type QdrantStore struct {
	client *qdrant.Client
}

var _ Store = (*QdrantStore)(nil)

// QdrantConfig holds connection settings for the Qdrant store.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, errs.New(errs.ErrCodeStoreUnavailable, "connect to vector store", err).
			WithDetail("host", cfg.Host)
	}
	return &QdrantStore{client: client}, nil
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, dims int) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return errs.New(errs.ErrCodeStoreUnavailable, "check collection", err).
			WithDetail("collection", collection)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return errs.StoreError("create collection", err).
			WithDetail("collection", collection)
	}

	// Keyword indexes make delete-by-source and filtered retrieval
	// cheap on large collections.
	for _, field := range []string{"source_uri", "source_type"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return errs.StoreError("create payload index", err).
				WithDetail("collection", collection).
				WithDetail("field", field)
		}
	}
	return nil
}

func (s *QdrantStore) DeleteBySource(ctx context.Context, collection, sourceURI string) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return errs.New(errs.ErrCodeStoreUnavailable, "check collection", err)
	}
	if !exists {
		return nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("source_uri", sourceURI),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return errs.StoreError("delete points by source", err).
			WithDetail("collection", collection).
			WithDetail("source_uri", sourceURI)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qpoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(p.Payload),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qpoints,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return errs.StoreError("upsert points", err).
			WithDetail("collection", collection)
	}
	return nil
}

func (s *QdrantStore) Count(ctx context.Context, collection string) (uint64, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, errs.New(errs.ErrCodeStoreUnavailable, "count points", err).
			WithDetail("collection", collection)
	}
	return count, nil
}

func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return errs.New(errs.ErrCodeStoreUnavailable, "vector store ping failed", err)
	}
	return nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}
