// Package qdrant adapts a Qdrant collection as a similarity index for a
// memory store. Points are stored under the record's UUID, and hit
// distances are derived from Qdrant's cosine score as 1 - score.
package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nidhogg/engram/memory/index"
)

// Config holds connection settings for a Qdrant instance.
type Config struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Collection string `json:"collection"`
}

// Index wraps gRPC connections to Qdrant's collections and points services.
type Index struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	collection  string
}

var _ index.Index = (*Index)(nil)

// New dials the Qdrant gRPC endpoint and ensures the configured collection
// exists with the given vector dimension.
func New(ctx context.Context, cfg Config, dimension uint64) (*Index, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	idx := &Index{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		collection:  cfg.Collection,
	}
	if err := idx.ensureCollection(ctx, dimension); err != nil {
		conn.Close()
		return nil, err
	}
	return idx, nil
}

func (x *Index) ensureCollection(ctx context.Context, dimension uint64) error {
	_, err := x.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: x.collection})
	if err == nil {
		return nil
	}
	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", x.collection, err)
	}
	return nil
}

// Add upserts a record's vector under its ID.
func (x *Index) Add(ctx context.Context, id uuid.UUID, vector []float32) error {
	_, err := x.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: x.collection,
		Points: []*pb.PointStruct{
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id.String()}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert %s: %w", x.collection, err)
	}
	return nil
}

// Remove deletes the point stored under id.
func (x *Index) Remove(ctx context.Context, id uuid.UUID) error {
	_, err := x.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: x.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id.String()}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", x.collection, err)
	}
	return nil
}

// Search returns up to k hits ordered by ascending distance. Points whose
// IDs do not parse as UUIDs are skipped.
func (x *Index) Search(ctx context.Context, vector []float32, k int) ([]index.Hit, error) {
	resp, err := x.points.Search(ctx, &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         vector,
		Limit:          uint64(k),
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", x.collection, err)
	}
	hits := make([]index.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, err := uuid.Parse(r.Id.GetUuid())
		if err != nil {
			continue
		}
		hits = append(hits, index.Hit{ID: id, Distance: 1.0 - float64(r.Score)})
	}
	return hits, nil
}

// Close tears down the underlying gRPC connection.
func (x *Index) Close() error {
	return x.conn.Close()
}
