package graphadapter

import (
	"context"
	"fmt"
	"log/slog"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// VectorMirror is an optional sidecar mirror of article embeddings into
// Qdrant, kept alongside the graph's own vector index. Disabled by default;
// enabled only when Config.QdrantAddr is set, since the graph index alone
// satisfies the spec's retrieval requirement.
type VectorMirror struct {
	conn       *grpc.ClientConn
	points     pb.PointsClient
	collection pb.CollectionsClient
	name       string
	log        *slog.Logger
}

// NewVectorMirror dials addr and prepares to mirror points into collection.
func NewVectorMirror(addr, collection string, log *slog.Logger) (*VectorMirror, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("graphadapter: dial qdrant %s: %w", addr, err)
	}
	return &VectorMirror{
		conn:       conn,
		points:     pb.NewPointsClient(conn),
		collection: pb.NewCollectionsClient(conn),
		name:       collection,
		log:        log,
	}, nil
}

// Close releases the gRPC connection.
func (m *VectorMirror) Close() error { return m.conn.Close() }

// EnsureCollection creates the mirror's collection if absent.
func (m *VectorMirror) EnsureCollection(ctx context.Context, dims int) error {
	list, err := m.collection.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("graphadapter: list qdrant collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == m.name {
			return nil
		}
	}
	_, err = m.collection.Create(ctx, &pb.CreateCollection{
		CollectionName: m.name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(dims), Distance: pb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("graphadapter: create qdrant collection %s: %w", m.name, err)
	}
	return nil
}

// MirrorPoint is a single embedding to upsert into the sidecar.
type MirrorPoint struct {
	ID        string
	Embedding []float32
	Payload   map[string]string
}

// Upsert mirrors a batch of article embeddings into Qdrant. Failures here
// are logged, never propagated: the mirror is an optional enrichment, and a
// Save worker must not fail a document because the sidecar is unavailable.
func (m *VectorMirror) Upsert(ctx context.Context, points []MirrorPoint) {
	if len(points) == 0 {
		return
	}
	qPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		payload := make(map[string]*pb.Value, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
		qPoints[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Embedding}}},
			Payload: payload,
		}
	}
	wait := true
	if _, err := m.points.Upsert(ctx, &pb.UpsertPoints{CollectionName: m.name, Wait: &wait, Points: qPoints}); err != nil {
		m.log.Warn("graphadapter.mirror_upsert_failed", "error", err, "count", len(points))
	}
}
