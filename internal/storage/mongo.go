package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	DefaultMongoDatabase    = "git_glean"
	DefaultMongoSearchIndex = "SemanticSearch"
	mongoVectorField        = "embedding"

	// Atlas rejects numCandidates above this.
	maxNumCandidates = 10000
)

// MongoConfig configures the MongoDB Atlas Vector Search backend.
type MongoConfig struct {
	URI         string `koanf:"uri"`
	Database    string `koanf:"database"`
	Collection  string `koanf:"collection"`
	SearchIndex string `koanf:"search_index"` // Atlas vector search index on the embedding field
	// CandidateFactor multiplies the query limit into numCandidates.
	CandidateFactor int `koanf:"candidate_factor"`
	// PreFilter pushes the repository filter into $vectorSearch. It requires
	// metadata.repository to be declared as a filter field of the index;
	// otherwise the filter is applied as a $match after the search.
	PreFilter bool `koanf:"pre_filter"`
}

type mongoMetadata struct {
	Source        string `bson:"source"`
	Repository    string `bson:"repository"`
	SequenceIndex int    `bson:"sequence_index"`
	HeaderPath    string `bson:"header_path,omitempty"`
}

type mongoDocument struct {
	ID          string        `bson:"_id"`
	PageContent string        `bson:"pageContent"`
	Metadata    mongoMetadata `bson:"metadata"`
	Embedding   []float32     `bson:"embedding,omitempty"`
	Score       float64       `bson:"score,omitempty"`
}

// MongoIndex stores records as documents of one collection searched through
// an Atlas $vectorSearch index.
type MongoIndex struct {
	client     *mongo.Client
	collection *mongo.Collection
	config     MongoConfig
}

// NewMongoIndex connects to MongoDB and verifies the connection.
func NewMongoIndex(ctx context.Context, cfg MongoConfig) (*MongoIndex, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("%w: mongodb uri not set", ErrStoreUnreachable)
	}
	if cfg.Database == "" {
		cfg.Database = DefaultMongoDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollectionName
	}
	if cfg.SearchIndex == "" {
		cfg.SearchIndex = DefaultMongoSearchIndex
	}
	if cfg.CandidateFactor <= 0 {
		cfg.CandidateFactor = 10
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}

	idx := &MongoIndex{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		config:     cfg,
	}
	if err := idx.Health(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	return idx, nil
}

// DeleteRepository removes every document of the repository.
func (m *MongoIndex) DeleteRepository(ctx context.Context, repositoryURL string) error {
	if _, err := m.collection.DeleteMany(ctx, bson.M{"metadata.repository": repositoryURL}); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// Insert bulk-inserts records.
func (m *MongoIndex) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]interface{}, len(records))
	for i, r := range records {
		docs[i] = mongoDocument{
			ID:          r.ID,
			PageContent: r.PageContent,
			Metadata: mongoMetadata{
				Source:        r.SourcePath,
				Repository:    r.RepositoryURL,
				SequenceIndex: r.SequenceIndex,
				HeaderPath:    r.HeaderPath,
			},
			Embedding: r.Vector,
		}
	}
	if _, err := m.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert documents: %w", err)
	}
	return nil
}

// Query runs an approximate nearest neighbour search. Results come back in
// $vectorSearch order, which is by descending score.
func (m *MongoIndex) Query(ctx context.Context, vector []float32, repositoryURL string, limit int) ([]ScoredRecord, error) {
	cursor, err := m.collection.Aggregate(ctx, searchPipeline(m.config, vector, repositoryURL, limit))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}

	out := make([]ScoredRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, ScoredRecord{
			Record: Record{
				ID:            d.ID,
				RepositoryURL: d.Metadata.Repository,
				SourcePath:    d.Metadata.Source,
				PageContent:   d.PageContent,
				SequenceIndex: d.Metadata.SequenceIndex,
				HeaderPath:    d.Metadata.HeaderPath,
			},
			Score: d.Score,
		})
	}
	return out, nil
}

// searchPipeline builds the aggregation for Query.
func searchPipeline(cfg MongoConfig, vector []float32, repositoryURL string, limit int) mongo.Pipeline {
	numCandidates := min(limit*cfg.CandidateFactor, maxNumCandidates)
	numCandidates = max(numCandidates, limit)

	search := bson.D{
		{Key: "index", Value: cfg.SearchIndex},
		{Key: "path", Value: mongoVectorField},
		{Key: "queryVector", Value: vector},
		{Key: "numCandidates", Value: numCandidates},
		{Key: "limit", Value: limit},
	}
	if cfg.PreFilter {
		search = append(search, bson.E{Key: "filter", Value: bson.D{{Key: "metadata.repository", Value: repositoryURL}}})
	}

	pipeline := mongo.Pipeline{{{Key: "$vectorSearch", Value: search}}}
	if !cfg.PreFilter {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.D{{Key: "metadata.repository", Value: repositoryURL}}}})
	}
	return append(pipeline,
		bson.D{{Key: "$set", Value: bson.D{{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}}}}},
		bson.D{{Key: "$unset", Value: mongoVectorField}},
	)
}

// Health pings the primary.
func (m *MongoIndex) Health(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (m *MongoIndex) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
