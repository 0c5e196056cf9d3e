package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func stage(t *testing.T, d bson.D) (string, interface{}) {
	t.Helper()
	require.Len(t, d, 1)
	return d[0].Key, d[0].Value
}

func field(d bson.D, key string) interface{} {
	for _, e := range d {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

func TestSearchPipelinePostFilter(t *testing.T) {
	cfg := MongoConfig{SearchIndex: "SemanticSearch", CandidateFactor: 10}
	pipeline := searchPipeline(cfg, []float32{0.1, 0.2}, repoA, 100)
	require.Len(t, pipeline, 4)

	name, value := stage(t, pipeline[0])
	assert.Equal(t, "$vectorSearch", name)
	search := value.(bson.D)
	assert.Equal(t, "SemanticSearch", field(search, "index"))
	assert.Equal(t, "embedding", field(search, "path"))
	assert.Equal(t, 1000, field(search, "numCandidates"))
	assert.Equal(t, 100, field(search, "limit"))
	assert.Nil(t, field(search, "filter"))

	name, value = stage(t, pipeline[1])
	assert.Equal(t, "$match", name)
	assert.Equal(t, repoA, field(value.(bson.D), "metadata.repository"))

	name, _ = stage(t, pipeline[2])
	assert.Equal(t, "$set", name)
	name, value = stage(t, pipeline[3])
	assert.Equal(t, "$unset", name)
	assert.Equal(t, "embedding", value)
}

func TestSearchPipelinePreFilter(t *testing.T) {
	cfg := MongoConfig{SearchIndex: "idx", CandidateFactor: 10, PreFilter: true}
	pipeline := searchPipeline(cfg, []float32{0.1}, repoA, 10)
	require.Len(t, pipeline, 3)

	_, value := stage(t, pipeline[0])
	filter, ok := field(value.(bson.D), "filter").(bson.D)
	require.True(t, ok)
	assert.Equal(t, repoA, field(filter, "metadata.repository"))

	name, _ := stage(t, pipeline[1])
	assert.Equal(t, "$set", name)
}

func TestSearchPipelineCapsCandidates(t *testing.T) {
	cfg := MongoConfig{SearchIndex: "idx", CandidateFactor: 20}
	_, value := stage(t, searchPipeline(cfg, []float32{1}, repoA, 1000)[0])
	assert.Equal(t, maxNumCandidates, field(value.(bson.D), "numCandidates"))
}
