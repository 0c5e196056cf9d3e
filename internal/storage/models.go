package storage

// Record is one embedded chunk as persisted in the vector store.
type Record struct {
	ID            string    // UUID, assigned by the store when empty
	RepositoryURL string    // repository the chunk came from; every query filters on it
	SourcePath    string    // file path within the repository
	PageContent   string    // chunk text, newlines preserved
	SequenceIndex int       // position of the chunk within its file
	HeaderPath    string    // markdown heading trail, empty for code
	Vector        []float32 // embedding of the normalized chunk text
}

// ScoredRecord is a search hit. Higher scores are more similar.
type ScoredRecord struct {
	Record
	Score float64
}

// DefaultCollectionName is the collection used by every backend.
const DefaultCollectionName = "files"

// Payload field names shared by the backends.
const (
	fieldRepository    = "repository"
	fieldSource        = "source"
	fieldPageContent   = "page_content"
	fieldSequenceIndex = "sequence_index"
	fieldHeaderPath    = "header_path"
)
