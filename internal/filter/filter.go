// Package filter decides which repository tree entries are eligible for ingestion.
package filter

import "strings"

// Tree entry kinds as reported by the GitHub trees API.
const (
	KindBlob   = "blob"
	KindTree   = "tree"
	KindCommit = "commit" // submodule
)

// DefaultMaxFileSize is the byte ceiling above which files are skipped.
// Anything larger is almost always generated, minified or binary.
const DefaultMaxFileSize int64 = 100_000

// DefaultExtensions are the source file suffixes worth embedding.
var DefaultExtensions = []string{
	".go", ".py", ".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx",
	".java", ".kt", ".kts", ".scala", ".groovy",
	".c", ".h", ".cc", ".cpp", ".hpp", ".cs", ".m", ".mm", ".swift",
	".rs", ".rb", ".php", ".lua", ".pl", ".r", ".jl", ".dart",
	".ex", ".exs", ".erl", ".hs", ".clj", ".elm", ".fs", ".ml",
	".sh", ".bash", ".zsh", ".sql", ".graphql", ".proto",
	".vue", ".svelte", ".astro", ".html", ".css", ".scss", ".sass", ".less",
	".md", ".mdx",
}

// DefaultIgnoredDirs are directory names whose contents are never ingested.
var DefaultIgnoredDirs = []string{
	"node_modules",
	"vendor",
	"dist",
	"build",
	".git",
	".next",
	"target",
	"__pycache__",
	".venv",
	"venv",
	"coverage",
}

// TreeEntry is a single item of a recursive repository tree listing.
type TreeEntry struct {
	Path string
	Kind string
	Size *int64 // nil when the listing did not report a size
	SHA  string
}

// Rules holds the eligibility criteria. The zero value rejects everything
// because no extension is allowed; use DefaultRules as a starting point.
type Rules struct {
	Extensions  []string
	IgnoredDirs []string
	MaxFileSize int64
}

// DefaultRules returns the stock rule set.
func DefaultRules() Rules {
	return Rules{
		Extensions:  append([]string(nil), DefaultExtensions...),
		IgnoredDirs: append([]string(nil), DefaultIgnoredDirs...),
		MaxFileSize: DefaultMaxFileSize,
	}
}

// Apply returns the entries that pass every rule, in their original order.
// Applying it to its own output returns the same list.
func (r Rules) Apply(entries []TreeEntry) []TreeEntry {
	kept := make([]TreeEntry, 0, len(entries))
	for _, entry := range entries {
		if r.Allows(entry) {
			kept = append(kept, entry)
		}
	}
	return kept
}

// Allows reports whether a single entry is eligible.
func (r Rules) Allows(entry TreeEntry) bool {
	if !r.hasAllowedExtension(entry.Path) {
		return false
	}
	if r.inIgnoredDir(entry.Path) {
		return false
	}
	if entry.Size != nil && r.MaxFileSize > 0 && *entry.Size > r.MaxFileSize {
		return false
	}
	return entry.Kind == KindBlob
}

func (r Rules) hasAllowedExtension(path string) bool {
	for _, ext := range r.Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// inIgnoredDir matches "/dir/" against the path with a leading slash so that
// top-level directories are caught as well as nested ones.
func (r Rules) inIgnoredDir(path string) bool {
	rooted := "/" + path
	for _, dir := range r.IgnoredDirs {
		if strings.Contains(rooted, "/"+dir+"/") {
			return true
		}
	}
	return false
}
