package document

import (
	"crypto/sha256"
	"encoding/hex"
)

// Document is one retrieval unit: a chunk of a Reddit discussion with its
// source metadata (post id, subreddit, chunk index, ...).
type Document struct {
	id       string
	text     string
	metadata map[string]any
}

// New creates a Document. When id is empty, identity falls back to a stable
// hash of the text; hash collisions are accepted as the identity mechanism.
func New(id, text string, metadata map[string]any) Document {
	if id == "" {
		id = StableID(text)
	}
	return Document{id: id, text: text, metadata: cloneMetadata(metadata)}
}

// StableID returns a content-derived identifier for a document text.
// The same text always yields the same id.
func StableID(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// ID returns the document identifier. Accessors use value receivers so they
// chain off value returns such as ScoredDocument.Document().
func (d Document) ID() string { return d.id }

// Text returns the document text content.
func (d Document) Text() string { return d.text }

// Metadata returns the source metadata fields.
func (d Document) Metadata() map[string]any { return d.metadata }

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
