package result

import (
	"github.com/kailas-cloud/shopsearch/internal/domain/document"
	"github.com/kailas-cloud/shopsearch/internal/domain/search/channel"
)

// ScoredDocument is a document plus the score one retrieval stage assigned it.
type ScoredDocument struct {
	doc     document.Document
	score   float64
	channel channel.Channel
}

// New creates a scored document.
func New(doc document.Document, score float64, ch channel.Channel) ScoredDocument {
	return ScoredDocument{doc: doc, score: score, channel: ch}
}

// Document returns the underlying document.
func (s *ScoredDocument) Document() document.Document { return s.doc }

// ID returns the underlying document identifier.
func (s *ScoredDocument) ID() string { return s.doc.ID() }

// Score returns the stage-local relevance score.
func (s *ScoredDocument) Score() float64 { return s.score }

// Channel returns the stage that produced the score.
func (s *ScoredDocument) Channel() channel.Channel { return s.channel }

// Rescored returns a copy carrying a new score and channel tag.
func (s *ScoredDocument) Rescored(score float64, ch channel.Channel) ScoredDocument {
	return ScoredDocument{doc: s.doc, score: score, channel: ch}
}
