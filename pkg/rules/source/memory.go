package source

import (
	"context"
	"fmt"
	"sync"

	"mercator-hq/permitgate/pkg/rules/parser"
)

// MemorySource serves bundle documents held in memory. Set replaces them;
// the next Sync reports the change.
type MemorySource struct {
	name   string
	parser *parser.Parser

	mu      sync.RWMutex
	docs    []parser.Document
	rev     int
	loadRev int
}

// NewMemorySource creates a memory source holding docs.
func NewMemorySource(name string, docs ...parser.Document) *MemorySource {
	s := &MemorySource{
		name:   name,
		parser: parser.NewParser(),
		docs:   append([]parser.Document(nil), docs...),
	}
	if len(docs) > 0 {
		s.rev = 1
	}
	return s
}

// Name returns "memory:<name>".
func (s *MemorySource) Name() string {
	return "memory:" + s.name
}

// Set replaces the held documents.
func (s *MemorySource) Set(docs ...parser.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append([]parser.Document(nil), docs...)
	s.rev++
}

// Load parses the held documents.
func (s *MemorySource) Load(ctx context.Context) (*parser.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	docs := s.docs
	s.loadRev = s.rev
	s.mu.Unlock()

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: memory source %s is empty", ErrNoBundle, s.name)
	}
	return s.parser.ParseDocuments(docs)
}

// Sync reports whether Set was called since the last Load.
func (s *MemorySource) Sync(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev != s.loadRev, nil
}
