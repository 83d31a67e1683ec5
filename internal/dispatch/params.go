package dispatch

import (
	"fmt"
	"strings"
)

const (
	DefaultMode    = "standard"
	DefaultTopK    = 5
	MaxTopK        = 50
	DefaultLogSize = 10
	MaxLogSize     = 1000
)

// QueryParams are the inputs of a RAG query, shared by both front ends.
type QueryParams struct {
	Question string
	Mode     string
	TopK     int
}

// Normalize applies defaults and checks ranges. A zero TopK selects the default.
func (p *QueryParams) Normalize() error {
	p.Question = strings.TrimSpace(p.Question)
	if p.Question == "" {
		return fmt.Errorf("question is required")
	}
	p.Mode = strings.TrimSpace(p.Mode)
	if p.Mode == "" {
		p.Mode = DefaultMode
	}
	if p.TopK == 0 {
		p.TopK = DefaultTopK
	}
	if p.TopK < 1 || p.TopK > MaxTopK {
		return fmt.Errorf("top_k must be between 1 and %d", MaxTopK)
	}
	return nil
}

// LogParams are the inputs of a log search.
type LogParams struct {
	Query  string
	Size   int
	APIKey string
}

// Normalize applies defaults and checks ranges. A zero Size selects the default.
func (p *LogParams) Normalize() error {
	p.Query = strings.TrimSpace(p.Query)
	if p.Query == "" {
		return fmt.Errorf("query is required")
	}
	if p.Size == 0 {
		p.Size = DefaultLogSize
	}
	if p.Size < 1 || p.Size > MaxLogSize {
		return fmt.Errorf("size must be between 1 and %d", MaxLogSize)
	}
	return nil
}
