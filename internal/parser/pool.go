package parser

import (
	"context"
	"runtime"

	"github.com/kbserver/kbserver/internal/chunk"
)

// Pool is a bounded set of reusable tree-sitter parsers. tree-sitter's Go
// bindings are not safe for concurrent use on the same *sitter.Parser, so
// callers rent one, use it for a single file, and return it.
type Pool struct {
	slots chan *chunk.Parser
}

// NewPool creates a pool of size parsers. size<=0 defaults to runtime.NumCPU().
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{slots: make(chan *chunk.Parser, size)}
	for i := 0; i < size; i++ {
		p.slots <- chunk.NewParser()
	}
	return p
}

// Rent blocks until a parser is available or ctx is done.
func (p *Pool) Rent(ctx context.Context) (*chunk.Parser, error) {
	select {
	case parser := <-p.slots:
		return parser, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Return gives a rented parser back to the pool.
func (p *Pool) Return(parser *chunk.Parser) {
	p.slots <- parser
}

// Close releases every parser's resources. Callers must not Rent after Close.
func (p *Pool) Close() {
	close(p.slots)
	for parser := range p.slots {
		parser.Close()
	}
}
