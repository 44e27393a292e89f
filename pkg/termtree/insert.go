package termtree

import (
	"context"

	"github.com/Sternrassler/go-term-sync/pkg/store"
	"github.com/rs/zerolog"
)

// InsertResult counts the outcome of one tree insert.
type InsertResult struct {
	Visited   int
	Succeeded int
	Failed    int
}

// Inserter writes a tree to the store with one procedure call per node.
type Inserter struct {
	exec      store.Executor
	procedure string
	termSetID string
	logger    zerolog.Logger
}

// NewInserter creates an inserter calling procedure for every node. Nodes are
// tagged with termSetID.
func NewInserter(exec store.Executor, procedure, termSetID string, logger zerolog.Logger) *Inserter {
	return &Inserter{
		exec:      exec,
		procedure: procedure,
		termSetID: termSetID,
		logger:    logger.With().Str("component", "term-insert").Logger(),
	}
}

// Insert upserts every node of root in pre-order. A failed node is logged and
// does not stop the walk.
func (in *Inserter) Insert(ctx context.Context, root *Node) InsertResult {
	var res InsertResult

	root.Walk(func(n *Node) bool {
		res.Visited++

		err := in.exec.Execute(ctx, in.procedure, []store.Param{
			store.String("name", optional(n.Name)),
			store.String("uuid", optional(n.ID)),
			store.String("parent_uuid", optional(n.ParentID)),
			store.String("term_set_uuid", optional(in.termSetID)),
		})
		if err != nil {
			res.Failed++
			in.logger.Error().
				Err(err).
				Str("id", n.ID).
				Str("name", n.Name).
				Msg("Failed to insert term")
			return true
		}

		res.Succeeded++
		in.logger.Debug().
			Str("id", n.ID).
			Str("name", n.Name).
			Msg("Inserted term")
		return true
	})

	in.logger.Info().
		Str("procedure", in.procedure).
		Int("visited", res.Visited).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Msg("Term tree inserted")
	return res
}

// optional maps an absent value to SQL NULL.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}
