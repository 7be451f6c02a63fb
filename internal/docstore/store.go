// Package docstore is the document-store collaborator of the import pipeline:
// get by id, filtered queries, atomic batch writes, add, and merge-set.
//
// Documents are JSON-shaped maps. Every backend stores what Sanitize returns,
// so numbers are float64, times are fixed-width UTC strings, and absent
// values are explicit nils.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

// Store limits mirror the managed document stores this interface abstracts.
const (
	MaxInValues = 30
	MaxBatchOps = 400
)

var (
	ErrNotFound         = errors.New("docstore: document not found")
	ErrTooManyInValues  = fmt.Errorf("docstore: 'in' filter exceeds %d values", MaxInValues)
	ErrBatchTooLarge    = fmt.Errorf("docstore: batch exceeds %d operations", MaxBatchOps)
	ErrInvalidQuery     = errors.New("docstore: invalid query")
	ErrEmptyDocumentKey = errors.New("docstore: collection and id are required")
)

// Document is one stored record.
type Document map[string]any

// Operator is a filter comparison.
type Operator string

const (
	OpEq    Operator = "=="
	OpNotEq Operator = "!="
	OpLt    Operator = "<"
	OpIn    Operator = "in"
)

// Filter restricts a query to documents whose Field compares to Value.
// For OpIn, Value must be a []string or []any of at most MaxInValues items.
// Documents missing Field never match.
type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Where is shorthand for building a Filter.
func Where(field string, op Operator, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query selects documents from one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

// Snapshot is a query result row.
type Snapshot struct {
	ID   string
	Data Document
}

// WriteKind is the kind of a batched write.
type WriteKind int

const (
	// WriteSet replaces the whole document.
	WriteSet WriteKind = iota
	// WriteMerge overwrites only the top-level fields present in Data.
	WriteMerge
)

// Write is one operation of a batch.
type Write struct {
	Kind       WriteKind
	Collection string
	ID         string
	Data       Document
}

// Store is implemented by the memory, PostgreSQL and DynamoDB backends.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, q Query) ([]Snapshot, error)
	// CommitBatch applies up to MaxBatchOps writes as one unit.
	CommitBatch(ctx context.Context, writes []Write) error
	// Add stores doc under a generated id and returns it.
	Add(ctx context.Context, collection string, doc Document) (string, error)
	Set(ctx context.Context, collection, id string, doc Document, merge bool) error
}

func validateQuery(q Query) error {
	if q.Collection == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidQuery)
	}
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("%w: filter field is required", ErrInvalidQuery)
		}
		switch f.Op {
		case OpEq, OpNotEq, OpLt:
		case OpIn:
			vals, ok := inValues(f.Value)
			if !ok {
				return fmt.Errorf("%w: 'in' filter on %s needs a list", ErrInvalidQuery, f.Field)
			}
			if len(vals) > MaxInValues {
				return ErrTooManyInValues
			}
		default:
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
		}
	}
	return nil
}

func validateBatch(writes []Write) error {
	if len(writes) > MaxBatchOps {
		return ErrBatchTooLarge
	}
	for _, w := range writes {
		if w.Collection == "" || w.ID == "" {
			return ErrEmptyDocumentKey
		}
	}
	return nil
}

func inValues(v any) ([]any, bool) {
	switch vals := v.(type) {
	case []any:
		return vals, true
	case []string:
		out := make([]any, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}
