package hs

import "context"

// PrimaryIndex is the name of the primary key index.
const PrimaryIndex = "PRIMARY"

// IndexDefinition identifies an index projection. Column order matters,
// results are positional.
type IndexDefinition struct {
	Table         string
	Name          string
	Columns       []string
	FilterColumns []string
}

// IndexName returns Name, or PRIMARY when Name is empty.
func (d IndexDefinition) IndexName() string {
	if d.Name == "" {
		return PrimaryIndex
	}
	return d.Name
}

// Row is one result row, positionally aligned with the opened columns.
type Row []string

// FindRequest locates rows through an opened index.
type FindRequest struct {
	IndexID int
	Op      Operator
	Keys    []string
	Limit   int
	Offset  int
	Filters []Filter
}

// Modification is applied to the rows matched by a FindRequest.
type Modification struct {
	Op     ModifyOp
	Values []string
}

// Conn is one connection to an IndexedStore backend.
//
// Backend rejections must be returned as *ProtocolError. Any other error is
// treated as a transport failure and the connection is discarded.
type Conn interface {
	OpenIndex(ctx context.Context, id int, db string, def IndexDefinition) error
	Find(ctx context.Context, req FindRequest) ([]Row, error)
	Modify(ctx context.Context, req FindRequest, mod Modification) (int, error)
	Insert(ctx context.Context, id int, values []string) error
	Close() error
}

// DialFunc opens the connection used for class.
type DialFunc func(ctx context.Context, class ModeClass) (Conn, error)
