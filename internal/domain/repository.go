package domain

import "context"

// CreateNodeParams carries every column of a new tree node. Storage
// fields stay nil for directories.
type CreateNodeParams struct {
	UUID       string
	OwnerID    int64
	ParentID   *int64
	Kind       NodeKind
	Name       string
	Path       string
	StorageKey *string
	MimeType   *string
	SizeBytes  *int64
}

type ListChildrenParams struct {
	OwnerID  int64
	ParentID *int64
	Offset   int
	Limit    int
}

// NodeRepository is the metadata store for tree nodes. It is the sole
// source of truth and the sole synchronization point: the unique
// constraint on (owner, parent, name) is the final arbiter for
// concurrent sibling creates, surfaced as ErrNameConflict.
type NodeRepository interface {
	CreateNode(ctx context.Context, params CreateNodeParams) (Node, error)
	GetNodeByUUID(ctx context.Context, uuid string) (Node, error)
	GetNodeByID(ctx context.Context, id int64) (Node, error)
	FindChildByName(ctx context.Context, ownerID int64, parentID *int64, name string) (Node, bool, error)

	// ListChildren returns one page of children ordered directories
	// first, then by name ascending (byte order), plus the total number
	// of children under the parent.
	ListChildren(ctx context.Context, params ListChildrenParams) ([]Node, int64, error)

	// ListAllChildren returns every direct child of the given parent,
	// unpaginated. It is the frontier step for iterative subtree
	// traversal (descendant closure, repath, cycle check).
	ListAllChildren(ctx context.Context, ownerID, parentID int64) ([]Node, error)

	UpdateName(ctx context.Context, id int64, name string) (Node, error)
	UpdateParent(ctx context.Context, id int64, parentID *int64, path string) (Node, error)
	UpdatePath(ctx context.Context, id int64, path string) error

	// DeleteNode removes the row; descendant rows are removed by the
	// store's cascading parent relation.
	DeleteNode(ctx context.Context, id int64) error

	// WithinTransaction runs fn against a repository whose writes commit
	// together or not at all. Moves and directory renames use it so the
	// parent/name update and the descendant path rewrites can never be
	// observed half-applied.
	WithinTransaction(ctx context.Context, fn func(NodeRepository) error) error
}
