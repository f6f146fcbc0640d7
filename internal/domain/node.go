package domain

import (
	"strings"
	"time"
)

type NodeKind string

const (
	NodeKindFile      NodeKind = "file"
	NodeKindDirectory NodeKind = "directory"
)

// Node is a single entry in a user's file tree, either a file or a
// directory. The numeric ID is internal to the metadata store; clients
// only ever see the UUID.
type Node struct {
	ID       int64    `json:"-"`
	UUID     string   `json:"uuid"`
	OwnerID  int64    `json:"-"`
	ParentID *int64   `json:"-"`
	Kind     NodeKind `json:"kind"`
	Name     string   `json:"name"`

	// Path is the materialized path of the node's ancestors: the
	// parent's path concatenated with the parent's name and a trailing
	// slash, or "/" for root-level nodes. It is kept transactionally in
	// sync with ParentID on every move and directory rename.
	Path string `json:"path"`

	StorageKey *string `json:"-"`
	MimeType   *string `json:"mime_type,omitempty"`
	SizeBytes  *int64  `json:"size_bytes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (n Node) IsDirectory() bool {
	return n.Kind == NodeKindDirectory
}

func (n Node) IsFile() bool {
	return n.Kind == NodeKindFile
}

// ChildPath returns the materialized path that children of this node
// carry: the node's own path followed by its name and a slash.
func (n Node) ChildPath() string {
	return joinPath(n.Path, n.Name)
}

func joinPath(parentPath, name string) string {
	p := parentPath + name + "/"
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}

// RootPath is the materialized path of nodes without a parent.
const RootPath = "/"
