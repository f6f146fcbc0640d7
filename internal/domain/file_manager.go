package domain

import (
	"context"
	"io"
)

type CreateDirectoryParams struct {
	OwnerID    int64
	Name       string
	ParentUUID *string
}

type UploadFileParams struct {
	OwnerID    int64
	ParentUUID *string
	Name       string
	MimeType   string
	SizeBytes  int64
	Body       io.Reader
}

type ListChildrenQuery struct {
	OwnerID    int64
	ParentUUID *string
	Page       int
	PageSize   int
}

// Listing is one page of a directory's children plus the breadcrumb of
// the listed directory (ancestors only, root first).
type Listing struct {
	Items      []Node `json:"items"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
	Breadcrumb []Node `json:"breadcrumb"`
}

type NodeWithDownloadURL struct {
	Node
	DownloadURL string `json:"download_url"`
}

// DirectoryArchive is a streamed ZIP of a directory subtree. Content
// must be closed by the consumer.
type DirectoryArchive struct {
	Filename string
	Content  io.ReadCloser
}

// FileManager is the tree consistency engine: every read and mutation
// of the per-user file tree goes through it. Each operation takes the
// authenticated owner explicitly and enforces ownership, the naming
// policy, sibling uniqueness and tree acyclicity before touching the
// object store or the cache.
type FileManager interface {
	CreateDirectory(ctx context.Context, params CreateDirectoryParams) (Node, error)
	UploadFile(ctx context.Context, params UploadFileParams) (Node, error)
	ListChildren(ctx context.Context, query ListChildrenQuery) (Listing, error)
	GetNode(ctx context.Context, ownerID int64, nodeUUID string) (Node, error)
	GetBreadcrumb(ctx context.Context, ownerID int64, nodeUUID string) ([]Node, error)
	GetDownloadURL(ctx context.Context, ownerID int64, nodeUUID string) (NodeWithDownloadURL, error)
	Rename(ctx context.Context, ownerID int64, nodeUUID, newName string) (Node, error)
	Move(ctx context.Context, ownerID int64, nodeUUID string, targetParentUUID *string) (Node, error)
	Delete(ctx context.Context, ownerID int64, nodeUUID string) error
	DownloadDirectoryAsZip(ctx context.Context, ownerID int64, nodeUUID string) (DirectoryArchive, error)
}
