package managers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cabinet-cloud/cabinet/internal/archive"
	"github.com/cabinet-cloud/cabinet/internal/domain"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

const (
	defaultListingTTL    = 30 * time.Second
	defaultBreadcrumbTTL = time.Hour
	defaultPresignTTL    = time.Hour

	defaultPageSize = 20
	maxPageSize     = 100

	sniffLength = 3072
)

type fileManager struct {
	repository  domain.NodeRepository
	objectStore domain.ObjectStore
	cache       domain.Cache

	listingTTL    time.Duration
	breadcrumbTTL time.Duration
	presignTTL    time.Duration
}

type FileManagerDependencies struct {
	Repository  domain.NodeRepository
	ObjectStore domain.ObjectStore
	Cache       domain.Cache

	ListingTTL    time.Duration
	BreadcrumbTTL time.Duration
	PresignTTL    time.Duration
}

func NewFileManager(deps FileManagerDependencies) domain.FileManager {
	m := &fileManager{
		repository:    deps.Repository,
		objectStore:   deps.ObjectStore,
		cache:         deps.Cache,
		listingTTL:    deps.ListingTTL,
		breadcrumbTTL: deps.BreadcrumbTTL,
		presignTTL:    deps.PresignTTL,
	}

	if m.listingTTL <= 0 {
		m.listingTTL = defaultListingTTL
	}
	if m.breadcrumbTTL <= 0 {
		m.breadcrumbTTL = defaultBreadcrumbTTL
	}
	if m.presignTTL <= 0 {
		m.presignTTL = defaultPresignTTL
	}

	return m
}

func (m *fileManager) CreateDirectory(ctx context.Context, params domain.CreateDirectoryParams) (domain.Node, error) {
	if err := domain.ValidateDirectoryName(params.Name); err != nil {
		return domain.Node{}, err
	}

	parentID, parentPath, err := m.resolveParent(ctx, params.OwnerID, params.ParentUUID)
	if err != nil {
		return domain.Node{}, err
	}

	if _, exists, err := m.repository.FindChildByName(ctx, params.OwnerID, parentID, params.Name); err != nil {
		return domain.Node{}, fmt.Errorf("failed to check sibling uniqueness: %w", err)
	} else if exists {
		return domain.Node{}, domain.ErrNameConflict
	}

	node, err := m.repository.CreateNode(ctx, domain.CreateNodeParams{
		UUID:     uuid.NewString(),
		OwnerID:  params.OwnerID,
		ParentID: parentID,
		Kind:     domain.NodeKindDirectory,
		Name:     params.Name,
		Path:     parentPath,
	})
	if err != nil {
		return domain.Node{}, err
	}

	m.bumpGeneration(ctx, params.OwnerID)

	return node, nil
}

func (m *fileManager) UploadFile(ctx context.Context, params domain.UploadFileParams) (domain.Node, error) {
	if err := domain.ValidateFileName(params.Name); err != nil {
		return domain.Node{}, err
	}

	parentID, parentPath, err := m.resolveParent(ctx, params.OwnerID, params.ParentUUID)
	if err != nil {
		return domain.Node{}, err
	}

	if _, exists, err := m.repository.FindChildByName(ctx, params.OwnerID, parentID, params.Name); err != nil {
		return domain.Node{}, fmt.Errorf("failed to check sibling uniqueness: %w", err)
	} else if exists {
		return domain.Node{}, domain.ErrNameConflict
	}

	body, contentType, err := sniffContentType(params.Body, params.MimeType)
	if err != nil {
		return domain.Node{}, fmt.Errorf("failed to read upload body: %w", err)
	}

	// The storage key is derived before any write so that a failed
	// object write leaves no trace in the metadata store.
	storageKey := buildStorageKey(params.OwnerID, parentPath, params.Name)

	if err := m.objectStore.PutObject(ctx, domain.PutObjectParams{
		Key:         storageKey,
		Body:        body,
		ContentType: contentType,
		Size:        params.SizeBytes,
	}); err != nil {
		log.Error().Err(err).Str("storage_key", storageKey).Msg("Failed to write object to storage")
		return domain.Node{}, domain.ErrStorageWriteFailed
	}

	node, err := m.repository.CreateNode(ctx, domain.CreateNodeParams{
		UUID:       uuid.NewString(),
		OwnerID:    params.OwnerID,
		ParentID:   parentID,
		Kind:       domain.NodeKindFile,
		Name:       params.Name,
		Path:       parentPath,
		StorageKey: &storageKey,
		MimeType:   &contentType,
		SizeBytes:  &params.SizeBytes,
	})
	if err != nil {
		// Compensate so no object is left without a metadata row.
		if delErr := m.objectStore.DeleteObject(ctx, storageKey); delErr != nil {
			log.Warn().Err(delErr).Str("storage_key", storageKey).Msg("Failed to clean up object after metadata insert failure")
		}
		return domain.Node{}, err
	}

	m.bumpGeneration(ctx, params.OwnerID)

	return node, nil
}

type cachedListing struct {
	Items []domain.Node `json:"items"`
	Total int64         `json:"total"`
}

func (m *fileManager) ListChildren(ctx context.Context, query domain.ListChildrenQuery) (domain.Listing, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}

	pageSize := query.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	parentID, _, err := m.resolveParent(ctx, query.OwnerID, query.ParentUUID)
	if err != nil {
		return domain.Listing{}, err
	}

	gen, genOK := m.generation(ctx, query.OwnerID)

	parentKey := "root"
	if query.ParentUUID != nil {
		parentKey = *query.ParentUUID
	}
	listingKey := fmt.Sprintf("cabinet:listing:%d:%d:%s:%d:%d", query.OwnerID, gen, parentKey, page, pageSize)

	var cached cachedListing
	hit := genOK && m.cacheGet(ctx, listingKey, &cached)
	if !hit {
		items, total, err := m.repository.ListChildren(ctx, domain.ListChildrenParams{
			OwnerID:  query.OwnerID,
			ParentID: parentID,
			Offset:   (page - 1) * pageSize,
			Limit:    pageSize,
		})
		if err != nil {
			return domain.Listing{}, fmt.Errorf("failed to list children: %w", err)
		}

		cached = cachedListing{Items: items, Total: total}
		if genOK {
			m.cacheSet(ctx, listingKey, cached, m.listingTTL)
		}
	}

	breadcrumb, err := m.breadcrumbFor(ctx, query.OwnerID, gen, genOK, parentID, query.ParentUUID)
	if err != nil {
		return domain.Listing{}, err
	}

	totalPages := int((cached.Total + int64(pageSize) - 1) / int64(pageSize))

	return domain.Listing{
		Items:      cached.Items,
		Total:      cached.Total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		Breadcrumb: breadcrumb,
	}, nil
}

func (m *fileManager) GetNode(ctx context.Context, ownerID int64, nodeUUID string) (domain.Node, error) {
	return m.resolveOwned(ctx, ownerID, nodeUUID)
}

func (m *fileManager) GetBreadcrumb(ctx context.Context, ownerID int64, nodeUUID string) ([]domain.Node, error) {
	node, err := m.resolveOwned(ctx, ownerID, nodeUUID)
	if err != nil {
		return nil, err
	}

	if !node.IsDirectory() {
		return nil, domain.ErrNotADirectory
	}

	gen, genOK := m.generation(ctx, ownerID)

	return m.breadcrumbFor(ctx, ownerID, gen, genOK, &node.ID, &node.UUID)
}

func (m *fileManager) GetDownloadURL(ctx context.Context, ownerID int64, nodeUUID string) (domain.NodeWithDownloadURL, error) {
	node, err := m.resolveOwned(ctx, ownerID, nodeUUID)
	if err != nil {
		return domain.NodeWithDownloadURL{}, err
	}

	if !node.IsFile() || node.StorageKey == nil {
		return domain.NodeWithDownloadURL{}, domain.ErrNotAFile
	}

	contentType := ""
	if node.MimeType != nil {
		contentType = *node.MimeType
	}

	url, err := m.objectStore.PresignGetURL(ctx, domain.PresignGetParams{
		Key:         *node.StorageKey,
		TTL:         m.presignTTL,
		Filename:    node.Name,
		ContentType: contentType,
	})
	if err != nil {
		return domain.NodeWithDownloadURL{}, fmt.Errorf("failed to presign download url: %w", err)
	}

	return domain.NodeWithDownloadURL{Node: node, DownloadURL: url}, nil
}

func (m *fileManager) Rename(ctx context.Context, ownerID int64, nodeUUID, newName string) (domain.Node, error) {
	node, err := m.resolveOwned(ctx, ownerID, nodeUUID)
	if err != nil {
		return domain.Node{}, err
	}

	// Renaming to the current name is a no-op: no write, no cache bump.
	if newName == node.Name {
		return node, nil
	}

	if err := domain.ValidateName(node.Kind, newName); err != nil {
		return domain.Node{}, err
	}

	if sibling, exists, err := m.repository.FindChildByName(ctx, ownerID, node.ParentID, newName); err != nil {
		return domain.Node{}, fmt.Errorf("failed to check sibling uniqueness: %w", err)
	} else if exists && sibling.ID != node.ID {
		return domain.Node{}, domain.ErrNameConflict
	}

	// Descendant paths embed this directory's name, so a directory
	// rename rewrites the whole subtree's materialized paths. The name
	// update and the rewrites commit together or not at all.
	var updated domain.Node
	err = m.repository.WithinTransaction(ctx, func(repo domain.NodeRepository) error {
		var err error
		updated, err = repo.UpdateName(ctx, node.ID, newName)
		if err != nil {
			return err
		}
		if updated.IsDirectory() {
			return repathSubtree(ctx, repo, updated)
		}
		return nil
	})
	if err != nil {
		return domain.Node{}, err
	}

	m.bumpGeneration(ctx, ownerID)

	return updated, nil
}

func (m *fileManager) Move(ctx context.Context, ownerID int64, nodeUUID string, targetParentUUID *string) (domain.Node, error) {
	node, err := m.resolveOwned(ctx, ownerID, nodeUUID)
	if err != nil {
		return domain.Node{}, err
	}

	targetParentID, targetPath, err := m.resolveParent(ctx, ownerID, targetParentUUID)
	if err != nil {
		return domain.Node{}, err
	}

	if node.IsDirectory() && targetParentID != nil {
		if *targetParentID == node.ID {
			return domain.Node{}, domain.ErrInvalidMove
		}
		inSubtree, err := m.isDescendant(ctx, ownerID, node.ID, *targetParentID)
		if err != nil {
			return domain.Node{}, err
		}
		if inSubtree {
			return domain.Node{}, domain.ErrInvalidMove
		}
	}

	if sameParent(node.ParentID, targetParentID) {
		return domain.Node{}, domain.ErrAlreadyInLocation
	}

	if sibling, exists, err := m.repository.FindChildByName(ctx, ownerID, targetParentID, node.Name); err != nil {
		return domain.Node{}, fmt.Errorf("failed to check sibling uniqueness: %w", err)
	} else if exists && sibling.ID != node.ID {
		return domain.Node{}, domain.ErrNameConflict
	}

	// Reparenting and the descendant path rewrites commit together, so
	// a failure mid-rewrite never leaves the subtree half-moved.
	var updated domain.Node
	err = m.repository.WithinTransaction(ctx, func(repo domain.NodeRepository) error {
		var err error
		updated, err = repo.UpdateParent(ctx, node.ID, targetParentID, targetPath)
		if err != nil {
			return err
		}
		if updated.IsDirectory() {
			return repathSubtree(ctx, repo, updated)
		}
		return nil
	})
	if err != nil {
		return domain.Node{}, err
	}

	m.bumpGeneration(ctx, ownerID)

	return updated, nil
}

// Delete removes a node and, for directories, every descendant.
// Object-store cleanup runs first but is best-effort: metadata rows are
// the system of record, so a storage failure logs the orphaned keys and
// never blocks row deletion. The same policy applies to single files
// and whole subtrees.
func (m *fileManager) Delete(ctx context.Context, ownerID int64, nodeUUID string) error {
	node, err := m.resolveOwned(ctx, ownerID, nodeUUID)
	if err != nil {
		return err
	}

	var storageKeys []string
	if node.IsFile() && node.StorageKey != nil {
		storageKeys = append(storageKeys, *node.StorageKey)
	}

	if node.IsDirectory() {
		descendants, err := m.collectDescendants(ctx, node)
		if err != nil {
			return err
		}
		for _, d := range descendants {
			if d.IsFile() && d.StorageKey != nil {
				storageKeys = append(storageKeys, *d.StorageKey)
			}
		}
	}

	if len(storageKeys) > 0 {
		if err := m.objectStore.DeleteObjects(ctx, storageKeys); err != nil {
			log.Warn().
				Err(err).
				Int("key_count", len(storageKeys)).
				Int64("owner_id", ownerID).
				Str("node_uuid", node.UUID).
				Msg("Object store delete failed, proceeding with metadata deletion (orphaned objects)")
		}
	}

	if err := m.repository.DeleteNode(ctx, node.ID); err != nil {
		return fmt.Errorf("failed to delete node metadata: %w", err)
	}

	m.bumpGeneration(ctx, ownerID)

	return nil
}

func (m *fileManager) DownloadDirectoryAsZip(ctx context.Context, ownerID int64, nodeUUID string) (domain.DirectoryArchive, error) {
	node, err := m.resolveOwned(ctx, ownerID, nodeUUID)
	if err != nil {
		return domain.DirectoryArchive{}, err
	}

	if !node.IsDirectory() {
		return domain.DirectoryArchive{}, domain.ErrNotADirectory
	}

	descendants, err := m.collectDescendants(ctx, node)
	if err != nil {
		return domain.DirectoryArchive{}, err
	}

	prefix := node.ChildPath()

	var entries []archive.Entry
	for _, d := range descendants {
		if !d.IsFile() || d.StorageKey == nil {
			continue
		}
		relative := strings.TrimPrefix(d.Path, prefix) + d.Name
		entries = append(entries, archive.Entry{
			Name:     node.Name + "/" + relative,
			Key:      *d.StorageKey,
			Modified: d.UpdatedAt,
		})
	}

	if len(entries) == 0 {
		return domain.DirectoryArchive{}, domain.ErrEmptyDirectory
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return domain.DirectoryArchive{
		Filename: node.Name + ".zip",
		Content:  archive.NewZipStream(ctx, entries, m.objectStore.GetObject),
	}, nil
}

// resolveOwned fetches a node by its external reference and enforces
// ownership: a missing node is NotFound, someone else's node Forbidden.
func (m *fileManager) resolveOwned(ctx context.Context, ownerID int64, nodeUUID string) (domain.Node, error) {
	node, err := m.repository.GetNodeByUUID(ctx, nodeUUID)
	if err != nil {
		return domain.Node{}, err
	}

	if node.OwnerID != ownerID {
		return domain.Node{}, domain.ErrForbidden
	}

	return node, nil
}

// resolveParent maps an optional parent reference to the internal
// parent id and the materialized path children of that parent carry.
func (m *fileManager) resolveParent(ctx context.Context, ownerID int64, parentUUID *string) (*int64, string, error) {
	if parentUUID == nil || *parentUUID == "" {
		return nil, domain.RootPath, nil
	}

	parent, err := m.repository.GetNodeByUUID(ctx, *parentUUID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", domain.ErrParentNotFound
		}
		return nil, "", err
	}

	if parent.OwnerID != ownerID || !parent.IsDirectory() {
		return nil, "", domain.ErrParentNotFound
	}

	return &parent.ID, parent.ChildPath(), nil
}

// breadcrumbFor returns the ancestor chain of the given directory,
// root first, excluding the directory itself. Root listings have an
// empty breadcrumb.
func (m *fileManager) breadcrumbFor(ctx context.Context, ownerID int64, gen int64, genOK bool, nodeID *int64, nodeUUID *string) ([]domain.Node, error) {
	if nodeID == nil {
		return []domain.Node{}, nil
	}

	var key string
	if genOK && nodeUUID != nil {
		key = fmt.Sprintf("cabinet:breadcrumb:%d:%d:%s", ownerID, gen, *nodeUUID)
		var cached []domain.Node
		if m.cacheGet(ctx, key, &cached) {
			return cached, nil
		}
	}

	node, err := m.repository.GetNodeByID(ctx, *nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load node for breadcrumb: %w", err)
	}

	breadcrumb := []domain.Node{}
	for node.ParentID != nil {
		parent, err := m.repository.GetNodeByID(ctx, *node.ParentID)
		if err != nil {
			return nil, fmt.Errorf("failed to walk ancestor chain: %w", err)
		}
		breadcrumb = append([]domain.Node{parent}, breadcrumb...)
		node = parent
	}

	if key != "" {
		m.cacheSet(ctx, key, breadcrumb, m.breadcrumbTTL)
	}

	return breadcrumb, nil
}

// repathSubtree rewrites the materialized path of every descendant of
// root, level by level. root must already carry its final name, parent
// and path. Both Move and directory Rename funnel through here, always
// on a transaction-bound repository.
func repathSubtree(ctx context.Context, repo domain.NodeRepository, root domain.Node) error {
	frontier := []domain.Node{root}

	for len(frontier) > 0 {
		var next []domain.Node

		for _, dir := range frontier {
			if !dir.IsDirectory() {
				continue
			}

			children, err := repo.ListAllChildren(ctx, dir.OwnerID, dir.ID)
			if err != nil {
				return fmt.Errorf("failed to list children while repathing: %w", err)
			}

			childPath := dir.ChildPath()
			for _, child := range children {
				if child.Path != childPath {
					if err := repo.UpdatePath(ctx, child.ID, childPath); err != nil {
						return fmt.Errorf("failed to update descendant path: %w", err)
					}
					child.Path = childPath
				}
				next = append(next, child)
			}
		}

		frontier = next
	}

	return nil
}

// collectDescendants gathers the full subtree below root by iterative
// frontier traversal over the parent relation.
func (m *fileManager) collectDescendants(ctx context.Context, root domain.Node) ([]domain.Node, error) {
	var all []domain.Node
	frontier := []domain.Node{root}

	for len(frontier) > 0 {
		var next []domain.Node

		for _, dir := range frontier {
			if !dir.IsDirectory() {
				continue
			}

			children, err := m.repository.ListAllChildren(ctx, dir.OwnerID, dir.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to traverse subtree: %w", err)
			}

			all = append(all, children...)
			next = append(next, children...)
		}

		frontier = next
	}

	return all, nil
}

// isDescendant reports whether candidateID lies in the subtree rooted
// at rootID.
func (m *fileManager) isDescendant(ctx context.Context, ownerID, rootID, candidateID int64) (bool, error) {
	frontier := []int64{rootID}

	for len(frontier) > 0 {
		var next []int64

		for _, id := range frontier {
			children, err := m.repository.ListAllChildren(ctx, ownerID, id)
			if err != nil {
				return false, fmt.Errorf("failed to traverse subtree: %w", err)
			}

			for _, child := range children {
				if child.ID == candidateID {
					return true, nil
				}
				if child.IsDirectory() {
					next = append(next, child.ID)
				}
			}
		}

		frontier = next
	}

	return false, nil
}

func (m *fileManager) generation(ctx context.Context, ownerID int64) (int64, bool) {
	gen, err := m.cache.OwnerGeneration(ctx, ownerID)
	if err != nil {
		log.Debug().Err(err).Int64("owner_id", ownerID).Msg("Cache generation lookup failed, skipping cache")
		return 0, false
	}
	return gen, true
}

func (m *fileManager) bumpGeneration(ctx context.Context, ownerID int64) {
	if err := m.cache.BumpOwnerGeneration(ctx, ownerID); err != nil {
		log.Debug().Err(err).Int64("owner_id", ownerID).Msg("Cache generation bump failed")
	}
}

func (m *fileManager) cacheGet(ctx context.Context, key string, target any) bool {
	blob, ok, err := m.cache.Get(ctx, key)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Cache read failed, falling back to store")
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(blob, target); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Cache entry undecodable, falling back to store")
		return false
	}
	return true
}

func (m *fileManager) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	blob, err := json.Marshal(value)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Failed to encode cache entry")
		return
	}
	if err := m.cache.Set(ctx, key, blob, ttl); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// buildStorageKey derives a fresh object key under the owner's prefix.
// The parent path is baked in at upload time only; keys are opaque
// afterwards and are never rewritten on move or rename.
func buildStorageKey(ownerID int64, parentPath, name string) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("users/%d%s%s%s", ownerID, parentPath, xid.New().String(), ext)
}

// sniffContentType returns the effective content type for an upload,
// preferring the declared one and falling back to detection from the
// first bytes. The returned reader replays any bytes consumed.
func sniffContentType(body io.Reader, declared string) (io.Reader, string, error) {
	if declared != "" && declared != "application/octet-stream" {
		return body, declared, nil
	}

	header := make([]byte, sniffLength)
	n, err := io.ReadFull(body, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, "", err
	}
	header = header[:n]

	detected := mimetype.Detect(header).String()

	return io.MultiReader(bytes.NewReader(header), body), detected, nil
}
