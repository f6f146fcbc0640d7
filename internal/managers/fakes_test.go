package managers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/cabinet-cloud/cabinet/internal/domain"
)

// memoryRepository is an in-memory NodeRepository that mirrors the
// store's semantics, including the sibling-uniqueness constraint and
// cascading deletes.
type memoryRepository struct {
	mu     sync.Mutex
	nextID int64
	nodes  map[int64]*domain.Node

	// listCalls counts ListChildren queries so tests can observe cache
	// hits and misses.
	listCalls int

	// failNextCreate makes the next CreateNode fail, simulating a lost
	// race against the unique constraint.
	failNextCreate error

	// failUpdatePath makes every UpdatePath fail, simulating a
	// connection loss mid-rewrite.
	failUpdatePath error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{nodes: map[int64]*domain.Node{}}
}

func (r *memoryRepository) CreateNode(_ context.Context, params domain.CreateNodeParams) (domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failNextCreate; err != nil {
		r.failNextCreate = nil
		return domain.Node{}, err
	}

	for _, n := range r.nodes {
		if n.OwnerID == params.OwnerID && sameParent(n.ParentID, params.ParentID) && n.Name == params.Name {
			return domain.Node{}, domain.ErrNameConflict
		}
	}

	r.nextID++
	now := time.Now().UTC()
	node := &domain.Node{
		ID:         r.nextID,
		UUID:       params.UUID,
		OwnerID:    params.OwnerID,
		ParentID:   params.ParentID,
		Kind:       params.Kind,
		Name:       params.Name,
		Path:       params.Path,
		StorageKey: params.StorageKey,
		MimeType:   params.MimeType,
		SizeBytes:  params.SizeBytes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.nodes[node.ID] = node

	return *node, nil
}

func (r *memoryRepository) GetNodeByUUID(_ context.Context, uuid string) (domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.nodes {
		if n.UUID == uuid {
			return *n, nil
		}
	}

	return domain.Node{}, domain.ErrNotFound
}

func (r *memoryRepository) GetNodeByID(_ context.Context, id int64) (domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n, ok := r.nodes[id]; ok {
		return *n, nil
	}

	return domain.Node{}, domain.ErrNotFound
}

func (r *memoryRepository) FindChildByName(_ context.Context, ownerID int64, parentID *int64, name string) (domain.Node, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.nodes {
		if n.OwnerID == ownerID && sameParent(n.ParentID, parentID) && n.Name == name {
			return *n, true, nil
		}
	}

	return domain.Node{}, false, nil
}

func (r *memoryRepository) ListChildren(_ context.Context, params domain.ListChildrenParams) ([]domain.Node, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listCalls++

	children := r.childrenOf(params.OwnerID, params.ParentID)
	total := int64(len(children))

	if params.Offset >= len(children) {
		return []domain.Node{}, total, nil
	}

	end := params.Offset + params.Limit
	if end > len(children) {
		end = len(children)
	}

	return children[params.Offset:end], total, nil
}

func (r *memoryRepository) ListAllChildren(_ context.Context, ownerID, parentID int64) ([]domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.childrenOf(ownerID, &parentID), nil
}

func (r *memoryRepository) UpdateName(_ context.Context, id int64, name string) (domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[id]
	if !ok {
		return domain.Node{}, domain.ErrNotFound
	}

	for _, n := range r.nodes {
		if n.ID != id && n.OwnerID == node.OwnerID && sameParent(n.ParentID, node.ParentID) && n.Name == name {
			return domain.Node{}, domain.ErrNameConflict
		}
	}

	node.Name = name
	node.UpdatedAt = time.Now().UTC()

	return *node, nil
}

func (r *memoryRepository) UpdateParent(_ context.Context, id int64, parentID *int64, path string) (domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[id]
	if !ok {
		return domain.Node{}, domain.ErrNotFound
	}

	for _, n := range r.nodes {
		if n.ID != id && n.OwnerID == node.OwnerID && sameParent(n.ParentID, parentID) && n.Name == node.Name {
			return domain.Node{}, domain.ErrNameConflict
		}
	}

	node.ParentID = parentID
	node.Path = path
	node.UpdatedAt = time.Now().UTC()

	return *node, nil
}

func (r *memoryRepository) UpdatePath(_ context.Context, id int64, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failUpdatePath != nil {
		return r.failUpdatePath
	}

	node, ok := r.nodes[id]
	if !ok {
		return domain.ErrNotFound
	}

	node.Path = path
	node.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *memoryRepository) DeleteNode(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[id]; !ok {
		return domain.ErrNotFound
	}

	r.cascadeDelete(id)

	return nil
}

func (r *memoryRepository) cascadeDelete(id int64) {
	for childID, n := range r.nodes {
		if n.ParentID != nil && *n.ParentID == id {
			r.cascadeDelete(childID)
		}
	}
	delete(r.nodes, id)
}

// WithinTransaction mimics transactional semantics by snapshotting the
// node table and restoring it when fn fails.
func (r *memoryRepository) WithinTransaction(_ context.Context, fn func(domain.NodeRepository) error) error {
	r.mu.Lock()
	snapshot := make(map[int64]*domain.Node, len(r.nodes))
	for id, n := range r.nodes {
		copied := *n
		snapshot[id] = &copied
	}
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.nodes = snapshot
		r.mu.Unlock()
		return err
	}

	return nil
}

func (r *memoryRepository) childrenOf(ownerID int64, parentID *int64) []domain.Node {
	var children []domain.Node
	for _, n := range r.nodes {
		if n.OwnerID == ownerID && sameParent(n.ParentID, parentID) {
			children = append(children, *n)
		}
	}

	sort.Slice(children, func(i, j int) bool {
		if children[i].IsDirectory() != children[j].IsDirectory() {
			return children[i].IsDirectory()
		}
		return children[i].Name < children[j].Name
	})

	return children
}

func (r *memoryRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

// memoryObjectStore holds object bytes in a map, with switches to
// simulate storage outages.
type memoryObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	failPut    bool
	failDelete bool
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: map[string][]byte{}}
}

func (s *memoryObjectStore) PutObject(_ context.Context, params domain.PutObjectParams) error {
	if s.failPut {
		return fmt.Errorf("simulated storage outage")
	}

	data, err := io.ReadAll(params.Body)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[params.Key] = data

	return nil
}

func (s *memoryObjectStore) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryObjectStore) DeleteObject(_ context.Context, key string) error {
	if s.failDelete {
		return domain.ErrStorageDeleteFailed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)

	return nil
}

func (s *memoryObjectStore) DeleteObjects(_ context.Context, keys []string) error {
	if s.failDelete {
		return domain.ErrStorageDeleteFailed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.objects, key)
	}

	return nil
}

func (s *memoryObjectStore) PresignGetURL(_ context.Context, params domain.PresignGetParams) (string, error) {
	return "https://signed.example/" + params.Key, nil
}

func (s *memoryObjectStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// memoryCache implements the cache contract without TTL expiry; tests
// only care about hits, misses and generation bumps.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gens    map[int64]int64
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}, gens: map[int64]int64{}}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	blob, ok := c.entries[key]
	return blob, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = value
	return nil
}

func (c *memoryCache) OwnerGeneration(_ context.Context, ownerID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.gens[ownerID], nil
}

func (c *memoryCache) BumpOwnerGeneration(_ context.Context, ownerID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[ownerID]++
	return nil
}

func (c *memoryCache) generation(ownerID int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[ownerID]
}
