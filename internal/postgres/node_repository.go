package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cabinet-cloud/cabinet/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

const nodeColumns = "id, uuid, owner_id, parent_id, kind, name, path, storage_key, mime_type, size_bytes, created_at, updated_at"

// dbConn is the query surface shared by *pgxpool.Pool and pgx.Tx, so
// the same repository code serves both pool-level and transactional use.
type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type nodeRepository struct {
	// pool is nil for transaction-bound repositories.
	pool *pgxpool.Pool
	db   dbConn
}

type NodeRepositoryDependencies struct {
	Pool *pgxpool.Pool
}

func NewNodeRepository(deps NodeRepositoryDependencies) domain.NodeRepository {
	return &nodeRepository{pool: deps.Pool, db: deps.Pool}
}

// WithinTransaction runs fn with a repository bound to a single
// transaction, committed when fn returns nil and rolled back otherwise.
// A repository already inside a transaction keeps using it.
func (r *nodeRepository) WithinTransaction(ctx context.Context, fn func(domain.NodeRepository) error) error {
	if r.pool == nil {
		return fn(r)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&nodeRepository{db: tx})
	})
}

func (r *nodeRepository) CreateNode(ctx context.Context, params domain.CreateNodeParams) (domain.Node, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO nodes (uuid, owner_id, parent_id, kind, name, path, storage_key, mime_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+nodeColumns,
		params.UUID, params.OwnerID, params.ParentID, string(params.Kind),
		params.Name, params.Path, params.StorageKey, params.MimeType, params.SizeBytes,
	)

	node, err := scanNode(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Node{}, domain.ErrNameConflict
		}
		return domain.Node{}, fmt.Errorf("failed to insert node: %w", err)
	}

	return node, nil
}

func (r *nodeRepository) GetNodeByUUID(ctx context.Context, uuid string) (domain.Node, error) {
	row := r.db.QueryRow(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE uuid = $1`, uuid)

	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Node{}, domain.ErrNotFound
		}
		return domain.Node{}, fmt.Errorf("failed to get node by uuid: %w", err)
	}

	return node, nil
}

func (r *nodeRepository) GetNodeByID(ctx context.Context, id int64) (domain.Node, error) {
	row := r.db.QueryRow(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = $1`, id)

	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Node{}, domain.ErrNotFound
		}
		return domain.Node{}, fmt.Errorf("failed to get node by id: %w", err)
	}

	return node, nil
}

func (r *nodeRepository) FindChildByName(ctx context.Context, ownerID int64, parentID *int64, name string) (domain.Node, bool, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+nodeColumns+`
		FROM nodes
		WHERE owner_id = $1 AND parent_id IS NOT DISTINCT FROM $2 AND name = $3`,
		ownerID, parentID, name,
	)

	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Node{}, false, nil
		}
		return domain.Node{}, false, fmt.Errorf("failed to find child by name: %w", err)
	}

	return node, true, nil
}

func (r *nodeRepository) ListChildren(ctx context.Context, params domain.ListChildrenParams) ([]domain.Node, int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM nodes
		WHERE owner_id = $1 AND parent_id IS NOT DISTINCT FROM $2`,
		params.OwnerID, params.ParentID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count children: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+nodeColumns+`
		FROM nodes
		WHERE owner_id = $1 AND parent_id IS NOT DISTINCT FROM $2
		ORDER BY (kind = 'directory') DESC, name COLLATE "C" ASC
		OFFSET $3 LIMIT $4`,
		params.OwnerID, params.ParentID, params.Offset, params.Limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, 0, err
	}

	return nodes, total, nil
}

func (r *nodeRepository) ListAllChildren(ctx context.Context, ownerID, parentID int64) ([]domain.Node, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+nodeColumns+`
		FROM nodes
		WHERE owner_id = $1 AND parent_id = $2
		ORDER BY id`,
		ownerID, parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

func (r *nodeRepository) UpdateName(ctx context.Context, id int64, name string) (domain.Node, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE nodes SET name = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+nodeColumns,
		id, name,
	)

	node, err := scanNode(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Node{}, domain.ErrNameConflict
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Node{}, domain.ErrNotFound
		}
		return domain.Node{}, fmt.Errorf("failed to rename node: %w", err)
	}

	return node, nil
}

func (r *nodeRepository) UpdateParent(ctx context.Context, id int64, parentID *int64, path string) (domain.Node, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE nodes SET parent_id = $2, path = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+nodeColumns,
		id, parentID, path,
	)

	node, err := scanNode(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Node{}, domain.ErrNameConflict
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Node{}, domain.ErrNotFound
		}
		return domain.Node{}, fmt.Errorf("failed to move node: %w", err)
	}

	return node, nil
}

func (r *nodeRepository) UpdatePath(ctx context.Context, id int64, path string) error {
	_, err := r.db.Exec(ctx, `UPDATE nodes SET path = $2, updated_at = now() WHERE id = $1`, id, path)
	if err != nil {
		return fmt.Errorf("failed to update node path: %w", err)
	}

	return nil
}

func (r *nodeRepository) DeleteNode(ctx context.Context, id int64) error {
	// Descendant rows go with the root row via ON DELETE CASCADE.
	tag, err := r.db.Exec(ctx, `DELETE FROM nodes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanNode(row scannable) (domain.Node, error) {
	var node domain.Node
	var kind string

	err := row.Scan(
		&node.ID, &node.UUID, &node.OwnerID, &node.ParentID, &kind, &node.Name,
		&node.Path, &node.StorageKey, &node.MimeType, &node.SizeBytes,
		&node.CreatedAt, &node.UpdatedAt,
	)
	if err != nil {
		return domain.Node{}, err
	}

	node.Kind = domain.NodeKind(kind)

	return node, nil
}

func scanNodes(rows pgx.Rows) ([]domain.Node, error) {
	nodes := []domain.Node{}

	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node row: %w", err)
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read node rows: %w", err)
	}

	return nodes, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
