package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"strato/internal/domain"
)

// Store is the persistence layer for inventory resources. The engine treats
// it as an external collaborator: resources either exist or ErrNotFound.
type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (s Store) now() string {
	if s.Now != nil {
		return s.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

const resourceCols = `id,collection,parent_id,name,guid,zone,attrs_json,created_at,updated_at`

func scanResource(scan func(dest ...any) error) (domain.Resource, error) {
	var r domain.Resource
	var parent sql.NullInt64
	var attrs string
	err := scan(&r.ID, &r.Collection, &parent, &r.Name, &r.GUID, &r.Zone, &attrs, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}
	if parent.Valid {
		p := parent.Int64
		r.ParentID = &p
	}
	if attrs != "" {
		if err := json.Unmarshal([]byte(attrs), &r.Attributes); err != nil {
			return r, fmt.Errorf("decode attrs for %s id %d: %w", r.Collection, r.ID, err)
		}
	}
	if r.Attributes == nil {
		r.Attributes = map[string]any{}
	}
	return r, nil
}

// InsertResource stores a new resource and returns its assigned id.
func (s Store) InsertResource(ctx context.Context, r domain.Resource) (int64, error) {
	attrs, err := json.Marshal(orEmpty(r.Attributes))
	if err != nil {
		return 0, err
	}
	now := s.now()
	if r.CreatedAt == "" {
		r.CreatedAt = now
	}
	var parent any
	if r.ParentID != nil {
		parent = *r.ParentID
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO resources(collection,parent_id,name,guid,zone,attrs_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		r.Collection, parent, r.Name, r.GUID, r.Zone, string(attrs), r.CreatedAt, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetResource fetches one resource by collection and id.
func (s Store) GetResource(ctx context.Context, collection string, id int64) (domain.Resource, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+resourceCols+` FROM resources WHERE collection=? AND id=?`, collection, id)
	return scanResource(row.Scan)
}

// FindResourceByAttr resolves a resource by an alternate key. Builtin columns
// are matched directly; everything else goes through the attrs JSON.
func (s Store) FindResourceByAttr(ctx context.Context, collection, attr, value string) (domain.Resource, error) {
	var row *sql.Row
	switch attr {
	case "name", "guid", "zone":
		row = s.DB.QueryRowContext(ctx,
			`SELECT `+resourceCols+` FROM resources WHERE collection=? AND `+attr+`=? LIMIT 1`, collection, value)
	default:
		row = s.DB.QueryRowContext(ctx,
			`SELECT `+resourceCols+` FROM resources WHERE collection=? AND json_extract(attrs_json,'$.'||?)=? LIMIT 1`,
			collection, attr, value)
	}
	return scanResource(row.Scan)
}

// ListResources returns every resource in a collection, optionally scoped to
// a parent instance, ordered by id.
func (s Store) ListResources(ctx context.Context, collection string, parentID *int64) ([]domain.Resource, error) {
	query := `SELECT ` + resourceCols + ` FROM resources WHERE collection=?`
	args := []any{collection}
	if parentID != nil {
		query += ` AND parent_id=?`
		args = append(args, *parentID)
	}
	query += ` ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Resource
	for rows.Next() {
		r, err := scanResource(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateResource merges attrs into the stored attribute map. The name, guid
// and zone keys update their columns instead.
func (s Store) UpdateResource(ctx context.Context, collection string, id int64, attrs map[string]any) (domain.Resource, error) {
	r, err := s.GetResource(ctx, collection, id)
	if err != nil {
		return domain.Resource{}, err
	}
	for k, v := range attrs {
		switch k {
		case "name":
			r.Name = fmt.Sprint(v)
		case "guid":
			r.GUID = fmt.Sprint(v)
		case "zone":
			r.Zone = fmt.Sprint(v)
		default:
			r.Attributes[k] = v
		}
	}
	encoded, err := json.Marshal(r.Attributes)
	if err != nil {
		return domain.Resource{}, err
	}
	r.UpdatedAt = s.now()
	_, err = s.DB.ExecContext(ctx,
		`UPDATE resources SET name=?,guid=?,zone=?,attrs_json=?,updated_at=? WHERE collection=? AND id=?`,
		r.Name, r.GUID, r.Zone, string(encoded), r.UpdatedAt, collection, id)
	if err != nil {
		return domain.Resource{}, err
	}
	return r, nil
}

// DeleteResource removes a resource; deleting a missing id is ErrNotFound.
func (s Store) DeleteResource(ctx context.Context, collection string, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM resources WHERE collection=? AND id=?`, collection, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
