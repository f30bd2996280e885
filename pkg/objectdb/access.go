package objectdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ammawel/cul_bridge/pkg/objects"
)

func (d *DB) GetObject(ctx context.Context, id string) (*objects.Object, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT id, type, common, native FROM objects WHERE id = ?", id)
	obj, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, objects.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("objectdb: get object %s: %w", id, err)
	}
	return obj, nil
}

func (d *DB) CreateObjectIfAbsent(ctx context.Context, id string, obj objects.Object) (bool, error) {
	common, err := json.Marshal(obj.Common)
	if err != nil {
		return false, fmt.Errorf("objectdb: encode common %s: %w", id, err)
	}
	native := obj.Native
	if native == nil {
		native = map[string]any{}
	}
	nativeJSON, err := json.Marshal(native)
	if err != nil {
		return false, fmt.Errorf("objectdb: encode native %s: %w", id, err)
	}

	res, err := d.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO objects (id, type, common, native) VALUES (?, ?, ?, ?)",
		id, string(obj.Type), string(common), string(nativeJSON),
	)
	if err != nil {
		return false, fmt.Errorf("objectdb: create object %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (d *DB) ListObjects(ctx context.Context, prefix string) ([]objects.Object, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, type, common, native FROM objects WHERE substr(id, 1, ?) = ? ORDER BY id",
		len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("objectdb: list objects: %w", err)
	}
	defer rows.Close()

	var out []objects.Object
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *obj)
	}
	return out, rows.Err()
}

// SetState upserts a state value. NaN numbers are stored as NULL.
func (d *DB) SetState(ctx context.Context, id string, val any, ack bool) error {
	var encoded sql.NullString
	if val != nil && !objects.IsNaN(val) {
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("objectdb: encode state %s: %w", id, err)
		}
		encoded = sql.NullString{String: string(b), Valid: true}
	}

	_, err := d.db.ExecContext(ctx,
		"INSERT INTO states (id, val, ack, ts) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT(id) DO UPDATE SET val = excluded.val, ack = excluded.ack, ts = excluded.ts",
		id, encoded, ack, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("objectdb: set state %s: %w", id, err)
	}
	return nil
}

func (d *DB) GetState(ctx context.Context, id string) (*objects.State, error) {
	var (
		val sql.NullString
		ack bool
		ts  int64
	)
	err := d.db.QueryRowContext(ctx,
		"SELECT val, ack, ts FROM states WHERE id = ?", id,
	).Scan(&val, &ack, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, objects.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("objectdb: get state %s: %w", id, err)
	}

	st := &objects.State{ID: id, Ack: ack, Timestamp: time.UnixMilli(ts).UTC()}
	if val.Valid {
		if err := json.Unmarshal([]byte(val.String), &st.Val); err != nil {
			return nil, fmt.Errorf("objectdb: decode state %s: %w", id, err)
		}
	}
	return st, nil
}

func (d *DB) InsertTelegram(ctx context.Context, t *RawTelegram) error {
	res, err := d.db.ExecContext(ctx,
		"INSERT INTO raw_telegrams (received_at, protocol, address, line) "+
			"VALUES (?, ?, ?, ?)",
		t.ReceivedAt.UTC().UnixMilli(),
		t.Protocol,
		t.Address,
		t.Line,
	)
	if err != nil {
		return fmt.Errorf("objectdb: insert telegram: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		t.ID = id
	}
	return nil
}

// RecentTelegrams returns up to limit telegrams, newest first.
func (d *DB) RecentTelegrams(ctx context.Context, limit int) ([]RawTelegram, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, received_at, protocol, address, line FROM raw_telegrams "+
			"ORDER BY received_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("objectdb: recent telegrams: %w", err)
	}
	defer rows.Close()

	var out []RawTelegram
	for rows.Next() {
		var (
			t  RawTelegram
			ms int64
		)
		if err := rows.Scan(&t.ID, &ms, &t.Protocol, &t.Address, &t.Line); err != nil {
			return nil, err
		}
		t.ReceivedAt = time.UnixMilli(ms).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// PruneTelegrams deletes telegrams received before cutoff.
func (d *DB) PruneTelegrams(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		"DELETE FROM raw_telegrams WHERE received_at < ?", cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("objectdb: prune telegrams: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(row rowScanner) (*objects.Object, error) {
	var (
		obj    objects.Object
		typ    string
		common string
		native string
	)
	if err := row.Scan(&obj.ID, &typ, &common, &native); err != nil {
		return nil, err
	}
	obj.Type = objects.ObjectType(typ)
	if err := json.Unmarshal([]byte(common), &obj.Common); err != nil {
		return nil, fmt.Errorf("objectdb: decode common %s: %w", obj.ID, err)
	}
	if err := json.Unmarshal([]byte(native), &obj.Native); err != nil {
		return nil, fmt.Errorf("objectdb: decode native %s: %w", obj.ID, err)
	}
	return &obj, nil
}
