package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"designdeck/core"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a SQLite-backed design store. Element payloads are stored
// as one JSON blob per design; the queryable columns are metadata only.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	stmt := `
	CREATE TABLE IF NOT EXISTS designs (
		id TEXT PRIMARY KEY,
		name TEXT,
		width REAL NOT NULL,
		height REAL NOT NULL,
		data BLOB,
		created_at DATETIME,
		updated_at DATETIME
	);`
	if _, err = db.Exec(stmt); err != nil {
		log.Fatalf("failed to create designs table: %v", err)
	}

	return &sqliteStore{db}
}

type designBlob struct {
	Elements map[string]core.Element `json:"elements"`
	Order    []string                `json:"order"`
}

func (s *sqliteStore) List(ctx context.Context) ([]*core.Design, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, width, height, created_at, updated_at FROM designs")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var designs []*core.Design
	for rows.Next() {
		var d core.Design
		if err := rows.Scan(&d.ID, &d.Name, &d.Width, &d.Height, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		designs = append(designs, &d)
	}
	return designs, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*core.Design, error) {
	log := logrus.WithField("design_id", id)

	var d core.Design
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, width, height, data, created_at, updated_at FROM designs WHERE id = ?", id).
		Scan(&d.ID, &d.Name, &d.Width, &d.Height, &data, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Warn("Design with specified ID not found")
			return nil, core.ErrDesignNotFound
		}
		log.WithError(err).Error("Failed to retrieve design")
		return nil, err
	}

	var blob designBlob
	if len(data) > 0 {
		if err := json.Unmarshal(data, &blob); err != nil {
			log.WithError(err).Error("Failed to decode design payload")
			return nil, err
		}
	}
	d.Elements = blob.Elements
	if d.Elements == nil {
		d.Elements = make(map[string]core.Element)
	}
	d.Order = blob.Order
	log.Debug("Design retrieved successfully")
	return &d, nil
}

func (s *sqliteStore) Save(ctx context.Context, design *core.Design) error {
	log := logrus.WithFields(logrus.Fields{
		"design_id": design.ID,
		"elements":  len(design.Elements),
	})

	data, err := json.Marshal(designBlob{Elements: design.Elements, Order: design.Order})
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM designs WHERE id = ?", design.ID).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	now := time.Now()
	if exists {
		_, err = tx.ExecContext(ctx,
			"UPDATE designs SET name = ?, width = ?, height = ?, data = ?, updated_at = ? WHERE id = ?",
			design.Name, design.Width, design.Height, data, now, design.ID)
	} else {
		createdAt := design.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO designs (id, name, width, height, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			design.ID, design.Name, design.Width, design.Height, data, createdAt, now)
	}
	if err != nil {
		log.WithError(err).Error("Failed to save design")
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	log.Info("Design saved successfully")
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM designs WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrDesignNotFound
	}
	return nil
}
