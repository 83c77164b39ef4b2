package repo

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/auto-support-pilot/server/internal/agent/model"
	errx "github.com/auto-support-pilot/server/internal/core/error"
	logx "github.com/auto-support-pilot/server/pkg/logger"
)

// maxLookupLimit bounds a single lookup regardless of the caller's limit.
const maxLookupLimit = 5

var seedOrders = []model.OrderRecord{
	{OrderID: "ORD-001", OrderItem: "Laptop", Status: "Delivered", Location: "Hyderabad"},
	{OrderID: "ORD-002", OrderItem: "Belt", Status: "Processing", Location: "Shop"},
	{OrderID: "ORD-003", OrderItem: "Jacket", Status: "Delivered", Location: "Kolkata"},
	{OrderID: "ORD-004", OrderItem: "Wallet", Status: "In Stock", Location: "Store 2"},
	{OrderID: "ORD-005", OrderItem: "Bag", Status: "Shipped", Location: "Warehouse B"},
}

// SQLiteOrderStore answers order lookups from a local SQLite database.
type SQLiteOrderStore struct {
	db *sql.DB
}

// NewSQLiteOrderStore opens the database at path, creating parent
// directories. An empty database gets the orders table and demo rows.
func NewSQLiteOrderStore(ctx context.Context, path string) (*SQLiteOrderStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteOrderStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logx.Info().Str("path", path).Msg("order store initialized")
	return s, nil
}

func (s *SQLiteOrderStore) ensureSchema(ctx context.Context) error {
	var tables int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(name) FROM sqlite_master
		WHERE type = 'table'
		AND name NOT LIKE 'sqlite_%'
		AND name NOT LIKE '%_fts%'`).Scan(&tables)
	if err != nil {
		return err
	}
	if tables > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			orderId TEXT,
			orderItem TEXT,
			status TEXT,
			location TEXT
		)`); err != nil {
		return err
	}
	for _, o := range seedOrders {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO orders (orderId, orderItem, status, location) VALUES (?, ?, ?, ?)",
			o.OrderID, o.OrderItem, o.Status, o.Location,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Lookup matches orderId exactly and orderItem as a substring. Empty fields
// apply no filter.
func (s *SQLiteOrderStore) Lookup(ctx context.Context, ref model.OrderRef, limit int) ([]model.OrderRecord, error) {
	if limit <= 0 || limit > maxLookupLimit {
		limit = maxLookupLimit
	}

	var b strings.Builder
	b.WriteString("SELECT orderId, orderItem, status, location FROM orders WHERE 1=1")
	args := make([]any, 0, 3)
	if ref.OrderID != "" {
		b.WriteString(" AND orderId = ?")
		args = append(args, ref.OrderID)
	}
	if ref.OrderItem != "" {
		b.WriteString(" AND orderItem LIKE ?")
		args = append(args, "%"+ref.OrderItem+"%")
	}
	b.WriteString(" ORDER BY id LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		logx.Error().Err(err).Msg("order lookup failed")
		return nil, errx.WrapSQL(err)
	}
	defer rows.Close()

	var out []model.OrderRecord
	for rows.Next() {
		var r model.OrderRecord
		var status, location sql.NullString
		if err := rows.Scan(&r.OrderID, &r.OrderItem, &status, &location); err != nil {
			return nil, errx.WrapSQL(err)
		}
		r.Status = status.String
		r.Location = location.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapSQL(err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteOrderStore) Close() error {
	return s.db.Close()
}

var _ model.OrderLookup = (*SQLiteOrderStore)(nil)
