package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/scopecrawl/internal/model"
)

// FileName is the database file created inside the database directory.
const FileName = "scopecrawl.db"

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// InventoryDB stores finished crawl inventories so runs can be listed,
// reprinted and compared later. Stored runs are never fed back into a crawl.
type InventoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures InventoryDB.
type Options struct {
	// CreateIfNotExists creates the directory and database file when missing.
	CreateIfNotExists bool

	// EnableWAL turns on write-ahead logging.
	EnableWAL bool
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens the database in dbDir.
func Open(dbDir string, opts Options) (*InventoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		}
		return nil, fmt.Errorf("failed to check database path: %w", err)
	}

	mode := "rw"
	if opts.CreateIfNotExists {
		mode = "rwc"
	}
	db, err := sql.Open("sqlite", dbPath+"?mode="+mode+"&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	idb := &InventoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := idb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return idb, nil
}

// Path returns the database file path.
func (idb *InventoryDB) Path() string {
	return idb.dbPath
}

// Close closes the database.
func (idb *InventoryDB) Close() error {
	return idb.db.Close()
}

func (idb *InventoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		stopped INTEGER NOT NULL DEFAULT 0,
		seeds TEXT NOT NULL,
		fetched INTEGER NOT NULL DEFAULT 0,
		pending INTEGER NOT NULL DEFAULT 0,
		dropped INTEGER NOT NULL DEFAULT 0
	);

	-- One row per identity (pure form) seen in a run.
	CREATE TABLE IF NOT EXISTS addresses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		pure TEXT NOT NULL,
		status TEXT NOT NULL,
		errors INTEGER NOT NULL DEFAULT 0,
		address TEXT NOT NULL,
		fingerprints TEXT,
		UNIQUE(run_id, pure)
	);

	CREATE INDEX IF NOT EXISTS idx_addresses_run ON addresses(run_id);
	CREATE INDEX IF NOT EXISTS idx_addresses_pure ON addresses(pure);
	`
	_, err := idb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores inv and returns the new run ID.
func (idb *InventoryDB) SaveRun(ctx context.Context, inv *model.Inventory) (int64, error) {
	seeds, err := json.Marshal(inv.Seeds)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize seeds: %w", err)
	}

	tx, err := idb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (started_at, finished_at, stopped, seeds, fetched, pending, dropped)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		formatTimestamp(inv.StartedAt),
		formatTimestamp(inv.FinishedAt),
		inv.Stopped,
		string(seeds),
		inv.Count(model.StatusFetched),
		inv.Count(model.StatusPending),
		inv.Count(model.StatusDropped),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO addresses (run_id, pure, status, errors, address, fingerprints)
	VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare address insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range inv.Records {
		addr, err := json.Marshal(r.Address)
		if err != nil {
			return 0, fmt.Errorf("failed to serialize address: %w", err)
		}
		fps, err := json.Marshal(r.Fingerprints)
		if err != nil {
			return 0, fmt.Errorf("failed to serialize fingerprints: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, runID, r.Address.Pure(), string(r.Status), r.Errors, string(addr), string(fps)); err != nil {
			return 0, fmt.Errorf("failed to insert address %s: %w", r.Address.Pure(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

// RunSummary describes a stored run without its addresses.
type RunSummary struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Stopped    bool
	Seeds      []string
	Fetched    int
	Pending    int
	Dropped    int
}

// Total returns the number of identities in the run.
func (s RunSummary) Total() int {
	return s.Fetched + s.Pending + s.Dropped
}

// ListRuns returns stored runs, newest first. limit <= 0 returns all.
func (idb *InventoryDB) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `
	SELECT id, started_at, finished_at, stopped, seeds, fetched, pending, dropped
	FROM runs
	ORDER BY id DESC`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := idb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunSummary, error) {
	var s RunSummary
	var started, finished, seeds string
	if err := row.Scan(&s.ID, &started, &finished, &s.Stopped, &seeds, &s.Fetched, &s.Pending, &s.Dropped); err != nil {
		return RunSummary{}, err
	}
	s.StartedAt = parseTimestamp(started)
	s.FinishedAt = parseTimestamp(finished)
	if err := json.Unmarshal([]byte(seeds), &s.Seeds); err != nil {
		return RunSummary{}, fmt.Errorf("failed to parse seeds of run %d: %w", s.ID, err)
	}
	return s, nil
}

// GetRun loads a stored run as an inventory with records sorted by pure form.
func (idb *InventoryDB) GetRun(ctx context.Context, id int64) (*model.Inventory, error) {
	row := idb.db.QueryRowContext(ctx, `
	SELECT id, started_at, finished_at, stopped, seeds, fetched, pending, dropped
	FROM runs WHERE id = ?`, id)
	s, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := idb.db.QueryContext(ctx, `
	SELECT status, errors, address, fingerprints
	FROM addresses WHERE run_id = ?
	ORDER BY pure`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get addresses: %w", err)
	}
	defer rows.Close()

	inv := &model.Inventory{
		Seeds:      s.Seeds,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Stopped:    s.Stopped,
	}
	for rows.Next() {
		var r model.Record
		var status, addr string
		var fps sql.NullString
		if err := rows.Scan(&status, &r.Errors, &addr, &fps); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		r.Status = model.RecordStatus(status)
		if err := json.Unmarshal([]byte(addr), &r.Address); err != nil {
			return nil, fmt.Errorf("failed to parse address: %w", err)
		}
		if fps.Valid && fps.String != "" && fps.String != "null" {
			if err := json.Unmarshal([]byte(fps.String), &r.Fingerprints); err != nil {
				return nil, fmt.Errorf("failed to parse fingerprints: %w", err)
			}
		}
		inv.Records = append(inv.Records, r)
	}
	return inv, rows.Err()
}

// RunDiff is the set difference of identities between two runs.
type RunDiff struct {
	From, To int64
	// Added are identities in To but not in From.
	Added []string
	// Removed are identities in From but not in To.
	Removed []string
	// Common is the number of identities in both.
	Common int
}

// DiffRuns compares the identities of two stored runs.
func (idb *InventoryDB) DiffRuns(ctx context.Context, from, to int64) (*RunDiff, error) {
	for _, id := range []int64{from, to} {
		var n int
		if err := idb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, id).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to check run: %w", err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
		}
	}

	diff := &RunDiff{From: from, To: to}
	var err error
	if diff.Added, err = idb.except(ctx, to, from); err != nil {
		return nil, err
	}
	if diff.Removed, err = idb.except(ctx, from, to); err != nil {
		return nil, err
	}
	err = idb.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM addresses a
	JOIN addresses b ON a.pure = b.pure
	WHERE a.run_id = ? AND b.run_id = ?`, from, to).Scan(&diff.Common)
	if err != nil {
		return nil, fmt.Errorf("failed to count common addresses: %w", err)
	}
	return diff, nil
}

// except returns the pure forms in run a that are missing from run b.
func (idb *InventoryDB) except(ctx context.Context, a, b int64) ([]string, error) {
	rows, err := idb.db.QueryContext(ctx, `
	SELECT pure FROM addresses WHERE run_id = ?
	EXCEPT
	SELECT pure FROM addresses WHERE run_id = ?
	ORDER BY pure`, a, b)
	if err != nil {
		return nil, fmt.Errorf("failed to diff runs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its addresses.
func (idb *InventoryDB) DeleteRun(ctx context.Context, id int64) error {
	tx, err := idb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM addresses WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete addresses: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	return tx.Commit()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats are tried in order by parseTimestamp.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp returns the zero time for unparseable input.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
