package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kalambet/mitigate/internal/job"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	dbFile = "mitigate.db"

	DefaultListLimit = 50
	MaxListLimit     = 500
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store wraps a SQLite database holding saved job snapshots.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, dbFile)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and avoids
	// "database is locked" errors on files.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate applies embedded SQL migrations that have not been recorded yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Job snapshots ---

// SaveJob stores a new snapshot of rec. A blank name falls back to the
// record's display name.
func (s *Store) SaveJob(name string, rec job.Record) (JobSnapshot, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return JobSnapshot{}, fmt.Errorf("encoding job record: %w", err)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = rec.DisplayName()
	}
	now := s.now().UTC()
	snap := JobSnapshot{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Record:    rec,
	}

	_, err = s.db.Exec(`
		INSERT INTO job_snapshots (id, name, job_number, insured_name, record_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Name, rec.JobDetails.JobNumber.String(), rec.Insured.Name.String(),
		string(body), now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return JobSnapshot{}, fmt.Errorf("inserting job snapshot: %w", err)
	}
	return snap, nil
}

// LoadJob returns the snapshot with the given id, or ErrNotFound.
func (s *Store) LoadJob(id string) (JobSnapshot, error) {
	var (
		snap                 JobSnapshot
		body                 string
		createdAt, updatedAt string
	)
	err := s.db.QueryRow(`
		SELECT id, name, record_json, created_at, updated_at
		FROM job_snapshots WHERE id = ?`, id,
	).Scan(&snap.ID, &snap.Name, &body, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return JobSnapshot{}, ErrNotFound
	}
	if err != nil {
		return JobSnapshot{}, err
	}

	if err := json.Unmarshal([]byte(body), &snap.Record); err != nil {
		return JobSnapshot{}, fmt.Errorf("decoding job snapshot %s: %w", id, err)
	}
	if snap.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return JobSnapshot{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if snap.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return JobSnapshot{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return snap, nil
}

// ListJobs returns snapshot summaries, newest first.
func (s *Store) ListJobs(opts ListOptions) ([]JobSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(opts.Offset, 0)

	query := `SELECT id, name, job_number, insured_name, created_at FROM job_snapshots`
	var args []any
	if q := strings.TrimSpace(opts.Query); q != "" {
		query += ` WHERE name LIKE ? ESCAPE '\' OR job_number LIKE ? ESCAPE '\'`
		pattern := "%" + escapeLike(q) + "%"
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []JobSummary{}
	for rows.Next() {
		var j JobSummary
		var createdAt string
		if err := rows.Scan(&j.ID, &j.Name, &j.JobNumber, &j.InsuredName, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		j.CreatedAt = t
		results = append(results, j)
	}
	return results, rows.Err()
}

// DeleteJob removes a snapshot, returning ErrNotFound if it does not exist.
func (s *Store) DeleteJob(id string) error {
	res, err := s.db.Exec(`DELETE FROM job_snapshots WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
