// Package storage persists reports, section embeddings, feedback, and search
// history in a local SQLite database.
package storage

import (
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/basisfind/basisfind/internal/report"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for reports, embeddings,
// feedback, and search history.
type Store struct {
	db *sql.DB
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
		dsn = filepath.Join(dataDir, "basisfind.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
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

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
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

	// Sort by filename to guarantee ascending order.
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

		// Check if already applied.
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

// --- Reports ---

const reportColumns = `id, source_path, file_name, file_size, created_at, modified_at,
	project_name, project_number, program_region, category, project_leader,
	project_reviewer, lead_disciplines, client, client_representative,
	background, scope_of_work, scope_of_services, deliverables, reference_documents,
	existing_design, assumptions, performance_requirements, operation_maintenance, monitoring,
	searchable_text, trust_score, trust_badges, indexed_at`

// UpsertReport inserts the report or updates the existing row with the same
// source path, and returns the stored row id. Repeated calls with an unchanged
// report leave the stored content and id unchanged.
func (s *Store) UpsertReport(r *report.Report) (int64, error) {
	if r.SourcePath == "" {
		return 0, fmt.Errorf("report has no source path")
	}

	badges, err := marshalBadges(r.TrustBadges)
	if err != nil {
		return 0, fmt.Errorf("encoding trust badges: %w", err)
	}
	indexedAt := r.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now().UTC()
	}

	_, err = s.db.Exec(`
		INSERT INTO reports (source_path, file_name, file_size, created_at, modified_at,
			project_name, project_number, program_region, category, project_leader,
			project_reviewer, lead_disciplines, client, client_representative,
			background, scope_of_work, scope_of_services, deliverables, reference_documents,
			existing_design, assumptions, performance_requirements, operation_maintenance, monitoring,
			searchable_text, trust_score, trust_badges, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_path) DO UPDATE SET
			file_name = excluded.file_name,
			file_size = excluded.file_size,
			created_at = excluded.created_at,
			modified_at = excluded.modified_at,
			project_name = excluded.project_name,
			project_number = excluded.project_number,
			program_region = excluded.program_region,
			category = excluded.category,
			project_leader = excluded.project_leader,
			project_reviewer = excluded.project_reviewer,
			lead_disciplines = excluded.lead_disciplines,
			client = excluded.client,
			client_representative = excluded.client_representative,
			background = excluded.background,
			scope_of_work = excluded.scope_of_work,
			scope_of_services = excluded.scope_of_services,
			deliverables = excluded.deliverables,
			reference_documents = excluded.reference_documents,
			existing_design = excluded.existing_design,
			assumptions = excluded.assumptions,
			performance_requirements = excluded.performance_requirements,
			operation_maintenance = excluded.operation_maintenance,
			monitoring = excluded.monitoring,
			searchable_text = excluded.searchable_text,
			trust_score = excluded.trust_score,
			trust_badges = excluded.trust_badges,
			indexed_at = excluded.indexed_at`,
		r.SourcePath, r.FileName, r.FileSize,
		formatTime(r.CreatedAt), formatTime(r.ModifiedAt),
		r.ProjectName, r.ProjectNumber, r.ProgramRegion, r.Category, r.ProjectLeader,
		r.Reviewer, r.Disciplines, r.Client, r.ClientRep,
		r.Background, r.ScopeOfWork, r.ScopeOfServices, r.Deliverables, r.References,
		r.ExistingDesign, r.Assumptions, r.Requirements, r.OperationMaint, r.Monitoring,
		r.SearchText, r.TrustScore, badges, indexedAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("upserting report: %w", err)
	}

	var id int64
	if err := s.db.QueryRow("SELECT id FROM reports WHERE source_path = ?", r.SourcePath).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolving report id: %w", err)
	}
	r.ID = id
	return id, nil
}

// GetReport returns the report with the given id, or ErrNotFound.
func (s *Store) GetReport(id int64) (report.Report, error) {
	row := s.db.QueryRow("SELECT "+reportColumns+" FROM reports WHERE id = ?", id)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return report.Report{}, ErrNotFound
	}
	return r, err
}

// GetReportByPath returns the report with the given source path, or ErrNotFound.
func (s *Store) GetReportByPath(sourcePath string) (report.Report, error) {
	row := s.db.QueryRow("SELECT "+reportColumns+" FROM reports WHERE source_path = ?", sourcePath)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return report.Report{}, ErrNotFound
	}
	return r, err
}

// ListReports returns all reports, most recently indexed first.
func (s *Store) ListReports() ([]report.Report, error) {
	rows, err := s.db.Query("SELECT " + reportColumns + " FROM reports ORDER BY indexed_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []report.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteReport removes the report and cascades deletion of its embeddings and
// feedback in one transaction. It reports whether a report row was removed.
func (s *Store) DeleteReport(id int64) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM embeddings WHERE report_id = ?", id); err != nil {
		return false, fmt.Errorf("deleting embeddings: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM feedback WHERE report_id = ?", id); err != nil {
		return false, fmt.Errorf("deleting feedback: %w", err)
	}
	res, err := tx.Exec("DELETE FROM reports WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("deleting report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing delete: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (report.Report, error) {
	var r report.Report
	var createdAt, modifiedAt, indexedAt, badges string
	err := row.Scan(
		&r.ID, &r.SourcePath, &r.FileName, &r.FileSize, &createdAt, &modifiedAt,
		&r.ProjectName, &r.ProjectNumber, &r.ProgramRegion, &r.Category, &r.ProjectLeader,
		&r.Reviewer, &r.Disciplines, &r.Client, &r.ClientRep,
		&r.Background, &r.ScopeOfWork, &r.ScopeOfServices, &r.Deliverables, &r.References,
		&r.ExistingDesign, &r.Assumptions, &r.Requirements, &r.OperationMaint, &r.Monitoring,
		&r.SearchText, &r.TrustScore, &badges, &indexedAt,
	)
	if err != nil {
		return report.Report{}, err
	}

	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return report.Report{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if r.ModifiedAt, err = parseTime(modifiedAt); err != nil {
		return report.Report{}, fmt.Errorf("parsing modified_at: %w", err)
	}
	if r.IndexedAt, err = parseTime(indexedAt); err != nil {
		return report.Report{}, fmt.Errorf("parsing indexed_at: %w", err)
	}
	if err := json.Unmarshal([]byte(badges), &r.TrustBadges); err != nil {
		return report.Report{}, fmt.Errorf("decoding trust badges: %w", err)
	}
	return r, nil
}

// --- Embeddings ---

// SaveEmbedding stores one section vector. A missing ID is assigned.
func (s *Store) SaveEmbedding(e Embedding) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO embeddings (id, report_id, section_name, text_content, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.ReportID, e.Section, e.Text, encodeFloat32s(e.Vector),
		createdAt.Format(time.RFC3339),
	)
	return err
}

// ReplaceEmbeddings supersedes all stored vectors for a report with the given
// set, in one transaction.
func (s *Store) ReplaceEmbeddings(reportID int64, embs []Embedding) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM embeddings WHERE report_id = ?", reportID); err != nil {
		return fmt.Errorf("deleting old embeddings: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, e := range embs {
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := now
		if !e.CreatedAt.IsZero() {
			createdAt = e.CreatedAt.Format(time.RFC3339)
		}
		if _, err := tx.Exec(`
			INSERT INTO embeddings (id, report_id, section_name, text_content, vector, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, reportID, e.Section, e.Text, encodeFloat32s(e.Vector), createdAt,
		); err != nil {
			return fmt.Errorf("inserting embedding for section %q: %w", e.Section, err)
		}
	}

	return tx.Commit()
}

// ListEmbeddings returns all stored embeddings.
func (s *Store) ListEmbeddings() ([]Embedding, error) {
	return s.queryEmbeddings(`SELECT id, report_id, section_name, text_content, vector, created_at
		FROM embeddings ORDER BY report_id ASC, section_name ASC`)
}

// ListReportEmbeddings returns the stored embeddings for one report.
func (s *Store) ListReportEmbeddings(reportID int64) ([]Embedding, error) {
	return s.queryEmbeddings(`SELECT id, report_id, section_name, text_content, vector, created_at
		FROM embeddings WHERE report_id = ? ORDER BY section_name ASC`, reportID)
}

func (s *Store) queryEmbeddings(query string, args ...any) ([]Embedding, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Embedding
	for rows.Next() {
		var e Embedding
		var blob []byte
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ReportID, &e.Section, &e.Text, &blob, &createdAt); err != nil {
			return nil, err
		}
		if e.Vector, err = decodeFloat32s(blob); err != nil {
			return nil, fmt.Errorf("decoding vector for embedding %s: %w", e.ID, err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// --- Feedback ---

// AddFeedback appends one feedback event for a report and returns its id.
func (s *Store) AddFeedback(reportID int64, query, kind, note string) (string, error) {
	if kind != FeedbackThumbsUp && kind != FeedbackThumbsDown {
		return "", fmt.Errorf("invalid feedback kind %q", kind)
	}

	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM reports WHERE id = ?", reportID).Scan(&exists); err != nil {
		return "", fmt.Errorf("checking report %d: %w", reportID, err)
	}
	if exists == 0 {
		return "", ErrNotFound
	}

	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO feedback (id, report_id, query, kind, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, reportID, query, kind, note, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListFeedback returns the feedback events for one report, newest first.
func (s *Store) ListFeedback(reportID int64) ([]Feedback, error) {
	rows, err := s.db.Query(`
		SELECT id, report_id, query, kind, note, created_at
		FROM feedback WHERE report_id = ? ORDER BY created_at DESC, id DESC`, reportID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Feedback
	for rows.Next() {
		var f Feedback
		var createdAt string
		if err := rows.Scan(&f.ID, &f.ReportID, &f.Query, &f.Kind, &f.Note, &createdAt); err != nil {
			return nil, err
		}
		if f.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

// --- Search history ---

// AddSearchQuery appends one search-history entry.
func (s *Store) AddSearchQuery(query string, resultCount int) error {
	_, err := s.db.Exec(`
		INSERT INTO search_history (id, query, result_count, created_at)
		VALUES (?, ?, ?, ?)`,
		uuid.NewString(), query, resultCount, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// ListSearchHistory returns the most recent search queries, newest first.
func (s *Store) ListSearchHistory(limit int) ([]SearchQuery, error) {
	rows, err := s.db.Query(`
		SELECT id, query, result_count, created_at
		FROM search_history ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchQuery
	for rows.Next() {
		var q SearchQuery
		var createdAt string
		if err := rows.Scan(&q.ID, &q.Query, &q.ResultCount, &createdAt); err != nil {
			return nil, err
		}
		if q.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, q)
	}
	return results, rows.Err()
}

// --- Stats ---

// Stats computes aggregate counters on demand. The trust average covers only
// scored reports, so unscored rows do not drag it toward zero.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	row := s.db.QueryRow(`SELECT
		(SELECT COUNT(*) FROM reports),
		(SELECT COUNT(*) FROM embeddings),
		(SELECT COUNT(*) FROM feedback),
		(SELECT COUNT(*) FROM search_history),
		(SELECT COALESCE(AVG(trust_score), 0) FROM reports WHERE trust_score > 0)`)
	if err := row.Scan(&st.ReportCount, &st.EmbeddingCount, &st.FeedbackCount, &st.SearchCount, &st.AvgTrustScore); err != nil {
		return Stats{}, fmt.Errorf("computing stats: %w", err)
	}
	st.AvgTrustScore = math.Round(st.AvgTrustScore*100) / 100
	return st, nil
}

// --- Helpers ---

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func marshalBadges(badges []string) (string, error) {
	if len(badges) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(badges)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4 (indicates data corruption).
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
