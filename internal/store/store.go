// Package store provides SQLite-backed persistence for taskgrid.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/taskgrid/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides access to the taskgrid SQLite database. It is the durable
// mirror of the in-memory board: tasks, leases, agents, comments and the
// decision log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		type TEXT NOT NULL DEFAULT 'other',
		status TEXT NOT NULL DEFAULT 'todo',
		feature TEXT,
		dependencies TEXT,
		labels TEXT,
		required_skills TEXT,
		estimated_hours REAL NOT NULL DEFAULT 0,
		assigned_agent TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leases (
		task_id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		granted_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		renewal_count INTEGER NOT NULL DEFAULT 0,
		last_progress REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		skills TEXT,
		current_task_id TEXT,
		status TEXT NOT NULL,
		registered_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		author TEXT,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		task_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_comments_task_id ON comments(task_id);
	CREATE INDEX IF NOT EXISTS idx_pdr_task_id ON pdr(task_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// --- Task Operations ---

const taskColumns = `id, name, description, type, status, feature, dependencies, labels,
	required_skills, estimated_hours, assigned_agent, created_at, updated_at`

// PersistTask inserts or replaces a task.
func (s *Store) PersistTask(t *models.Task) error {
	return persistTask(s.db, t)
}

// PersistTasks writes several tasks in one transaction.
func (s *Store) PersistTasks(tasks []*models.Task) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range tasks {
		if err := persistTask(tx, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func persistTask(db execer, t *models.Task) error {
	_, err := db.Exec(
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			type = excluded.type,
			status = excluded.status,
			feature = excluded.feature,
			dependencies = excluded.dependencies,
			labels = excluded.labels,
			required_skills = excluded.required_skills,
			estimated_hours = excluded.estimated_hours,
			assigned_agent = excluded.assigned_agent,
			updated_at = excluded.updated_at`,
		t.ID, t.Name, t.Description, t.Type, t.Status, nullString(t.Feature),
		encodeList(t.Dependencies), encodeList(t.Labels), encodeList(t.RequiredSkills),
		t.EstimatedHours, nullString(t.AssignedAgent), t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("persist task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask retrieves a task by ID. It returns nil when the task does not exist.
func (s *Store) GetTask(id string) (*models.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

// ListTasks returns all tasks, optionally filtered by status, oldest first.
func (s *Store) ListTasks(status string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []interface{}

	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// LoadTasks returns every persisted task.
func (s *Store) LoadTasks() ([]*models.Task, error) {
	return s.ListTasks("")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*models.Task, error) {
	var (
		t                    models.Task
		description, feature sql.NullString
		deps, labels, skills sql.NullString
		agent                sql.NullString
	)
	err := row.Scan(&t.ID, &t.Name, &description, &t.Type, &t.Status, &feature,
		&deps, &labels, &skills, &t.EstimatedHours, &agent, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Description = description.String
	t.Feature = feature.String
	t.AssignedAgent = agent.String
	t.Dependencies = decodeList(deps.String)
	t.Labels = decodeList(labels.String)
	t.RequiredSkills = decodeList(skills.String)
	return &t, nil
}

// --- Lease Operations ---

// SaveLease inserts or replaces the lease for its task.
func (s *Store) SaveLease(l *models.Lease) error {
	return saveLease(s.db, l)
}

func saveLease(db execer, l *models.Lease) error {
	_, err := db.Exec(
		`INSERT INTO leases (task_id, agent_id, granted_at, expires_at, renewal_count, last_progress)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			agent_id = excluded.agent_id,
			granted_at = excluded.granted_at,
			expires_at = excluded.expires_at,
			renewal_count = excluded.renewal_count,
			last_progress = excluded.last_progress`,
		l.TaskID, l.AgentID, l.GrantedAt.UTC(), l.ExpiresAt.UTC(), l.RenewalCount, l.LastProgressPercent,
	)
	if err != nil {
		return fmt.Errorf("save lease for %s: %w", l.TaskID, err)
	}
	return nil
}

// SaveLeases replaces the stored lease table with leases in one transaction.
func (s *Store) SaveLeases(leases []*models.Lease) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM leases`); err != nil {
		return fmt.Errorf("clear leases: %w", err)
	}
	for _, l := range leases {
		if err := saveLease(tx, l); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// DeleteLease removes the lease on a task. Deleting a missing lease is not an error.
func (s *Store) DeleteLease(taskID string) error {
	_, err := s.db.Exec(`DELETE FROM leases WHERE task_id = ?`, taskID)
	return err
}

// LoadLeases returns every stored lease, including expired ones.
func (s *Store) LoadLeases() ([]*models.Lease, error) {
	rows, err := s.db.Query(
		`SELECT task_id, agent_id, granted_at, expires_at, renewal_count, last_progress FROM leases ORDER BY task_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query leases: %w", err)
	}
	defer rows.Close()

	leases := []*models.Lease{}
	for rows.Next() {
		var l models.Lease
		if err := rows.Scan(&l.TaskID, &l.AgentID, &l.GrantedAt, &l.ExpiresAt, &l.RenewalCount, &l.LastProgressPercent); err != nil {
			return nil, fmt.Errorf("scan lease: %w", err)
		}
		leases = append(leases, &l)
	}
	return leases, rows.Err()
}

// --- Agent Operations ---

// SaveAgent inserts or replaces an agent.
func (s *Store) SaveAgent(a *models.Agent) error {
	_, err := s.db.Exec(
		`INSERT INTO agents (id, name, skills, current_task_id, status, registered_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			skills = excluded.skills,
			current_task_id = excluded.current_task_id,
			status = excluded.status`,
		a.ID, a.Name, encodeList(a.Skills), nullString(a.CurrentTaskID), a.Status, a.RegisteredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save agent %s: %w", a.ID, err)
	}
	return nil
}

// LoadAgents returns every stored agent.
func (s *Store) LoadAgents() ([]*models.Agent, error) {
	rows, err := s.db.Query(
		`SELECT id, name, skills, current_task_id, status, registered_at FROM agents ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	agents := []*models.Agent{}
	for rows.Next() {
		var a models.Agent
		var skills, current sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &skills, &current, &a.Status, &a.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.Skills = decodeList(skills.String)
		a.CurrentTaskID = current.String
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(action, inputsHash, outcome, taskID, details string) (*models.PDREntry, error) {
	pdr := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		TaskID:     taskID,
		Details:    details,
		Timestamp:  s.now(),
	}

	_, err := s.db.Exec(
		`INSERT INTO pdr (id, action, inputs_hash, outcome, task_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, nullString(pdr.TaskID), pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDR returns the most recent decision records, optionally for one task.
func (s *Store) ListPDR(taskID string, limit int) ([]models.PDREntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, action, inputs_hash, outcome, task_id, details, timestamp FROM pdr`
	var args []interface{}
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY timestamp DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	entries := []models.PDREntry{}
	for rows.Next() {
		var e models.PDREntry
		var task, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &task, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		e.TaskID = task.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Comment Operations ---

// AddComment attaches a comment to a task.
func (s *Store) AddComment(taskID, author, kind, content string) (*models.Comment, error) {
	c := &models.Comment{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Author:    author,
		Kind:      kind,
		Content:   content,
		CreatedAt: s.now(),
	}

	_, err := s.db.Exec(
		`INSERT INTO comments (id, task_id, author, kind, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.TaskID, nullString(c.Author), c.Kind, c.Content, c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return c, nil
}

// GetCommentsForTask returns the comments on a task, oldest first.
func (s *Store) GetCommentsForTask(taskID string) ([]models.Comment, error) {
	rows, err := s.db.Query(
		`SELECT id, task_id, author, kind, content, created_at FROM comments WHERE task_id = ? ORDER BY created_at, rowid`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query comments for task: %w", err)
	}
	defer rows.Close()
	return scanComments(rows)
}

// QueryComments searches comment content.
func (s *Store) QueryComments(query string) ([]models.Comment, error) {
	rows, err := s.db.Query(
		`SELECT id, task_id, author, kind, content, created_at FROM comments WHERE content LIKE ? ORDER BY created_at DESC LIMIT 50`,
		"%"+strings.TrimSpace(query)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()
	return scanComments(rows)
}

func scanComments(rows *sql.Rows) ([]models.Comment, error) {
	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		var author sql.NullString
		if err := rows.Scan(&c.ID, &c.TaskID, &author, &c.Kind, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.Author = author.String
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func decodeList(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil
	}
	return items
}
