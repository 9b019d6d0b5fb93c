package taskstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dwizi/databridge/internal/task"
)

// SqliteStore is an alternate Store backing for deployments that need
// task state to survive a process restart. It is registered under
// provider name "sqlite"; the in-memory store remains the default and
// reference implementation.
type SqliteStore struct {
	db *sql.DB
}

var _ Store = (*SqliteStore)(nil)

// NewSqliteStore opens (creating if absent) a sqlite database at path
// and ensures the tasks table exists.
func NewSqliteStore(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite task store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Initialize(basePath string) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			task_code INTEGER PRIMARY KEY,
			user_code TEXT NOT NULL,
			kind TEXT NOT NULL,
			status INTEGER NOT NULL,
			has_error INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			identify_code TEXT NOT NULL DEFAULT '',
			create_time_unix_ms INTEGER NOT NULL,
			start_time_unix_ms INTEGER NOT NULL DEFAULT 0,
			end_time_unix_ms INTEGER NOT NULL DEFAULT 0,
			payload TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_user_code ON tasks(user_code);
	`)
	if err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	return nil
}

func (s *SqliteStore) Destroy() error {
	return s.db.Close()
}

// taskPayload is the kind-specific remainder stored as a JSON blob;
// the lifecycle columns (status, timings, error, claim) live in their
// own columns so NextTask/ProcessTask/FinishTask can be plain SQL.
type taskPayload struct {
	DataPath          string          `json:"dataPath,omitempty"`
	Transactional     bool            `json:"transactional,omitempty"`
	TimeoutSec        int             `json:"timeoutSec,omitempty"`
	CompatibilityMode bool            `json:"compatibilityMode,omitempty"`
	QueryList         []task.QueryInfo `json:"queryList,omitempty"`
}

func encodePayload(t task.Task) (string, error) {
	var p taskPayload
	switch v := t.(type) {
	case *task.Import:
		p.DataPath = v.DataPath
		p.Transactional = v.Transactional
		p.TimeoutSec = v.TimeoutSec
	case *task.Export:
		p.CompatibilityMode = v.CompatibilityMode
		p.QueryList = v.QueryList
	default:
		return "", fmt.Errorf("unsupported task kind %T", t)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeRow(kind task.Kind, header task.Header, payloadJSON string) (task.Task, error) {
	var p taskPayload
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return nil, fmt.Errorf("decode task payload: %w", err)
	}
	switch kind {
	case task.KindImport:
		return &task.Import{Header: header, DataPath: p.DataPath, Transactional: p.Transactional, TimeoutSec: p.TimeoutSec}, nil
	case task.KindExport:
		return &task.Export{Header: header, CompatibilityMode: p.CompatibilityMode, QueryList: p.QueryList}, nil
	default:
		return nil, fmt.Errorf("unknown task kind %q", kind)
	}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func (s *SqliteStore) AddTask(t task.Task) (bool, error) {
	header := t.GetHeader()
	payload, err := encodePayload(t)
	if err != nil {
		return false, err
	}
	_, err = s.db.Exec(
		`INSERT INTO tasks (task_code, user_code, kind, status, has_error, error_message, identify_code, create_time_unix_ms, start_time_unix_ms, end_time_unix_ms, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(task_code) DO NOTHING`,
		header.Code, header.UserCode, string(t.Kind()), int(header.Status), header.HasError, header.ErrorMessage,
		header.IdentifyCode, millis(header.CreateTime), millis(header.StartTime), millis(header.EndTime), payload,
	)
	if err != nil {
		return false, fmt.Errorf("insert task: %w", err)
	}
	return true, nil
}

func (s *SqliteStore) ProcessTask(taskCode int64, nodeIdentity string) error {
	result, err := s.db.Exec(
		`UPDATE tasks SET status = ?, start_time_unix_ms = ?
		 WHERE task_code = ? AND identify_code = ? AND status = ?`,
		int(task.StatusProcessing), millis(time.Now().UTC()), taskCode, nodeIdentity, int(task.StatusCreated),
	)
	if err != nil {
		return fmt.Errorf("process task: %w", err)
	}
	if _, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("process task: %w", err)
	}
	return nil
}

func (s *SqliteStore) NextTask(nodeIdentity string) (task.Task, error) {
	row := s.db.QueryRow(
		`SELECT task_code, user_code, kind, status, has_error, error_message, identify_code, create_time_unix_ms, start_time_unix_ms, end_time_unix_ms, payload
		 FROM tasks WHERE status = ? AND identify_code = ? LIMIT 1`,
		int(task.StatusProcessing), nodeIdentity,
	)
	if t, err := scanTask(row); err == nil {
		return t, nil
	} else if err != sql.ErrNoRows {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	row = tx.QueryRow(
		`SELECT task_code, user_code, kind, status, has_error, error_message, identify_code, create_time_unix_ms, start_time_unix_ms, end_time_unix_ms, payload
		 FROM tasks WHERE status = ? AND identify_code = '' LIMIT 1`,
		int(task.StatusCreated),
	)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`UPDATE tasks SET identify_code = ? WHERE task_code = ?`, nodeIdentity, t.GetHeader().Code); err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	header := t.GetHeader()
	header.IdentifyCode = nodeIdentity
	t.SetHeader(header)
	return t, nil
}

func scanTask(row *sql.Row) (task.Task, error) {
	var (
		code                                             int64
		userCode, kindStr, identifyCode, errMsg, payload string
		status                                           int
		hasError                                         bool
		createMs, startMs, endMs                         int64
	)
	if err := row.Scan(&code, &userCode, &kindStr, &status, &hasError, &errMsg, &identifyCode, &createMs, &startMs, &endMs, &payload); err != nil {
		return nil, err
	}
	header := task.Header{
		Code:         code,
		UserCode:     userCode,
		Status:       task.Status(status),
		HasError:     hasError,
		ErrorMessage: errMsg,
		IdentifyCode: identifyCode,
		CreateTime:   fromMillis(createMs),
		StartTime:    fromMillis(startMs),
		EndTime:      fromMillis(endMs),
	}
	return decodeRow(task.Kind(kindStr), header, payload)
}

func (s *SqliteStore) FinishTask(taskCode int64, hasError bool, errorMessage string) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = ?, end_time_unix_ms = ?, has_error = ?, error_message = CASE WHEN ? = '' THEN error_message ELSE error_message || CASE WHEN error_message = '' THEN '' ELSE char(13,10) END || ? END
		 WHERE task_code = ? AND status = ?`,
		int(task.StatusFinished), millis(time.Now().UTC()), hasError, errorMessage, errorMessage, taskCode, int(task.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	return nil
}

func (s *SqliteStore) DropTask(userCode string, taskCode int64) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM tasks WHERE task_code = ? AND user_code = ?`, taskCode, userCode)
	if err != nil {
		return false, fmt.Errorf("drop task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("drop task: %w", err)
	}
	return affected > 0, nil
}

// DropExpired deletes FINISHED tasks whose end_time_unix_ms is before
// now + expireMillis: the cutoff is additive, not subtractive. A
// non-negative expireMillis therefore deletes every finished task
// immediately, since end_time_unix_ms is never after now.
func (s *SqliteStore) DropExpired(expireMillis int64) (int, error) {
	cutoff := time.Now().UTC().UnixMilli() + expireMillis
	result, err := s.db.Exec(
		`DELETE FROM tasks WHERE status = ? AND end_time_unix_ms > 0 AND end_time_unix_ms < ?`,
		int(task.StatusFinished), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("drop expired tasks: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("drop expired tasks: %w", err)
	}
	return int(affected), nil
}

func (s *SqliteStore) TaskList(userCode string, pageNo, limitSize int) ([]task.Task, error) {
	if pageNo <= 0 {
		pageNo = DefaultPageNo
	}
	if limitSize <= 0 {
		limitSize = DefaultPageSize
	}
	offset := (pageNo - 1) * limitSize

	rows, err := s.db.Query(
		`SELECT task_code, user_code, kind, status, has_error, error_message, identify_code, create_time_unix_ms, start_time_unix_ms, end_time_unix_ms, payload
		 FROM tasks WHERE user_code = ? ORDER BY task_code ASC LIMIT ? OFFSET ?`,
		userCode, limitSize, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		var (
			code                                             int64
			uc, kindStr, identifyCode, errMsg, payload string
			status                                           int
			hasError                                         bool
			createMs, startMs, endMs                         int64
		)
		if err := rows.Scan(&code, &uc, &kindStr, &status, &hasError, &errMsg, &identifyCode, &createMs, &startMs, &endMs, &payload); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		header := task.Header{
			Code: code, UserCode: uc, Status: task.Status(status), HasError: hasError, ErrorMessage: errMsg,
			IdentifyCode: identifyCode, CreateTime: fromMillis(createMs), StartTime: fromMillis(startMs), EndTime: fromMillis(endMs),
		}
		t, err := decodeRow(task.Kind(kindStr), header, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SqliteStore) TaskInfo(userCode string, taskCode int64) (task.Task, error) {
	row := s.db.QueryRow(
		`SELECT task_code, user_code, kind, status, has_error, error_message, identify_code, create_time_unix_ms, start_time_unix_ms, end_time_unix_ms, payload
		 FROM tasks WHERE task_code = ? AND user_code = ?`,
		taskCode, userCode,
	)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}
