package sink

import (
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gitlab.com/tozd/go/errors"
	_ "modernc.org/sqlite" // 注册 sqlite 驱动

	"github.com/zqzqsb/systrace/ptracer"
)

const (
	// 每个事务最多写入的事件数
	sqliteBatch = 256
	// 固定宽度，保证按字符串排序即按时间排序
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// Session 是一次跟踪的元数据
type Session struct {
	ID      string
	Started time.Time
	Command string
	Events  int
}

/*
SQLite 把事件记录到 sqlite 数据库

每次跟踪是一个会话，以 uuid 区分；同一个数据库可以保存多个会话。
事件批量写入，Close 时提交剩余的事件
*/
type SQLite struct {
	mu      sync.Mutex
	db      *sql.DB
	tx      *sql.Tx
	stmt    *sql.Stmt
	n       int
	session string
}

// OpenSQLite 打开或创建数据库并开始一个新会话
func OpenSQLite(path string, command []string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Errorf("opening database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	s := &SQLite{db: db, session: uuid.NewString()}
	_, err = db.Exec(`INSERT INTO sessions (id, started, command) VALUES (?, ?, ?)`,
		s.session, time.Now().Format(timeFormat), strings.Join(command, " "))
	if err != nil {
		db.Close()
		return nil, errors.Errorf("inserting session: %w", err)
	}
	return s, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id      TEXT PRIMARY KEY,
			started TEXT NOT NULL,
			command TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS events (
			session     TEXT NOT NULL REFERENCES sessions(id),
			idx         INTEGER NOT NULL,
			ts          TEXT NOT NULL,
			kind        TEXT NOT NULL,
			pid         INTEGER NOT NULL,
			name        TEXT NOT NULL DEFAULT '',
			data        TEXT NOT NULL,
			PRIMARY KEY (session, idx)
		);
		CREATE INDEX IF NOT EXISTS idx_events_name ON events(session, name);
	`)
	if err != nil {
		return errors.Errorf("creating tables: %w", err)
	}
	return nil
}

// Session 返回当前会话的 ID
func (s *SQLite) Session() string {
	return s.session
}

// Emit 写入一个事件
func (s *SQLite) Emit(ev *ptracer.Event) error {
	r := NewRecord(ev)
	data, err := json.Marshal(&r)
	if err != nil {
		return errors.WithStack(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	if s.tx == nil {
		if s.tx, err = s.db.Begin(); err != nil {
			return errors.Errorf("begin: %w", err)
		}
		s.stmt, err = s.tx.Prepare(`INSERT INTO events (session, idx, ts, kind, pid, name, data) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			s.tx.Rollback()
			s.tx = nil
			return errors.Errorf("prepare: %w", err)
		}
	}
	s.n++
	_, err = s.stmt.Exec(s.session, s.n, r.Time.Format(timeFormat), r.Kind, r.Pid, r.Name, string(data))
	if err != nil {
		return errors.Errorf("inserting event: %w", err)
	}
	if s.n%sqliteBatch == 0 {
		return s.commit()
	}
	return nil
}

func (s *SQLite) commit() error {
	if s.tx == nil {
		return nil
	}
	s.stmt.Close()
	err := s.tx.Commit()
	s.tx, s.stmt = nil, nil
	if err != nil {
		return errors.Errorf("commit: %w", err)
	}
	return nil
}

// Close 提交剩余事件并关闭数据库
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	err := s.commit()
	err = errors.Join(err, s.db.Close())
	s.db = nil
	return err
}

// ListSessions 列出数据库中的所有会话，按开始时间排序
func ListSessions(path string) ([]Session, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Errorf("opening database: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT s.id, s.started, s.command, COUNT(e.idx)
		FROM sessions s LEFT JOIN events e ON e.session = s.id
		GROUP BY s.id ORDER BY s.started, s.rowid
	`)
	if err != nil {
		return nil, errors.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var ret []Session
	for rows.Next() {
		var ss Session
		var started string
		if err := rows.Scan(&ss.ID, &started, &ss.Command, &ss.Events); err != nil {
			return nil, errors.Errorf("scanning session: %w", err)
		}
		ss.Started, _ = time.Parse(timeFormat, started)
		ret = append(ret, ss)
	}
	return ret, rows.Err()
}

// ReadRecords 按写入顺序读取会话的事件，name 非空时只读取该系统调用
func ReadRecords(path, session, name string) ([]Record, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Errorf("opening database: %w", err)
	}
	defer db.Close()

	query := `SELECT data FROM events WHERE session = ?`
	args := []any{session}
	if name != "" {
		query += ` AND name = ?`
		args = append(args, name)
	}
	rows, err := db.Query(query+` ORDER BY idx`, args...)
	if err != nil {
		return nil, errors.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var ret []Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Errorf("scanning event: %w", err)
		}
		var r Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, errors.Errorf("decoding event: %w", err)
		}
		ret = append(ret, r)
	}
	return ret, rows.Err()
}
