/*
Package store records heatmap rows into a SQLite database. Each run of the pipeline is one
session, every row is kept as float32 little endian blob together with its sequence number and
timestamp.
*/
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    started INTEGER NOT NULL,
    mode    TEXT NOT NULL,
    config  TEXT
);
CREATE TABLE IF NOT EXISTS rows (
    session_id INTEGER NOT NULL REFERENCES sessions(id),
    seq        INTEGER NOT NULL,
    timestamp  INTEGER NOT NULL,
    data       BLOB NOT NULL,
    PRIMARY KEY (session_id, seq)
);`

	insertSessionSQL = `
INSERT INTO sessions (started, mode, config)
VALUES (?, ?, ?)`

	selectSessionSQL = `
SELECT id, started, mode, config
FROM sessions
WHERE id = ?`

	selectSessionsSQL = `
SELECT id, started, mode, config
FROM sessions
ORDER BY id`

	insertRowSQL = `
INSERT INTO rows (session_id, seq, timestamp, data)
VALUES (?, ?, ?, ?)`

	selectRowsSQL = `
SELECT seq, timestamp, data
FROM rows
WHERE session_id = ?
ORDER BY seq`
)

// Session of recorded rows.
type Session struct {
	ID      int64
	Started time.Time
	Mode    string
	Config  string
}

// Row of the heatmap with its position in the session.
type Row struct {
	Seq       int64
	Timestamp time.Time
	Data      []float64
}

// Open the SQLite database at the given path. The database and its schema are created if
// necessary.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", path))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open database %s", path)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(initSchemaSQL)
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "cannot initialize database %s", path)
	}

	return &Store{db: db}, nil
}

// Store of recorded sessions.
type Store struct {
	db *sql.DB
}

// Close the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession starts a new session. The config is stored as JSON.
func (s *Store) CreateSession(ctx context.Context, mode string, config interface{}) (int64, error) {
	var configData sql.NullString
	if config != nil {
		bytes, err := json.Marshal(config)
		if err != nil {
			return 0, errors.Wrap(err, "cannot marshal session config")
		}
		configData = sql.NullString{String: string(bytes), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, insertSessionSQL, time.Now().UnixNano(), mode, configData)
	if err != nil {
		return 0, errors.Wrap(err, "cannot insert session")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "cannot get session id")
	}
	return id, nil
}

// Session returns the session with the given id.
func (s *Store) Session(ctx context.Context, id int64) (*Session, error) {
	row := s.db.QueryRowContext(ctx, selectSessionSQL, id)
	result, err := scanSession(row)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read session %d", id)
	}
	return result, nil
}

// Sessions returns all sessions, oldest first.
func (s *Store) Sessions(ctx context.Context) (result []*Session, err error) {
	rows, err := s.db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "cannot query sessions")
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, "cannot read session")
		}
		result = append(result, session)
	}
	return result, errors.Wrap(rows.Err(), "cannot read sessions")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*Session, error) {
	var result Session
	var started int64
	var config sql.NullString
	err := row.Scan(&result.ID, &started, &result.Mode, &config)
	if err != nil {
		return nil, err
	}
	result.Started = time.Unix(0, started)
	result.Config = config.String
	return &result, nil
}

// AppendRows writes the given rows of the session in one transaction.
func (s *Store) AppendRows(ctx context.Context, session int64, rows []Row) (err error) {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "cannot begin transaction")
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, insertRowSQL)
	if err != nil {
		return errors.Wrap(err, "cannot prepare statement")
	}
	defer closeWithError(stmt, &err)

	for _, row := range rows {
		_, err = stmt.ExecContext(ctx, session, row.Seq, row.Timestamp.UnixNano(), encodeRow(row.Data))
		if err != nil {
			return errors.Wrapf(err, "cannot insert row %d", row.Seq)
		}
	}

	return errors.Wrap(tx.Commit(), "cannot commit rows")
}

// ReadRows returns all rows of the given session ordered by their sequence number.
func (s *Store) ReadRows(ctx context.Context, session int64) (result []Row, err error) {
	rows, err := s.db.QueryContext(ctx, selectRowsSQL, session)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot query rows of session %d", session)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var row Row
		var timestamp int64
		var data []byte
		err := rows.Scan(&row.Seq, &timestamp, &data)
		if err != nil {
			return nil, errors.Wrap(err, "cannot read row")
		}
		row.Timestamp = time.Unix(0, timestamp)
		row.Data, err = decodeRow(data)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot decode row %d", row.Seq)
		}
		result = append(result, row)
	}
	return result, errors.Wrap(rows.Err(), "cannot read rows")
}

func encodeRow(values []float64) []byte {
	result := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(result[4*i:], math.Float32bits(float32(v)))
	}
	return result
}

func decodeRow(data []byte) ([]float64, error) {
	if len(data)%4 != 0 {
		return nil, errors.Errorf("invalid row length %d", len(data))
	}
	result := make([]float64, len(data)/4)
	for i := range result {
		result[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
	}
	return result, nil
}

func closeWithError(c interface{ Close() error }, err *error) {
	if cErr := c.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(tx *sql.Tx, err *error) {
	if rErr := tx.Rollback(); rErr != nil && rErr != sql.ErrTxDone && *err == nil {
		*err = rErr
	}
}
