package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sioly123/Lazarus-Ground-Station/internal/flight"
	"github.com/sioly123/Lazarus-Ground-Station/internal/fusion"
	"github.com/sioly123/Lazarus-Ground-Station/internal/link"
)

// StoredRecord is a combined record read back from the store.
type StoredRecord struct {
	ID int64
	fusion.CombinedRecord
	Quality link.Quality
}

// StoredEvent is a status edge read back from the store.
type StoredEvent struct {
	ID        int64
	Timestamp time.Time
	flight.Event
}

// Store persists a session's records and events to SQLite. Writes go through
// a WAL connection; reads use a separate read-only connection.
type Store struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

// OpenStore opens the session's database and creates the schema.
func OpenStore(s *Session) (*Store, error) {
	st := NewStore(s.Path(SQLiteFileName))
	if _, err := st.getWriteDB(); err != nil {
		return nil, err
	}
	return st, nil
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *Store) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *Store) getReadDB() (*sql.DB, error) {
	// The schema must exist before a read-only connection can see it.
	if _, err := s.getWriteDB(); err != nil {
		return nil, err
	}
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// CreateSession registers sess. config is stored as JSON unless it is
// already a string or byte slice.
func (s *Store) CreateSession(ctx context.Context, sess *Session, port string, config any) (err error) {
	var configData sql.NullString

	switch v := config.(type) {
	case nil:
	case string:
		configData = sql.NullString{String: v, Valid: true}
	case []byte:
		configData = sql.NullString{String: string(v), Valid: true}
	default:
		var p []byte
		if p, err = json.Marshal(v); err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		configData = sql.NullString{String: string(p), Valid: true}
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	var portData sql.NullString
	if port != "" {
		portData = sql.NullString{String: port, Valid: true}
	}
	if _, err = db.ExecContext(ctx, insertSessionSQL, sess.ID, sess.Dir, sess.Started.UTC(), portData, configData); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (s *Store) InsertRecord(ctx context.Context, sessionID int, rec fusion.CombinedRecord, q link.Quality) (recordID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	t, x := rec.Telemetry, rec.Transmission
	result, err := db.ExecContext(ctx, insertRecordSQL,
		sessionID,
		rec.Timestamp.UTC(),
		string(rec.Source),
		t.Velocity,
		t.Pitch,
		t.Roll,
		int64(t.Status),
		t.Altitude,
		t.Latitude,
		t.Longitude,
		int64(x.Len),
		x.RSSI,
		x.SNR,
		q.String(),
	)
	if err != nil {
		err = fmt.Errorf("inserting record: %w", err)
		return
	}
	return result.LastInsertId()
}

// InsertEvents stores events in one transaction, in the given order.
func (s *Store) InsertEvents(ctx context.Context, sessionID int, at time.Time, events []flight.Event) (err error) {
	if len(events) == 0 {
		return nil
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, insertEventSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, e := range events {
		if _, err = stmt.ExecContext(ctx, sessionID, at.UTC(), e.Flag.String(), int(e.Flag), e.Transition.String()); err != nil {
			return fmt.Errorf("inserting event: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Store) Records(ctx context.Context, sessionID int) (records []StoredRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectRecordsSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying records: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			r       StoredRecord
			source  string
			status  int64
			length  int64
			quality string
		)
		if err = rows.Scan(&r.ID, &r.Timestamp, &source,
			&r.Telemetry.Velocity, &r.Telemetry.Pitch, &r.Telemetry.Roll, &status,
			&r.Telemetry.Altitude, &r.Telemetry.Latitude, &r.Telemetry.Longitude,
			&length, &r.Transmission.RSSI, &r.Transmission.SNR, &quality); err != nil {
			err = fmt.Errorf("scanning record: %w", err)
			return
		}
		r.Source = fusion.Source(source)
		r.Telemetry.Status = uint32(status)
		r.Transmission.Len = uint32(length)
		if err = r.Quality.UnmarshalText([]byte(quality)); err != nil {
			err = fmt.Errorf("scanning record %d: %w", r.ID, err)
			return
		}
		records = append(records, r)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating records: %w", err)
	}
	return
}

func (s *Store) Events(ctx context.Context, sessionID int) (events []StoredEvent, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectEventsSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying events: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			e          StoredEvent
			bit        int
			transition string
		)
		if err = rows.Scan(&e.ID, &e.Timestamp, &bit, &transition); err != nil {
			err = fmt.Errorf("scanning event: %w", err)
			return
		}
		e.Flag = flight.Flag(bit)
		if e.Transition, err = parseTransition(transition); err != nil {
			err = fmt.Errorf("scanning event %d: %w", e.ID, err)
			return
		}
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating events: %w", err)
	}
	return
}

func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
