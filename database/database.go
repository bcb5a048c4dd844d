package database

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the sqlite database holding the event catalog and
// attendee profiles. Attendance sets live elsewhere (see the attendance
// package).
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// A single connection sidesteps sqlite's writer contention; scan bursts
	// are read-mostly here, so one connection keeps up fine.
	db.SetMaxOpenConns(1)

	// Enable WAL mode
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	return db, nil
}
