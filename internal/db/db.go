package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// BusyTimeoutMS is how long a writer waits on a locked diary before failing.
const BusyTimeoutMS = 5000

var pragmas = []struct {
	name string
	stmt string
}{
	{"enable foreign keys", `PRAGMA foreign_keys = ON`},
	{"set busy timeout", fmt.Sprintf(`PRAGMA busy_timeout = %d`, BusyTimeoutMS)},
}

// Open opens the diary database on a single connection so that pragmas and
// totals transactions all see the same session.
func Open(path string) (*sql.DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}
	sqldb.SetMaxOpenConns(1)
	if err := sqldb.Ping(); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("ping sqlite database %s: %w", path, err)
	}
	for _, p := range pragmas {
		if _, err := sqldb.Exec(p.stmt); err != nil {
			_ = sqldb.Close()
			return nil, fmt.Errorf("%s: %w", p.name, err)
		}
	}
	return sqldb, nil
}
