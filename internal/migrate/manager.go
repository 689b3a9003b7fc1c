// Package migrate applies the versioned SQL schema and optional seed files to
// PostgreSQL. Every step runs in one transaction together with its bookkeeping
// row, and a session advisory lock keeps concurrent runners apart.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"

	// lockKey is the pg_advisory_lock id shared by every migrate process.
	lockKey int64 = 0x1de4b0a2d
)

// ErrNothingApplied is returned by Down when the history is empty.
var ErrNothingApplied = errors.New("migrate: no migrations applied")

// Manager applies migrations and seeds read from file systems.
type Manager struct {
	db          *sql.DB
	migrations  fs.FS
	seeds       fs.FS
	schemaTable string
	seedTable   string
	now         func() time.Time
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the schema history table name.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.schemaTable = name
		}
	}
}

// WithSeedsTable overrides the seed history table name.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seedTable = name
		}
	}
}

// NewManager constructs a Manager. A nil migrations FS selects the embedded
// schema; seeds may be nil.
func NewManager(db *sql.DB, migrations, seeds fs.FS, opts ...Option) *Manager {
	if migrations == nil {
		migrations = Embedded()
	}
	m := &Manager{
		db:          db,
		migrations:  migrations,
		seeds:       seeds,
		schemaTable: "schema_migrations",
		seedTable:   "schema_seeds",
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State describes one known migration.
type State struct {
	Version   string
	AppliedAt time.Time
}

// Applied reports whether the migration is recorded in the history table.
func (s State) Applied() bool { return !s.AppliedAt.IsZero() }

func (s State) String() string {
	if s.Applied() {
		return fmt.Sprintf("%s\tapplied %s", s.Version, s.AppliedAt.Format(time.RFC3339))
	}
	return s.Version + "\tpending"
}

// Up applies every pending migration in version order and returns the
// versions it applied.
func (m *Manager) Up(ctx context.Context) ([]string, error) {
	steps, err := loadMigrations(m.migrations)
	if err != nil {
		return nil, err
	}
	var applied []string
	err = m.locked(ctx, func(conn *sql.Conn) error {
		done, err := m.history(ctx, conn, m.schemaTable)
		if err != nil {
			return err
		}
		for _, s := range steps {
			if _, ok := done[s.version]; ok {
				continue
			}
			record := fmt.Sprintf(`insert into %s (version, applied_at) values ($1, $2)`, m.schemaTable)
			if err := m.run(ctx, conn, m.migrations, s.up, record, s.version, m.now()); err != nil {
				return fmt.Errorf("apply %s: %w", s.version, err)
			}
			applied = append(applied, s.version)
		}
		return nil
	})
	return applied, err
}

// Down reverts the highest applied version and returns it.
func (m *Manager) Down(ctx context.Context) (string, error) {
	steps, err := loadMigrations(m.migrations)
	if err != nil {
		return "", err
	}
	var reverted string
	err = m.locked(ctx, func(conn *sql.Conn) error {
		done, err := m.history(ctx, conn, m.schemaTable)
		if err != nil {
			return err
		}
		for i := len(steps) - 1; i >= 0; i-- {
			s := steps[i]
			if _, ok := done[s.version]; !ok {
				continue
			}
			if s.down == "" {
				return fmt.Errorf("migrate: %s has no %s file", s.version, downSuffix)
			}
			forget := fmt.Sprintf(`delete from %s where version = $1`, m.schemaTable)
			if err := m.run(ctx, conn, m.migrations, s.down, forget, s.version); err != nil {
				return fmt.Errorf("revert %s: %w", s.version, err)
			}
			reverted = s.version
			return nil
		}
		if len(done) > 0 {
			return errors.New("migrate: applied versions are not in the migration set")
		}
		return ErrNothingApplied
	})
	return reverted, err
}

// Status lists every known migration with its applied time, if any.
func (m *Manager) Status(ctx context.Context) ([]State, error) {
	steps, err := loadMigrations(m.migrations)
	if err != nil {
		return nil, err
	}
	var out []State
	err = m.locked(ctx, func(conn *sql.Conn) error {
		done, err := m.history(ctx, conn, m.schemaTable)
		if err != nil {
			return err
		}
		for _, s := range steps {
			out = append(out, State{Version: s.version, AppliedAt: done[s.version]})
		}
		return nil
	})
	return out, err
}

// Seed runs seed files not yet recorded and returns their names. Seeds have no
// down direction.
func (m *Manager) Seed(ctx context.Context) ([]string, error) {
	if m.seeds == nil {
		return nil, nil
	}
	names, err := fs.Glob(m.seeds, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	var ran []string
	err = m.locked(ctx, func(conn *sql.Conn) error {
		done, err := m.history(ctx, conn, m.seedTable)
		if err != nil {
			return err
		}
		for _, name := range names {
			if _, ok := done[name]; ok {
				continue
			}
			record := fmt.Sprintf(`insert into %s (version, applied_at) values ($1, $2)`, m.seedTable)
			if err := m.run(ctx, conn, m.seeds, name, record, name, m.now()); err != nil {
				return fmt.Errorf("seed %s: %w", name, err)
			}
			ran = append(ran, name)
		}
		return nil
	})
	return ran, err
}

// locked pins one connection, takes the advisory lock on it and makes sure the
// history tables exist before calling fn.
func (m *Manager) locked(ctx context.Context, fn func(*sql.Conn) error) (err error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `select pg_advisory_lock($1)`, lockKey); err != nil {
		return fmt.Errorf("migrate: lock: %w", err)
	}
	defer func() {
		if _, uerr := conn.ExecContext(context.WithoutCancel(ctx), `select pg_advisory_unlock($1)`, lockKey); uerr != nil && err == nil {
			err = fmt.Errorf("migrate: unlock: %w", uerr)
		}
	}()

	for _, table := range []string{m.schemaTable, m.seedTable} {
		ddl := fmt.Sprintf(`create table if not exists %s (version text primary key, applied_at timestamptz not null)`, table)
		if _, err := conn.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return fn(conn)
}

func (m *Manager) history(ctx context.Context, conn *sql.Conn, table string) (map[string]time.Time, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`select version, applied_at from %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	done := make(map[string]time.Time)
	for rows.Next() {
		var (
			version string
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		done[version] = at
	}
	return done, rows.Err()
}

// run executes every statement of file and then the bookkeeping statement in a
// single transaction.
func (m *Manager) run(ctx context.Context, conn *sql.Conn, fsys fs.FS, file, bookkeeping string, args ...any) error {
	body, err := fs.ReadFile(fsys, file)
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range splitStatements(string(body)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return err
	}
	return tx.Commit()
}

type migration struct {
	version string
	up      string
	down    string
}

// loadMigrations pairs NNNN_name.up.sql with its optional .down.sql sibling at
// the root of fsys, sorted by version.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("migrate: read migrations: %w", err)
	}
	byVersion := make(map[string]*migration)
	get := func(version string) *migration {
		if mg, ok := byVersion[version]; ok {
			return mg
		}
		mg := &migration{version: version}
		byVersion[version] = mg
		return mg
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, upSuffix):
			get(strings.TrimSuffix(name, upSuffix)).up = name
		case strings.HasSuffix(name, downSuffix):
			get(strings.TrimSuffix(name, downSuffix)).down = name
		}
	}

	out := make([]migration, 0, len(byVersion))
	for _, mg := range byVersion {
		if mg.up == "" {
			return nil, fmt.Errorf("migrate: %s has no matching %s file", mg.down, upSuffix)
		}
		out = append(out, *mg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// splitStatements cuts a script at top-level semicolons. Single-quoted strings
// and -- line comments are skipped over; empty statements are dropped.
func splitStatements(script string) []string {
	var (
		out   []string
		start int
	)
	emit := func(end int) {
		stmt := strings.TrimSpace(script[start:end])
		if body := strings.TrimSuffix(stmt, ";"); strings.TrimSpace(body) != "" && !onlyComments(body) {
			out = append(out, stmt)
		}
	}
	for i := 0; i < len(script); i++ {
		switch script[i] {
		case '\'':
			// '' inside a literal is an escaped quote, which the loop
			// handles as close-then-reopen.
			j := strings.IndexByte(script[i+1:], '\'')
			if j < 0 {
				i = len(script)
				continue
			}
			i += j + 1
		case '-':
			if i+1 < len(script) && script[i+1] == '-' {
				j := strings.IndexByte(script[i:], '\n')
				if j < 0 {
					i = len(script)
					continue
				}
				i += j
			}
		case ';':
			emit(i + 1)
			start = i + 1
		}
	}
	emit(len(script))
	return out
}

func onlyComments(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
