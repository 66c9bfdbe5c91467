package auth

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/NicolasHaas/gorelay/pkg/model"
	"github.com/NicolasHaas/gorelay/pkg/rbac"
)

// Dialect selects the SQL flavor of an SQLProvider.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// SQLProvider stores accounts in a users table reached through database/sql.
type SQLProvider struct {
	dialect Dialect
	dsn     string
	seeds   []model.Account

	db *sql.DB

	// mu serializes the read-check-write sequences of Register and ChangeNick.
	mu sync.Mutex
}

// NewSQLite returns a provider backed by the SQLite file at path.
func NewSQLite(path string, seeds ...model.Account) *SQLProvider {
	return &SQLProvider{dialect: DialectSQLite, dsn: path, seeds: seeds}
}

// NewPostgres returns a provider backed by the PostgreSQL database at dsn.
func NewPostgres(dsn string, seeds ...model.Account) *SQLProvider {
	return &SQLProvider{dialect: DialectPostgres, dsn: dsn, seeds: seeds}
}

// Initialize opens the database, runs migrations and inserts missing seed accounts.
func (p *SQLProvider) Initialize(ctx context.Context) error {
	db, err := sql.Open(p.dialect.driverName(), p.dsn)
	if err != nil {
		return fmt.Errorf("auth: open DB: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("auth: ping DB: %w", err)
	}

	if p.dialect == DialectSQLite {
		// One connection so that pragmas apply everywhere and ":memory:" is a single database.
		db.SetMaxOpenConns(1)
		// Set busy timeout to avoid "database is locked" under concurrency
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return fmt.Errorf("auth: %s: %w", pragma, err)
			}
		}
	}

	p.db = db
	if err := p.migrate(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("auth: migrate: %w", err)
	}
	if err := p.seed(ctx); err != nil {
		_ = db.Close()
		return err
	}
	return nil
}

// Close closes the database connection.
func (p *SQLProvider) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *SQLProvider) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		login     TEXT    PRIMARY KEY,
		passwd    TEXT    NOT NULL,
		username  TEXT    NOT NULL,
		role      INTEGER NOT NULL DEFAULT 0,
		is_banned BOOLEAN NOT NULL DEFAULT FALSE
	)`

	if err := p.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := p.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version:    2,
			statements: []string{"CREATE INDEX IF NOT EXISTS idx_users_username ON users (username)"},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := p.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("auth: migrate v%d: %w", m.version, err)
			}
		}
		if err := p.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (p *SQLProvider) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("auth: create schema_migrations: %w", err)
	}
	var count int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("auth: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := p.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("auth: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (p *SQLProvider) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := p.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("auth: read schema version: %w", err)
	}
	return version, nil
}

func (p *SQLProvider) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := p.db.ExecContext(ctx, p.rebind("UPDATE schema_migrations SET version = ?"), version); err != nil {
		return fmt.Errorf("auth: update schema version: %w", err)
	}
	return nil
}

func (p *SQLProvider) seed(ctx context.Context) error {
	for _, acct := range p.seeds {
		if !acct.Role.Valid() {
			return fmt.Errorf("auth: seed %q: invalid role %d", acct.Login, acct.Role)
		}
		_, err := p.db.ExecContext(ctx,
			p.rebind("INSERT INTO users (login, passwd, username, role, is_banned) VALUES (?, ?, ?, ?, ?) ON CONFLICT (login) DO NOTHING"),
			acct.Login, acct.Password, acct.DisplayName, int(acct.Role), acct.Banned)
		if err != nil {
			return fmt.Errorf("auth: seed %q: %w", acct.Login, err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (p *SQLProvider) rebind(query string) string {
	if p.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ---- Accounts ----

// Authenticate checks login and password.
func (p *SQLProvider) Authenticate(ctx context.Context, login, password string) (string, error) {
	var (
		passwd, username string
		banned           bool
	)
	err := p.db.QueryRowContext(ctx, p.rebind("SELECT passwd, username, is_banned FROM users WHERE login = ?"), login).
		Scan(&passwd, &username, &banned)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("auth: authenticate: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(passwd), []byte(password)) != 1 {
		return "", ErrInvalidCredentials
	}
	if banned {
		return "", ErrAccountBanned
	}
	return username, nil
}

// Register creates a new RoleUser account inside a transaction.
func (p *SQLProvider) Register(ctx context.Context, login, password, displayName string) (string, error) {
	if err := model.ValidateRegistration(login, password, displayName); err != nil {
		return "", fmt.Errorf("auth: register: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("auth: register: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	taken, err := p.exists(ctx, tx, "login", login)
	if err != nil {
		return "", fmt.Errorf("auth: register: %w", err)
	}
	if taken {
		return "", ErrLoginTaken
	}
	taken, err = p.exists(ctx, tx, "username", displayName)
	if err != nil {
		return "", fmt.Errorf("auth: register: %w", err)
	}
	if taken {
		return "", ErrDisplayNameTaken
	}

	if _, err := tx.ExecContext(ctx,
		p.rebind("INSERT INTO users (login, passwd, username, role) VALUES (?, ?, ?, ?)"),
		login, password, displayName, int(model.RoleUser)); err != nil {
		return "", fmt.Errorf("auth: register: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("auth: register: commit: %w", err)
	}
	return displayName, nil
}

// exists reports whether any row has column equal to value. column is never user input.
func (p *SQLProvider) exists(ctx context.Context, tx *sql.Tx, column, value string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, p.rebind("SELECT COUNT(*) FROM users WHERE "+column+" = ?"), value).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PrivilegeElevation reports whether displayName belongs to an admin account.
func (p *SQLProvider) PrivilegeElevation(ctx context.Context, displayName string) (bool, error) {
	var role int
	err := p.db.QueryRowContext(ctx, p.rebind("SELECT role FROM users WHERE username = ? LIMIT 1"), displayName).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("auth: privilege elevation: %w", err)
	}
	return rbac.Elevated(model.Role(role)), nil
}

// IsBanned reports the ban flag of displayName.
func (p *SQLProvider) IsBanned(ctx context.Context, displayName string) (bool, error) {
	var banned bool
	err := p.db.QueryRowContext(ctx, p.rebind("SELECT is_banned FROM users WHERE username = ? LIMIT 1"), displayName).Scan(&banned)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("auth: is banned: %w", err)
	}
	return banned, nil
}

// Ban marks displayName as banned.
func (p *SQLProvider) Ban(ctx context.Context, displayName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.db.ExecContext(ctx, p.rebind("UPDATE users SET is_banned = ? WHERE username = ?"), true, displayName); err != nil {
		return fmt.Errorf("auth: ban: %w", err)
	}
	return nil
}

// ChangeNick renames the account shown as oldName.
func (p *SQLProvider) ChangeNick(ctx context.Context, oldName, newName string) error {
	if oldName == newName {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("auth: change nick: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	taken, err := p.exists(ctx, tx, "username", newName)
	if err != nil {
		return fmt.Errorf("auth: change nick: %w", err)
	}
	if taken {
		return ErrDisplayNameTaken
	}
	if _, err := tx.ExecContext(ctx, p.rebind("UPDATE users SET username = ? WHERE username = ?"), newName, oldName); err != nil {
		return fmt.Errorf("auth: change nick: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("auth: change nick: commit: %w", err)
	}
	return nil
}

// Accounts returns every account ordered by login.
func (p *SQLProvider) Accounts(ctx context.Context) ([]model.Account, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT login, passwd, username, role, is_banned FROM users ORDER BY login")
	if err != nil {
		return nil, fmt.Errorf("auth: list accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		var (
			a    model.Account
			role int
		)
		if err := rows.Scan(&a.Login, &a.Password, &a.DisplayName, &role, &a.Banned); err != nil {
			return nil, fmt.Errorf("auth: list accounts: %w", err)
		}
		a.Role = model.Role(role)
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auth: list accounts: %w", err)
	}
	return accounts, nil
}

var (
	_ Provider = (*SQLProvider)(nil)
	_ Lister   = (*SQLProvider)(nil)
)
