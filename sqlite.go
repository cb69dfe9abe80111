// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/go-kit/kit/log"
	kitprom "github.com/go-kit/kit/metrics/prometheus"
	stdprom "github.com/prometheus/client_golang/prometheus"
)

var (
	// migrations holds all our SQL migrations to be done (in order)
	migrations = []string{
		`create table if not exists accounts(account_id primary key, login not null, email not null, first_name, last_name, password_hash not null, lang_key, activated boolean not null default 0, activation_key, reset_key, reset_date timestamp, created_at timestamp);`,
		`create unique index if not exists accounts_login_idx on accounts (login);`,
		`create unique index if not exists accounts_email_idx on accounts (email);`,
		`create table if not exists roles(name primary key);`,
		`insert or ignore into roles (name) values ('ROLE_USER'), ('ROLE_ADMIN');`,
		`create table if not exists account_roles(account_id not null, role_name not null references roles(name), primary key (account_id, role_name));`,
	}

	// Metrics
	connections = kitprom.NewGaugeFrom(stdprom.GaugeOpts{
		Name: "sqlite_connections",
		Help: "How many sqlite connections and what status they're in.",
	}, []string{"state"})
)

type promMetricCollector struct {
	interval time.Duration
	shutdown chan struct{}
}

func (p *promMetricCollector) run(db *sql.DB) {
	if db == nil {
		return
	}

	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		stats := db.Stats()
		connections.With("state", "idle").Set(float64(stats.Idle))
		connections.With("state", "inuse").Set(float64(stats.InUse))
		connections.With("state", "open").Set(float64(stats.OpenConnections))

		select {
		case <-t.C:
		case <-p.shutdown:
			return
		}
	}
}

func (p *promMetricCollector) stop() {
	close(p.shutdown)
}

func getSqlitePath() string {
	path := os.Getenv("SQLITE_DB_PATH")
	if path == "" || strings.Contains(path, "..") {
		// set default if empty or trying to escape
		// don't filepath.ABS to avoid full-fs reads
		path = "accounts.db"
	}
	return path
}

func createConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		err = fmt.Errorf("problem opening sqlite3 file: %v", err)
		logger.Log("sqlite", err)
		return nil, err
	}
	return db, nil
}

// migrate runs our database migrations (defined at the top of this file)
// over a sqlite database.
// To configure where on disk the sqlite db is set SQLITE_DB_PATH.
//
// https://github.com/mattn/go-sqlite3/blob/master/_example/simple/simple.go
func migrate(logger log.Logger, db *sql.DB) error {
	logger.Log("sqlite", "starting migrations")
	for i := range migrations {
		row := migrations[i]
		res, err := db.Exec(row)
		if err != nil {
			return fmt.Errorf("migration #%d [%s...] had problem: %v", i, snippet(row), err)
		}
		n, err := res.RowsAffected()
		if err == nil {
			logger.Log("sqlite", fmt.Sprintf("migration #%d [%s...] changed %d rows", i, snippet(row), n))
		}
	}
	logger.Log("sqlite", "finished migrations")
	return nil
}

func snippet(query string) string {
	if len(query) > 40 {
		return query[:40]
	}
	return query
}

// sqliteAccountRepository relies on the unique indexes on accounts.login
// and accounts.email to reject duplicates.
type sqliteAccountRepository struct {
	db *sql.DB
}

const accountColumns = `account_id, login, email, first_name, last_name, password_hash, lang_key, activated, activation_key, reset_key, reset_date, created_at`

func (r *sqliteAccountRepository) lookupByLogin(ctx context.Context, login string) (*Account, error) {
	return r.lookupBy(ctx, "login", login)
}

func (r *sqliteAccountRepository) lookupByEmail(ctx context.Context, email string) (*Account, error) {
	return r.lookupBy(ctx, "email", email)
}

func (r *sqliteAccountRepository) lookupByActivationKey(ctx context.Context, key string) (*Account, error) {
	return r.lookupBy(ctx, "activation_key", key)
}

func (r *sqliteAccountRepository) lookupByResetKey(ctx context.Context, key string) (*Account, error) {
	return r.lookupBy(ctx, "reset_key", key)
}

// lookupBy is only called with column names from this file.
func (r *sqliteAccountRepository) lookupBy(ctx context.Context, column, value string) (*Account, error) {
	if value == "" {
		return nil, errAccountNotFound
	}
	query := fmt.Sprintf(`select %s from accounts where %s = ? limit 1;`, accountColumns, column)

	var (
		acct                            Account
		first, last, lang, actKey, rKey sql.NullString
		resetDate                       sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&acct.ID, &acct.Login, &acct.Email, &first, &last, &acct.PasswordHash, &lang,
		&acct.Activated, &actKey, &rKey, &resetDate, &acct.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errAccountNotFound
		}
		return nil, fmt.Errorf("problem reading account by %s: %v", column, err)
	}
	acct.FirstName, acct.LastName, acct.LangKey = first.String, last.String, lang.String
	acct.ActivationKey, acct.ResetKey = actKey.String, rKey.String
	if resetDate.Valid {
		acct.ResetDate = resetDate.Time
	}

	roles, err := r.lookupRoles(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	acct.Roles = roles
	return &acct, nil
}

func (r *sqliteAccountRepository) lookupRoles(ctx context.Context, accountID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `select role_name from account_roles where account_id = ? order by role_name;`, accountID)
	if err != nil {
		return nil, fmt.Errorf("problem reading roles: %v", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("problem scanning role: %v", err)
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

func (r *sqliteAccountRepository) create(ctx context.Context, acct *Account) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("problem starting transaction: %v", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`insert into accounts (%s) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`, accountColumns)
	_, err = tx.ExecContext(ctx, query,
		acct.ID, acct.Login, acct.Email, acct.FirstName, acct.LastName, acct.PasswordHash, acct.LangKey,
		acct.Activated, nullString(acct.ActivationKey), nullString(acct.ResetKey), nullTime(acct.ResetDate), acct.CreatedAt,
	)
	if err != nil {
		return translateConstraint(err, acct)
	}
	for _, role := range acct.Roles {
		if _, err := tx.ExecContext(ctx, `insert into account_roles (account_id, role_name) values (?, ?);`, acct.ID, role); err != nil {
			return fmt.Errorf("problem granting %s: %v", role, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return translateConstraint(err, acct)
	}
	return nil
}

func (r *sqliteAccountRepository) update(ctx context.Context, acct *Account) error {
	res, err := r.db.ExecContext(ctx, `update accounts set email = ?, first_name = ?, last_name = ?, password_hash = ?, lang_key = ?, activated = ?, activation_key = ?, reset_key = ?, reset_date = ? where account_id = ?;`,
		acct.Email, acct.FirstName, acct.LastName, acct.PasswordHash, acct.LangKey, acct.Activated,
		nullString(acct.ActivationKey), nullString(acct.ResetKey), nullTime(acct.ResetDate), acct.ID,
	)
	if err != nil {
		return translateConstraint(err, acct)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errAccountNotFound
	}
	return nil
}

// translateConstraint turns a unique index violation into a *ConflictError.
func translateConstraint(err error, acct *Account) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		if strings.Contains(sqliteErr.Error(), "accounts.email") {
			return &ConflictError{Field: "email", Value: acct.Email}
		}
		return &ConflictError{Field: "login", Value: acct.Login}
	}
	return fmt.Errorf("problem writing account %s: %v", acct.ID, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
