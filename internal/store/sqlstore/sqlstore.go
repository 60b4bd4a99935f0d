// Package sqlstore is the PostgreSQL-backed half of the Persistence Layer. It maps each
// domain resource onto per-entity tables (peer_descriptor, network_interface_descriptor,
// network_interface_kind_can, device_descriptor, executor_descriptor,
// executor_kind_container, executor_kind_executable, cluster_configuration,
// cluster_deployment), each table mapped via
// sqlx struct tags.
package sqlstore

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// DB wraps a *sqlx.DB opened against Postgres. The zero value is not usable; construct with
// Open.
type DB struct {
	*sqlx.DB
}

// Open connects to Postgres and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore: connecting to postgres")
	}
	db := &DB{conn}
	if err := db.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "sqlstore: applying schema statement %q", firstLine(stmt))
		}
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// withTx runs fn in a transaction, committing on success and rolling back on any error or
// panic.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlstore: beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

// ErrNotFound aliases sql.ErrNoRows. The Get implementations report a missing row as ok=false
// with a nil error, and Remove does not report a missing row at all.
var ErrNotFound = sql.ErrNoRows

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS peer_descriptor (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		location TEXT,
		bridge_name TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS network_interface_descriptor (
		id UUID PRIMARY KEY,
		peer_id UUID NOT NULL REFERENCES peer_descriptor(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		kind TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS network_interface_kind_can (
		interface_id UUID PRIMARY KEY REFERENCES network_interface_descriptor(id) ON DELETE CASCADE,
		bitrate INTEGER NOT NULL,
		sample_point REAL NOT NULL,
		fd BOOLEAN NOT NULL,
		data_bitrate INTEGER NOT NULL,
		data_sample_point REAL NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS device_descriptor (
		id UUID PRIMARY KEY,
		peer_id UUID NOT NULL REFERENCES peer_descriptor(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		location TEXT NOT NULL,
		interface_id UUID NOT NULL REFERENCES network_interface_descriptor(id),
		tags TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS executor_descriptor (
		id UUID PRIMARY KEY,
		peer_id UUID NOT NULL REFERENCES peer_descriptor(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		results_url TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS executor_kind_container (
		executor_id UUID PRIMARY KEY REFERENCES executor_descriptor(id) ON DELETE CASCADE,
		engine TEXT NOT NULL,
		name TEXT NOT NULL,
		image TEXT NOT NULL,
		volumes TEXT,
		devices TEXT,
		envs TEXT,
		ports TEXT,
		command TEXT,
		args TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS executor_kind_executable (
		executor_id UUID PRIMARY KEY REFERENCES executor_descriptor(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		args TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS cluster_configuration (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		leader_peer_id UUID NOT NULL,
		device_ids TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cluster_deployment (
		id UUID PRIMARY KEY
	)`,
}

// joinStrings is a tiny helper used by the resource codecs in peer.go and cluster.go to store string slices as a
// single delimited TEXT column (tags, volumes, args, ...); lossless for values that do not
// themselves contain the separator, which holds for every domain use here (interface names,
// image refs, CLI args).
func joinStrings(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += "\x1f"
		}
		out += s
	}
	return out
}

// joinEnvs flattens an env map into sorted "key=value" entries so the column round-trips
// deterministically.
func joinEnvs(envs map[string]string) string {
	if len(envs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(envs))
	for k := range envs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+envs[k])
	}
	return joinStrings(pairs)
}

func splitEnvs(s string) map[string]string {
	pairs := splitStrings(s)
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if i := strings.IndexByte(p, '='); i >= 0 {
			out[p[:i]] = p[i+1:]
		}
	}
	return out
}

func splitStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\x1f' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
