// Package pgstatestore provides a PostgreSQL-backed spec.StateStore using
// lib/pq. Each conversation's session state is one row holding the JSON
// document, upserted on save.
package pgstatestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/flexigpt/botdialogs-go/spec"
)

const schema = `
CREATE TABLE IF NOT EXISTS bot_session_state (
	channel_id      TEXT        NOT NULL,
	conversation_id TEXT        NOT NULL,
	user_id         TEXT        NOT NULL,
	state           JSONB       NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (channel_id, conversation_id, user_id)
)`

// Store persists session state in PostgreSQL. Use Open to connect or New to
// wrap an existing pool.
type Store struct {
	db    *sql.DB
	owned bool
}

// New wraps an existing database pool. The caller keeps ownership of the
// pool's lifecycle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn, tunes the pool, verifies the connection, and returns
// a store that owns the pool. Close releases it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pg state store: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pg state store: ping: %w", err)
	}
	return &Store{db: db, owned: true}, nil
}

// EnsureSchema creates the session-state table if it does not exist.
func (st *Store) EnsureSchema(ctx context.Context) error {
	if _, err := st.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("pg state store: ensure schema: %w", err)
	}
	return nil
}

func (st *Store) Get(ctx context.Context, key spec.StateKey) (spec.SessionState, bool, error) {
	if err := ctx.Err(); err != nil {
		return spec.SessionState{}, false, err
	}

	var b []byte
	err := st.db.QueryRowContext(ctx,
		`SELECT state FROM bot_session_state
		 WHERE channel_id = $1 AND conversation_id = $2 AND user_id = $3`,
		key.ChannelID, key.ConversationID, key.UserID,
	).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return spec.SessionState{}, false, nil
	}
	if err != nil {
		return spec.SessionState{}, false, fmt.Errorf("pg state store: get %q: %w", key, err)
	}

	var state spec.SessionState
	if err := json.Unmarshal(b, &state); err != nil {
		return spec.SessionState{}, false, fmt.Errorf("pg state store: decode %q: %w", key, err)
	}
	return state, true, nil
}

func (st *Store) Save(ctx context.Context, key spec.StateKey, state spec.SessionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("pg state store: encode %q: %w", key, err)
	}
	_, err = st.db.ExecContext(ctx,
		`INSERT INTO bot_session_state (channel_id, conversation_id, user_id, state, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (channel_id, conversation_id, user_id)
		 DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		key.ChannelID, key.ConversationID, key.UserID, b,
	)
	if err != nil {
		return fmt.Errorf("pg state store: save %q: %w", key, err)
	}
	return nil
}

func (st *Store) Delete(ctx context.Context, key spec.StateKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := st.db.ExecContext(ctx,
		`DELETE FROM bot_session_state
		 WHERE channel_id = $1 AND conversation_id = $2 AND user_id = $3`,
		key.ChannelID, key.ConversationID, key.UserID,
	)
	if err != nil {
		return fmt.Errorf("pg state store: delete %q: %w", key, err)
	}
	return nil
}

// DeleteBefore removes conversations not updated since cutoff and reports how
// many rows went away. Intended for periodic cleanup jobs.
func (st *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := st.db.ExecContext(ctx,
		`DELETE FROM bot_session_state WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pg state store: delete before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pg state store: delete before: rows affected: %w", err)
	}
	return n, nil
}

// Close closes the pool when the store owns it, i.e. it came from Open.
func (st *Store) Close() error {
	if !st.owned {
		return nil
	}
	return st.db.Close()
}
