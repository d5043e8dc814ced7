package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64          `json:"event_id"`
	Timestamp time.Time      `json:"ts"`
	Level     string         `json:"level"`
	Event     string         `json:"event"`
	Message   *string        `json:"msg,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	RunID     *string        `json:"run_id,omitempty"`
}

// Client stores run events and key/value documents in Postgres.
type Client struct {
	db *sql.DB
}

// ConnString builds a lib/pq connection string from the PG* environment.
func ConnString() string {
	host := getEnv("PGHOST", "127.0.0.1")
	port := getEnv("PGPORT", "5432")
	user := getEnv("PGUSER", "curaflow")
	dbname := getEnv("PGDATABASE", "curaflow")
	sslmode := getEnv("PGSSLMODE", "disable")
	password := os.Getenv("PGPASSWORD")

	if password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode)
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		host, port, user, dbname, sslmode)
}

// New connects using the PG* environment and creates the tables.
func New(ctx context.Context) (*Client, error) {
	db, err := sql.Open("postgres", ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{db: db}
	if err := client.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return client, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

const schema = `
	CREATE TABLE IF NOT EXISTS run_events (
		event_id BIGSERIAL PRIMARY KEY,
		ts       TIMESTAMPTZ NOT NULL,
		level    TEXT NOT NULL,
		event    TEXT NOT NULL,
		msg      TEXT,
		fields   JSONB,
		run_id   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_run_events_ts ON run_events(ts DESC);
	CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id);

	CREATE TABLE IF NOT EXISTS kv_store (
		namespace  TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (namespace, key)
	);
`

func (c *Client) createTables(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// Append inserts an event into run_events.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]any, runID string) error {
	var fieldsJSON []byte
	if fields != nil {
		var err error
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	query := `
		INSERT INTO run_events (ts, level, event, msg, fields, run_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := c.db.Exec(query, ts, level, event, nullable(msg), fieldsJSON, nullable(runID))
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Query returns the last limit events, newest first. A non-empty runID
// restricts the result to that run.
func (c *Client) Query(ctx context.Context, runID string, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT event_id, ts, level, event, msg, fields, run_id
		FROM run_events
		WHERE ($1 = '' OR run_id = $1)
		ORDER BY ts DESC, event_id DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, query, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, run sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &run); err != nil {
			return nil, err
		}
		if msg.Valid {
			e.Message = &msg.String
		}
		if run.Valid {
			e.RunID = &run.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Get returns the value stored under namespace/key.
func (c *Client) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	var value []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM kv_store WHERE namespace = $1 AND key = $2`,
		namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set upserts namespace/key.
func (c *Client) Set(ctx context.Context, namespace, key string, value []byte) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO kv_store (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, namespace, key, value)
	return err
}

// Delete removes namespace/key. Missing keys are not an error.
func (c *Client) Delete(ctx context.Context, namespace, key string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM kv_store WHERE namespace = $1 AND key = $2`, namespace, key)
	return err
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
