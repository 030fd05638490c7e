package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Journal records what the client saw: runs, chat, realm lists and
// character lists. Times are stored as unix milliseconds.
type Journal struct {
	db *Database
}

// ChatEntry is one journaled chat line.
type ChatEntry struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Type       string    `json:"type"`
	Channel    string    `json:"channel,omitempty"`
	SenderGUID uint64    `json:"sender_guid"`
	Sender     string    `json:"sender"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// RealmRow is one realm of a journaled realm list.
type RealmRow struct {
	RealmID    uint8   `json:"realm_id"`
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	Population float32 `json:"population"`
	Characters uint8   `json:"characters"`
}

// CharacterRow is one character of a journaled character list.
type CharacterRow struct {
	GUID  uint64 `json:"guid"`
	Name  string `json:"name"`
	Level uint8  `json:"level"`
	Race  uint8  `json:"race"`
	Class uint8  `json:"class"`
	Zone  uint32 `json:"zone"`
}

// Run is one connection attempt.
type Run struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// OpenJournal opens the journal database and migrates its schema.
func OpenJournal(dbPath string) (*Journal, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	j := &Journal{db: database}
	if err := j.migrate(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			account TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS chat (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			channel TEXT NOT NULL DEFAULT '',
			sender_guid INTEGER NOT NULL DEFAULT 0,
			sender TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			received_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS realms (
			run_id TEXT NOT NULL,
			realm_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			address TEXT NOT NULL,
			population REAL NOT NULL DEFAULT 0,
			characters INTEGER NOT NULL DEFAULT 0,
			seen_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS characters (
			run_id TEXT NOT NULL,
			guid INTEGER NOT NULL,
			name TEXT NOT NULL,
			level INTEGER NOT NULL,
			race INTEGER NOT NULL,
			class INTEGER NOT NULL,
			zone INTEGER NOT NULL,
			seen_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chat_received_at ON chat(received_at);
		CREATE INDEX IF NOT EXISTS idx_chat_sender ON chat(sender);
		CREATE INDEX IF NOT EXISTS idx_realms_seen_at ON realms(seen_at);
		CREATE INDEX IF NOT EXISTS idx_characters_seen_at ON characters(seen_at);
	`
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	log.Debug().Msg("journal schema migrated")
	return nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// StartRun records the start of a connection attempt.
func (j *Journal) StartRun(ctx context.Context, runID, account string, at time.Time) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO runs (id, account, started_at) VALUES (?, ?, ?)",
		runID, account, millis(at))
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// EndRun records why a connection attempt ended.
func (j *Journal) EndRun(ctx context.Context, runID, reason string, at time.Time) error {
	_, err := j.db.ExecContext(ctx,
		"UPDATE runs SET ended_at = ?, reason = ? WHERE id = ?",
		millis(at), reason, runID)
	if err != nil {
		return fmt.Errorf("failed to record run end: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT id, account, started_at, ended_at, reason FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r              Run
			started, ended int64
		)
		if err := rows.Scan(&r.ID, &r.Account, &started, &ended, &r.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt, r.EndedAt = fromMillis(started), fromMillis(ended)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecordChat appends one chat line.
func (j *Journal) RecordChat(ctx context.Context, e ChatEntry) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO chat (run_id, type, channel, sender_guid, sender, text, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Type, e.Channel, int64(e.SenderGUID), e.Sender, e.Text, millis(e.ReceivedAt))
	if err != nil {
		return fmt.Errorf("failed to record chat: %w", err)
	}
	return nil
}

// ChatQuery filters RecentChat. Zero values match everything.
type ChatQuery struct {
	Sender string
	Since  time.Time
	Limit  int
}

// RecentChat returns chat lines newest first.
func (j *Journal) RecentChat(ctx context.Context, q ChatQuery) ([]ChatEntry, error) {
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = 100
	}
	query := `SELECT id, run_id, type, channel, sender_guid, sender, text, received_at
		FROM chat WHERE received_at >= ?`
	args := []interface{}{millis(q.Since)}
	if q.Since.IsZero() {
		args[0] = int64(0)
	}
	if q.Sender != "" {
		query += " AND sender = ? COLLATE NOCASE"
		args = append(args, q.Sender)
	}
	query += " ORDER BY received_at DESC, id DESC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat: %w", err)
	}
	defer rows.Close()

	var out []ChatEntry
	for rows.Next() {
		var (
			e    ChatEntry
			guid int64
			at   int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &e.Channel, &guid, &e.Sender, &e.Text, &at); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		e.SenderGUID = uint64(guid)
		e.ReceivedAt = fromMillis(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordRealms stores a realm list snapshot.
func (j *Journal) RecordRealms(ctx context.Context, runID string, realms []RealmRow, at time.Time) error {
	return j.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO realms (run_id, realm_id, name, address, population, characters, seen_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare realm insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range realms {
			if _, err := stmt.ExecContext(ctx, runID, r.RealmID, r.Name, r.Address, r.Population, r.Characters, millis(at)); err != nil {
				return fmt.Errorf("failed to record realm %s: %w", r.Name, err)
			}
		}
		return nil
	})
}

// RecordCharacters stores a character list snapshot.
func (j *Journal) RecordCharacters(ctx context.Context, runID string, chars []CharacterRow, at time.Time) error {
	return j.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO characters (run_id, guid, name, level, race, class, zone, seen_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare character insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range chars {
			if _, err := stmt.ExecContext(ctx, runID, int64(c.GUID), c.Name, c.Level, c.Race, c.Class, c.Zone, millis(at)); err != nil {
				return fmt.Errorf("failed to record character %s: %w", c.Name, err)
			}
		}
		return nil
	})
}

// Prune deletes everything older than before and returns the number of
// removed rows.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	err := j.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			"DELETE FROM chat WHERE received_at < ?",
			"DELETE FROM realms WHERE seen_at < ?",
			"DELETE FROM characters WHERE seen_at < ?",
			"DELETE FROM runs WHERE started_at < ? AND ended_at != 0",
		} {
			res, err := tx.ExecContext(ctx, q, millis(before))
			if err != nil {
				return fmt.Errorf("failed to prune journal: %w", err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Info().Int64("rows", total).Time("before", before).Msg("journal pruned")
	return total, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
