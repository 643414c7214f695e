package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps compare chronologically as
// text.
const timeLayout = "2006-01-02 15:04:05.000"

// defaultClaimTTL is how long a claim is honored without MarkDone or Release.
// Qualification runs minutes; a claim older than this belongs to a crashed
// run and the pending sweep must be able to take it over.
const defaultClaimTTL = 30 * time.Minute

// SQLite is the durable Ledger used by the webhook server. WAL mode lets the
// sweep and the request handlers read concurrently. Only done is permanent:
// stale claims are taken over by the next TryClaim, so a deal that crashed
// mid-processing stays retryable across restarts.
type SQLite struct {
	db       *sql.DB
	claimTTL time.Duration
}

// SQLiteOption configures the SQLite ledger.
type SQLiteOption func(*SQLite)

// WithClaimTTL overrides how long claims are honored before takeover.
func WithClaimTTL(d time.Duration) SQLiteOption {
	return func(s *SQLite) { s.claimTTL = d }
}

// NewSQLite opens (and migrates) a ledger database at the given path.
func NewSQLite(dsn string, opts ...SQLiteOption) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "ledger: exec %s", pragma)
		}
	}

	const migration = `
CREATE TABLE IF NOT EXISTS processed_deals (
	deal_id    TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	claimed_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_processed_deals_state ON processed_deals(state);
`
	if _, err := db.Exec(migration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "ledger: migrate")
	}

	s := &SQLite{db: db, claimTTL: defaultClaimTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SQLite) TryClaim(ctx context.Context, dealID string) (bool, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-s.claimTTL)
	// Fresh rows insert; claims past the TTL are taken over. Done rows never
	// match the WHERE clause, so done stays terminal.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_deals (deal_id, state, claimed_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(deal_id) DO UPDATE
		 SET claimed_at = excluded.claimed_at, updated_at = excluded.updated_at
		 WHERE processed_deals.state = ? AND processed_deals.claimed_at <= ?`,
		dealID, stateClaimed, now.Format(timeLayout), now.Format(timeLayout),
		stateClaimed, cutoff.Format(timeLayout),
	)
	if err != nil {
		return false, eris.Wrapf(err, "ledger: claim %s", dealID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "ledger: rows affected")
	}
	return n > 0, nil
}

func (s *SQLite) Release(ctx context.Context, dealID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_deals WHERE deal_id = ? AND state = ?`,
		dealID, stateClaimed,
	)
	return eris.Wrapf(err, "ledger: release %s", dealID)
}

func (s *SQLite) MarkDone(ctx context.Context, dealID string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_deals (deal_id, state, claimed_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(deal_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		dealID, stateDone, now.Format(timeLayout), now.Format(timeLayout),
	)
	return eris.Wrapf(err, "ledger: mark done %s", dealID)
}

func (s *SQLite) Done(ctx context.Context, dealID string) (bool, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM processed_deals WHERE deal_id = ?`, dealID,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "ledger: lookup %s", dealID)
	}
	return state == stateDone, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
