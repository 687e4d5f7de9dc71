package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ngmaloney/disaster-terminal/internal/models"
)

// DBPath returns the path to the single shared database
func DBPath() string {
	return filepath.Join("data", "disaster-terminal.db")
}

// Open opens the database at dbPath, creating its directory and schema.
// ":memory:" is accepted for tests.
func Open(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one connection keeps :memory: databases shared and serializes writes
	db.SetMaxOpenConns(1)

	if err := EnsureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the application tables if they do not exist
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			protocol TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			subscription_arn TEXT NOT NULL,
			topic_arn TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_endpoint ON subscriptions(topic_arn, protocol, endpoint);
	`)
	if err != nil {
		return fmt.Errorf("creating subscriptions table: %w", err)
	}
	return nil
}

// Subscriptions is the local record of notification subscriptions
type Subscriptions struct {
	db *sql.DB
}

// NewSubscriptions wraps an open database
func NewSubscriptions(db *sql.DB) *Subscriptions {
	return &Subscriptions{db: db}
}

// AddSubscription records sub, replacing any earlier record for the same
// endpoint on the same topic.
func (s *Subscriptions) AddSubscription(ctx context.Context, sub models.Subscription) (int64, error) {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (protocol, endpoint, subscription_arn, topic_arn, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(topic_arn, protocol, endpoint) DO UPDATE SET
			subscription_arn = excluded.subscription_arn,
			created_at = excluded.created_at
	`, string(sub.Protocol), sub.Endpoint, sub.SubscriptionArn, sub.TopicArn, sub.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("inserting subscription: %w", err)
	}
	return res.LastInsertId()
}

// DeleteSubscription removes the record for arn. Unknown ARNs are not an error.
func (s *Subscriptions) DeleteSubscription(ctx context.Context, arn string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM subscriptions WHERE subscription_arn = ?", arn); err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	return nil
}

// ListSubscriptions returns the records for topicArn, newest first.
// An empty topicArn lists every topic.
func (s *Subscriptions) ListSubscriptions(ctx context.Context, topicArn string) ([]models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, protocol, endpoint, subscription_arn, topic_arn, created_at
		FROM subscriptions
		WHERE ? = '' OR topic_arn = ?
		ORDER BY created_at DESC, id DESC
	`, topicArn, topicArn)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]models.Subscription, 0)
	for rows.Next() {
		var sub models.Subscription
		var protocol string
		if err := rows.Scan(&sub.ID, &protocol, &sub.Endpoint, &sub.SubscriptionArn, &sub.TopicArn, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		sub.Protocol = models.SubscriptionProtocol(protocol)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
