// Package dbtest opens throwaway sqlite databases carrying the support schema.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/supportdesk-backend/pkg/db"
)

// The postgres migrations use enum types and partial indexes; this is the
// sqlite equivalent of the same tables.
var schema = []string{
	`CREATE TABLE complaints (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		description TEXT NOT NULL,
		requires_live_chat BOOLEAN NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		assigned_to TEXT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		resolved_at DATETIME NULL,
		closed_at DATETIME NULL,
		CHECK ((status IN ('assigned', 'in-progress')) = (assigned_to IS NOT NULL))
	)`,
	`CREATE TABLE support_agents (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		is_online BOOLEAN NOT NULL DEFAULT 0,
		connection_id TEXT NULL,
		last_active_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE agent_active_complaints (
		agent_id TEXT NOT NULL,
		complaint_id TEXT NOT NULL,
		requires_live_chat BOOLEAN NOT NULL DEFAULT 0,
		assigned_at DATETIME NOT NULL,
		PRIMARY KEY (agent_id, complaint_id)
	)`,
	`CREATE UNIQUE INDEX ux_agent_active_complaints_complaint ON agent_active_complaints (complaint_id)`,
	`CREATE UNIQUE INDEX ux_agent_active_complaints_live_chat ON agent_active_complaints (agent_id) WHERE requires_live_chat`,
	`CREATE TABLE complaint_messages (
		id TEXT PRIMARY KEY,
		complaint_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		encrypted_content TEXT NOT NULL,
		iv TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE service_responses (
		id TEXT PRIMARY KEY,
		service_id TEXT NOT NULL,
		complaint_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		recorded_at DATETIME NOT NULL
	)`,
	`CREATE TABLE orders (
		order_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		published_at DATETIME NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NULL
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	)`,
}

// Open returns a client backed by a private in-memory database that lives
// for the duration of the test.
func Open(t testing.TB) *db.Client {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_fk=1", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db.Wrap(conn)
}
