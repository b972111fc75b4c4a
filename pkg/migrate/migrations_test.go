package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/angelmondragon/supportdesk-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks ...string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate dir: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDir(t *testing.T) {
	if err := migrate.ValidateDir(""); err != nil {
		t.Fatalf("validate embedded: %v", err)
	}
	fsys, err := migrate.Source("")
	if err != nil {
		t.Fatalf("embedded source: %v", err)
	}
	embeddedFiles, _ := fs.Glob(fsys, "*.sql")
	onDisk, _ := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if len(embeddedFiles) == 0 || len(embeddedFiles) != len(onDisk) {
		t.Fatalf("embedded %d files, dir has %d", len(embeddedFiles), len(onDisk))
	}
}

func TestValidateRejectsMissingDownSection(t *testing.T) {
	fsys := fstest.MapFS{
		"20260101000000_broken.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
	}
	if err := migrate.ValidateFS(fsys); err == nil {
		t.Fatal("expected missing down section error")
	}
}

func TestValidateRejectsDuplicateVersion(t *testing.T) {
	body := []byte("-- +goose Up\n-- +goose Down\n")
	fsys := fstest.MapFS{
		"20260101000000_a.sql": {Data: body},
		"20260101000000_b.sql": {Data: body},
	}
	if err := migrate.ValidateFS(fsys); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestSlug(t *testing.T) {
	if got := migrate.Slug("  Add Queue--Snapshot! "); got != "add_queue_snapshot" {
		t.Fatalf("unexpected slug %q", got)
	}
}

func TestComplaintsMigrationEnforcesAssignmentInvariant(t *testing.T) {
	content := readMigration(t, "create_complaints")
	assertContains(t, content,
		"CREATE TABLE IF NOT EXISTS complaints",
		"CONSTRAINT ck_complaints_assignment CHECK",
		"(status IN ('assigned', 'in-progress')) = (assigned_to IS NOT NULL)",
		"DROP TABLE IF EXISTS complaints",
	)
}

func TestAgentMigrationEnforcesLiveChatExclusivity(t *testing.T) {
	content := readMigration(t, "create_support_agents")
	assertContains(t, content,
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_agent_active_complaints_complaint",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_agent_active_complaints_live_chat",
		"WHERE requires_live_chat",
		"DROP TABLE IF EXISTS agent_active_complaints",
	)
}

func TestServiceResponsesAreAppendOnly(t *testing.T) {
	content := readMigration(t, "create_service_responses")
	assertContains(t, content,
		"ON UPDATE TO service_responses DO INSTEAD NOTHING",
		"ON DELETE TO service_responses DO INSTEAD NOTHING",
	)
}

func TestCreateSQLMigrationWritesGooseTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Queue Snapshot!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_queue_snapshot.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}
