package migrations

import (
	"strings"
	"testing"

	"github.com/ehr/omopexport/internal/platform/db"
)

func TestFS_LoadsInOrder(t *testing.T) {
	migs, err := db.NewFSMigrator(nil, FS).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	want := []string{"001_source.sql", "002_export_state.sql", "003_export_queue.sql"}
	if len(migs) != len(want) {
		t.Fatalf("expected %d migrations, got %d", len(want), len(migs))
	}
	for i, m := range migs {
		if m.Version != i+1 || m.Name != want[i] {
			t.Errorf("migration %d: got version %d name %s", i, m.Version, m.Name)
		}
		if strings.TrimSpace(m.SQL) == "" {
			t.Errorf("migration %s is empty", m.Name)
		}
	}
}

func TestFS_ExportStateTables(t *testing.T) {
	migs, _ := db.NewFSMigrator(nil, FS).LoadMigrations()
	all := ""
	for _, m := range migs {
		all += m.SQL
	}
	for _, table := range []string{"omop_export_hwm", "omop_export_job", "omop_export_queue", "person_id_seq", "consents"} {
		if !strings.Contains(all, table) {
			t.Errorf("expected %s to be created", table)
		}
	}
}
