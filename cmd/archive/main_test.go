package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/archive-engine/archive"
	"github.com/warp/archive-engine/config"
	"github.com/warp/archive-engine/workbook"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	mem, err := openStore(ctx, config.StoreConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	assert.NoError(t, mem.Ping(ctx))
	assert.NoError(t, mem.Close())

	lite, err := openStore(ctx, config.StoreConfig{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "a.db")})
	require.NoError(t, err)
	assert.NoError(t, lite.Ping(ctx))
	assert.NoError(t, lite.Close())

	_, err = openStore(ctx, config.StoreConfig{Driver: "mysql"})
	assert.Error(t, err)
}

func TestTemplateIsIngestable(t *testing.T) {
	// GIVEN: A freshly written template
	path := filepath.Join(t.TempDir(), "template.xlsx")
	require.NoError(t, execute(context.Background(), &app{}, []string{"template", path}))

	// WHEN: Decoding it
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	wb, err := workbook.Decode(path, f)
	require.NoError(t, err)

	// THEN: The header is found and every role is mapped
	loc, err := archive.LocateHeader(wb)
	require.NoError(t, err)
	cols, err := archive.MapColumns(wb.Sheets[loc.SheetIndex].Rows[loc.Row])
	require.NoError(t, err)
	for _, role := range archive.Roles {
		_, ok := cols.Index(role)
		assert.True(t, ok, "%s column", role)
	}
}

func TestIngestAndAssignCommands(t *testing.T) {
	// GIVEN: An in-memory store selected by environment
	chdir(t, t.TempDir())
	t.Setenv("ARCHIVE_STORE_DRIVER", "memory")
	t.Setenv("ARCHIVE_LOG_LEVEL", "error")

	csvPath := filepath.Join(t.TempDir(), "batch.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Agreement,Box\nA-1,DOK1\n"), 0o600))

	// WHEN: Ingesting, opening a box and assigning in one process
	ctx := withApp(context.Background(), &app{})
	rootCmd.SetArgs([]string{"ingest", csvPath})
	require.NoError(t, rootCmd.ExecuteContext(ctx))
	cli := appFrom(ctx)
	t.Cleanup(cli.close)
	engine := cli.engine

	_, err := engine.AllocateNextBox(ctx, "DOK", "dok-1")
	require.NoError(t, err)

	// Each invocation opens a fresh store, so run assign against the
	// engine the ingest left behind.
	assignCmd.SetContext(ctx)
	err = assignCmd.RunE(assignCmd, []string{"A-1"})
	require.Error(t, err, "box type flag not set")

	flagAssignBoxType = "DOK"
	t.Cleanup(func() { flagAssignBoxType = "" })
	require.NoError(t, assignCmd.RunE(assignCmd, []string{"A-1"}))

	// THEN: The agreement is archived into the open box
	a, err := engine.GetAgreement(context.Background(), "A-1")
	require.NoError(t, err)
	assert.Equal(t, "DOK1", a.AssignedBoxName)
	assert.Equal(t, "dok-1", a.AssignedDokID)
}

func TestExecute_ClosesStoreWhenCommandFails(t *testing.T) {
	// GIVEN: A SQLite store and an assignment that cannot succeed
	chdir(t, t.TempDir())
	t.Setenv("ARCHIVE_STORE_DRIVER", "sqlite")
	t.Setenv("ARCHIVE_STORE_DSN", filepath.Join(t.TempDir(), "archive.db"))
	t.Setenv("ARCHIVE_LOG_LEVEL", "error")
	t.Cleanup(func() { flagAssignBoxType, flagAssignBoxName, flagAssignDokID = "", "", "" })

	// WHEN: The command returns an error
	cli := &app{}
	err := execute(context.Background(), cli, []string{"assign", "A-404", "--box-type", "DOK", "--box-name", "DOK1", "--dok-id", "dok-1"})
	require.Error(t, err)

	// THEN: The store was still closed
	require.NotNil(t, cli.store)
	assert.Error(t, cli.store.Ping(context.Background()))
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
