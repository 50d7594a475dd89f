package main

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/hrmon/internal/testutils"
	_ "modernc.org/sqlite"
)

// TestDeviceAddress identifies the mocked sensor
const TestDeviceAddress = "00:00:00:00:00:01"

// CommandTestSuite extends MockBLEPeripheralSuite with command testing utilities.
// All cmd/hrmon test suites should embed this instead of MockBLEPeripheralSuite.
type CommandTestSuite struct {
	testutils.MockBLEPeripheralSuite

	Stderr syncBuffer
}

// SetupTest isolates each test from the .env and flag state of the previous one
func (s *CommandTestSuite) SetupTest() {
	s.T().Chdir(s.T().TempDir())
	s.T().Setenv("HRMON_STORAGE_DSN", "")
	s.T().Setenv("HRMON_INFLUX_TOKEN", "")
	resetFlags(rootCmd)
	s.Stderr.Reset()
	s.MockBLEPeripheralSuite.SetupTest()
}

// ExecuteCommand runs the root command with args and returns stdout
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	var out syncBuffer
	err := s.execute(context.Background(), &out, strings.NewReader(""), args...)
	return out.String(), err
}

// ExecuteCommandContext runs the root command with ctx and input, writing stdout to out
func (s *CommandTestSuite) ExecuteCommandContext(ctx context.Context, out io.Writer, in io.Reader, args ...string) error {
	return s.execute(ctx, out, in, args...)
}

func (s *CommandTestSuite) execute(ctx context.Context, out io.Writer, in io.Reader, args ...string) error {
	rootCmd.SetOut(out)
	rootCmd.SetErr(&s.Stderr)
	rootCmd.SetIn(in)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
	}()
	return rootCmd.ExecuteContext(ctx)
}

// DBPath returns a fresh sqlite file path in the test temp dir
func (s *CommandTestSuite) DBPath() string {
	return filepath.Join(s.T().TempDir(), "hrmon.db")
}

// StoredRows reads back (value, anomaly, device) rows from a sqlite file
func (s *CommandTestSuite) StoredRows(path string) []storedRow {
	db, err := sql.Open("sqlite", path)
	s.Require().NoError(err)
	defer db.Close()

	rows, err := db.Query("SELECT value, anomaly, device FROM heart_rate ORDER BY id")
	s.Require().NoError(err, "heart_rate table MUST exist")
	defer rows.Close()

	var result []storedRow
	for rows.Next() {
		var r storedRow
		s.Require().NoError(rows.Scan(&r.Value, &r.Anomaly, &r.Device))
		result = append(result, r)
	}
	s.Require().NoError(rows.Err())
	return result
}

type storedRow struct {
	Value   int64
	Anomaly bool
	Device  string
}

// resetFlags restores every flag of cmd and its subcommands to its default
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a polling test
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}
