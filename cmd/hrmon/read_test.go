package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/testutils"
	"github.com/srg/hrmon/pkg/config"
	"github.com/stretchr/testify/suite"
)

type ReadTestSuite struct {
	CommandTestSuite
}

func (s *ReadTestSuite) TestReadStoresOneRecord() {
	// GOAL: one read is one connect/read/store cycle with a matching stored record
	//
	// TEST SCENARIO: sensor serves [60,0] → "60 bpm" printed → exactly one row (60, normal, address)
	db := s.DBPath()

	out, err := s.ExecuteCommand("read", TestDeviceAddress, "--storage", "sqlite", "--dsn", db)
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).Assert(out, "60 bpm")
	s.Equal([]storedRow{{Value: 60, Anomaly: false, Device: TestDeviceAddress}}, s.StoredRows(db))
	s.Equal(1, s.DialCount())
	s.Client.AssertCalled(s.T(), "CancelConnection")
}

func (s *ReadTestSuite) TestReadTwiceAppends() {
	db := s.DBPath()

	for i := 0; i < 2; i++ {
		resetFlags(rootCmd)
		_, err := s.ExecuteCommand("read", TestDeviceAddress, "--dsn", db)
		s.Require().NoError(err)
	}

	s.Len(s.StoredRows(db), 2, "each read MUST append a record")
	s.Equal(2, s.DialCount(), "each read MUST use its own connection")
}

func (s *ReadTestSuite) TestReadAnomaly() {
	s.NewPeripheral().
		WithService("180D").
		WithCharacteristic("2A37", "read", []byte{200, 0})
	db := s.DBPath()

	out, err := s.ExecuteCommand("read", TestDeviceAddress, "--dsn", db)
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).Assert(out, "200 bpm (ANOMALY)")
	s.Equal([]storedRow{{Value: 200, Anomaly: true, Device: TestDeviceAddress}}, s.StoredRows(db))
}

func (s *ReadTestSuite) TestReadJSON() {
	// GOAL: --json prints a stable, ordered object
	out, err := s.ExecuteCommand("read", TestDeviceAddress, "--storage", "memory", "--json")
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).Assert(out, `{
		"address": "00:00:00:00:00:01",
		"char": "2a37",
		"value": 60,
		"anomaly": false,
		"range": "40..180",
		"read_at": "<<PRESENCE>>"
	}`)

	keys := []string{`"address"`, `"char"`, `"value"`, `"anomaly"`, `"range"`, `"read_at"`}
	last := -1
	for _, k := range keys {
		idx := strings.Index(out, k)
		s.Greater(idx, last, "key %s MUST keep its position", k)
		last = idx
	}
}

func (s *ReadTestSuite) TestUnreachableStoresNothing() {
	// GOAL: a connection failure surfaces as a ConnectionError and inserts nothing
	s.DialError = errors.New("connection refused")
	db := s.DBPath()

	_, err := s.ExecuteCommand("read", TestDeviceAddress, "--dsn", db)
	s.Require().Error(err)
	s.ErrorIs(err, device.ErrUnreachable)
	s.Contains(FormatUserError(err), "cannot connect to "+TestDeviceAddress)
	s.Empty(s.StoredRows(db), "failed reads MUST NOT be stored")
}

func (s *ReadTestSuite) TestNoAddress() {
	_, err := s.ExecuteCommand("read", "--storage", "memory")
	s.ErrorIs(err, ErrNoAddress)
	s.Equal(0, s.DialCount())
}

func (s *ReadTestSuite) TestInvalidConfig() {
	path := filepath.Join(s.T().TempDir(), "hrmon.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("reading:\n  decoder: float\n"), 0o644))

	_, err := s.ExecuteCommand("read", TestDeviceAddress, "--config", path)
	s.ErrorIs(err, config.ErrInvalid)
	s.Equal(0, s.DialCount(), "invalid configuration MUST fail before dialing")
}

func (s *ReadTestSuite) TestInvalidLogLevel() {
	_, err := s.ExecuteCommand("read", TestDeviceAddress, "--log-level", "loud")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid log level")
}

func (s *ReadTestSuite) TestRuleScript() {
	// GOAL: a rule script overrides processing and classification
	//
	// TEST SCENARIO: process doubles, is_anomaly flags > 100 → [60,0] → 120 bpm anomalous
	script := filepath.Join(s.T().TempDir(), "rule.lua")
	s.Require().NoError(os.WriteFile(script, []byte(`
function process(v) return v * 2 end
function is_anomaly(v) return v > 100 end
`), 0o644))
	cfgPath := filepath.Join(s.T().TempDir(), "hrmon.yaml")
	s.Require().NoError(os.WriteFile(cfgPath, []byte("reading:\n  rule_script: "+script+"\nstorage:\n  driver: memory\n"), 0o644))

	out, err := s.ExecuteCommand("read", TestDeviceAddress, "--config", cfgPath, "--json")
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).Assert(out, `{
		"value": 120,
		"raw": 60,
		"anomaly": true
	}`)
}

func (s *ReadTestSuite) TestProgressOnStderr() {
	out, err := s.ExecuteCommand("read", TestDeviceAddress, "--storage", "memory")
	s.Require().NoError(err)

	s.NotContains(out, "Connecting", "progress MUST NOT reach stdout")
	s.Contains(testutils.StripANSI(s.Stderr.String()), "Reading Heart Rate Measurement (2a37) from "+TestDeviceAddress)
}

func TestReadTestSuite(t *testing.T) {
	suite.Run(t, new(ReadTestSuite))
}
