package scanner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/srg/hrmon/internal/device"
	goble "github.com/srg/hrmon/internal/device/go-ble"
	"github.com/srg/hrmon/internal/testutils"
	"github.com/srg/hrmon/scanner"
	"github.com/stretchr/testify/suite"
)

type ScannerTestSuite struct {
	testutils.MockBLEPeripheralSuite
}

func (s *ScannerTestSuite) SetupTest() {
	s.Advertisements = []blelib.Advertisement{
		testutils.NewAdvertisementBuilder().
			WithAddress("AA:BB:CC:DD:EE:FF").
			WithName("Polar H10").
			WithRSSI(-62).
			WithServices("180D", "180F").
			Build(),
		testutils.NewAdvertisementBuilder().
			WithAddress("11:22:33:44:55:66").
			WithName("Thermometer").
			WithRSSI(-40).
			WithServices("1809").
			Build(),
		testutils.NewAdvertisementBuilder().
			WithAddress("99:88:77:66:55:44").
			WithRSSI(-45).
			WithServices("0000180d-0000-1000-8000-00805f9b34fb").
			Build(),
		// second advertisement of the first sensor, closer now
		testutils.NewAdvertisementBuilder().
			WithAddress("AA:BB:CC:DD:EE:FF").
			WithRSSI(-50).
			WithServices("180D").
			Build(),
	}
	s.MockBLEPeripheralSuite.SetupTest()
}

func (s *ScannerTestSuite) TestHeartRateOnly() {
	// GOAL: by default only Heart Rate peripherals are listed, strongest first
	//
	// TEST SCENARIO: 3 peripherals, 2 with 180D (one in 128-bit form) → 2 results ordered by RSSI
	sc := scanner.NewScanner(s.Logger)
	defer sc.Close()

	found, err := sc.Scan(context.Background(), scanner.Options{Duration: time.Second}, nil)
	s.Require().NoError(err)
	s.Require().Len(found, 2)

	s.Equal("99:88:77:66:55:44", found[0].Address)
	s.Equal("AA:BB:CC:DD:EE:FF", found[1].Address)
	s.Equal(-50, found[1].RSSI, "updates MUST refresh the signal strength")
	s.Equal("Polar H10", found[1].Name, "a later advertisement without a name MUST keep it")
	s.True(found[1].HeartRate)
	s.Equal([]string{"180d"}, found[1].Services)
}

func (s *ScannerTestSuite) TestAll() {
	sc := scanner.NewScanner(s.Logger)
	defer sc.Close()

	found, err := sc.Scan(context.Background(), scanner.Options{Duration: time.Second, All: true}, nil)
	s.Require().NoError(err)
	s.Require().Len(found, 3)
	s.Equal("11:22:33:44:55:66", found[0].Address)
	s.False(found[0].HeartRate)
}

func (s *ScannerTestSuite) TestEventsAndProgress() {
	sc := scanner.NewScanner(s.Logger)
	defer sc.Close()

	var phases []string
	_, err := sc.Scan(context.Background(), scanner.Options{}, func(p string) { phases = append(phases, p) })
	s.Require().NoError(err)
	s.Equal([]string{scanner.PhaseScanning, scanner.PhaseProcessing, device.PhaseDone}, phases)

	var types []scanner.EventType
	for len(types) < 3 {
		select {
		case ev := <-sc.Events():
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			s.FailNow("events MUST be published for accepted advertisements")
		}
	}
	s.Equal([]scanner.EventType{scanner.EventNew, scanner.EventNew, scanner.EventUpdated}, types)
}

func (s *ScannerTestSuite) TestBluetoothOff() {
	goble.DeviceFactory = func(time.Duration) (blelib.Device, error) {
		return nil, errors.New("can't init hci: no devices available")
	}

	var phases []string
	_, err := scanner.NewScanner(s.Logger).Scan(context.Background(), scanner.Options{}, func(p string) { phases = append(phases, p) })
	s.ErrorIs(err, device.ErrBluetoothOff)
	s.Contains(phases, device.PhaseFailed)
}

func (s *ScannerTestSuite) TestScanFailure() {
	goble.ScanFunc = func(context.Context, blelib.Device, bool, blelib.AdvHandler) error {
		return errors.New("hci: command disallowed")
	}

	_, err := scanner.NewScanner(s.Logger).Scan(context.Background(), scanner.Options{}, nil)
	s.Require().Error(err)
	s.Contains(err.Error(), "scan failed")
}

func (s *ScannerTestSuite) TestTimeoutIsNotAnError() {
	goble.ScanFunc = func(ctx context.Context, _ blelib.Device, _ bool, _ blelib.AdvHandler) error {
		<-ctx.Done()
		return ctx.Err()
	}

	found, err := scanner.NewScanner(s.Logger).Scan(context.Background(), scanner.Options{Duration: 20 * time.Millisecond}, nil)
	s.NoError(err, "the scan window ending MUST NOT be reported as a failure")
	s.Empty(found)
}

func TestScannerTestSuite(t *testing.T) {
	suite.Run(t, new(ScannerTestSuite))
}
