package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	blelib "github.com/go-ble/ble"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/device"
	goble "github.com/srg/hrmon/internal/device/go-ble"
	"github.com/srg/hrmon/internal/ringchan"
)

// Scan phases reported through the progress callback
const (
	PhaseScanning   = "Scanning"
	PhaseProcessing = "Processing results"
)

// EventType marks if the peripheral was newly discovered or updated
type EventType int

const (
	EventNew EventType = iota
	EventUpdated
)

// Event is published for every accepted advertisement
type Event struct {
	Type      EventType
	Discovery Discovery
}

// Discovery is what an advertising peripheral told us about itself
type Discovery struct {
	Address     string    `json:"address"`
	Name        string    `json:"name"`
	RSSI        int       `json:"rssi"`
	Connectable bool      `json:"connectable"`
	Services    []string  `json:"services"`
	HeartRate   bool      `json:"heart_rate"` // advertises the Heart Rate service
	LastSeen    time.Time `json:"last_seen"`
}

// Options configures scanning behavior
type Options struct {
	Duration        time.Duration `default:"10s"`
	AllowDuplicates bool
	All             bool // include peripherals that do not advertise Heart Rate
}

// Scanner finds heart-rate sensors so their address can be configured
type Scanner struct {
	found  *hashmap.Map[string, *Discovery]
	events *ringchan.RingChannel[Event]
	logger *logrus.Logger
	now    func() time.Time

	mu   sync.Mutex // serializes Scan and guards opts
	opts Options
}

// NewScanner creates a new BLE scanner
func NewScanner(logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		found:  hashmap.New[string, *Discovery](),
		events: ringchan.New[Event](100),
		logger: logger,
		now:    time.Now,
	}
}

// Scan listens for advertisements for opts.Duration (or until ctx ends) and
// returns the discovered peripherals, strongest signal first.
func (s *Scanner) Scan(ctx context.Context, opts Options, progress device.ProgressCallback) ([]Discovery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defaults.SetDefaults(&opts)
	if progress == nil {
		progress = func(string) {}
	}
	s.opts = opts
	s.found = hashmap.New[string, *Discovery]()

	s.logger.WithFields(logrus.Fields{
		"duration": opts.Duration,
		"all":      opts.All,
	}).Info("Starting BLE scan...")
	progress(PhaseScanning)

	if err := goble.Scan(ctx, opts.Duration, opts.AllowDuplicates, s.handleAdvertisement, s.logger); err != nil {
		progress(device.PhaseFailed)
		return nil, err
	}

	progress(PhaseProcessing)
	result := make([]Discovery, 0, s.found.Len())
	s.found.Range(func(_ string, d *Discovery) bool {
		result = append(result, *d)
		return true
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].RSSI != result[j].RSSI {
			return result[i].RSSI > result[j].RSSI
		}
		return result[i].Address < result[j].Address
	})

	s.logger.WithField("device_count", len(result)).Info("BLE scan completed")
	progress(device.PhaseDone)
	return result, nil
}

// Events returns a read-only channel of discovery events
func (s *Scanner) Events() <-chan Event {
	return s.events.C()
}

// Close stops publishing events
func (s *Scanner) Close() {
	s.events.Close()
}

// handleAdvertisement updates an existing discovery or adds a new one
func (s *Scanner) handleAdvertisement(adv blelib.Advertisement) {
	address := adv.Addr().String()
	services := serviceUUIDs(adv)
	heartRate := false
	for _, u := range services {
		if u == device.ServiceHeartRate {
			heartRate = true
			break
		}
	}

	d, existing := s.found.Get(address)
	if !existing {
		if !heartRate && !s.opts.All {
			return
		}
		d = &Discovery{Address: address}
		s.found.Set(address, d)
	}

	if name := adv.LocalName(); name != "" {
		d.Name = name
	}
	d.RSSI = adv.RSSI()
	d.Connectable = adv.Connectable()
	d.Services = services
	d.HeartRate = heartRate
	d.LastSeen = s.now()

	event := Event{Type: EventUpdated, Discovery: *d}
	if !existing {
		event.Type = EventNew
		s.logger.WithFields(logrus.Fields{
			"device":  d.Name,
			"address": d.Address,
			"rssi":    d.RSSI,
		}).Info("Discovered new device")
	}
	s.events.Send(event)
}

func serviceUUIDs(adv blelib.Advertisement) []string {
	uuids := adv.Services()
	out := make([]string, 0, len(uuids))
	for _, u := range uuids {
		out = append(out, device.NormalizeUUID(u.String()))
	}
	return out
}

// String renders a discovery as one table row
func (d Discovery) String() string {
	name := d.Name
	if name == "" {
		name = "(unknown)"
	}
	return fmt.Sprintf("%-17s  %4d dBm  %s", d.Address, d.RSSI, name)
}
