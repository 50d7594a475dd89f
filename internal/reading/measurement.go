package reading

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Heart Rate Measurement (0x2A37) flag bits
const (
	flagUint16Value      = 0x01
	flagContactDetected  = 0x02
	flagContactSupported = 0x04
	flagEnergyExpended   = 0x08
	flagRRIntervals      = 0x10
)

// Measurement is a decoded Heart Rate Measurement characteristic value
type Measurement struct {
	BPM              uint16
	Contact          bool
	ContactSupported bool
	Energy           int // kJ, -1 when absent
	RR               []time.Duration
}

// DecodeMeasurement parses the Heart Rate Measurement flag-byte format.
// A sensor that supports contact detection but reports no contact yields ErrNoContact.
func DecodeMeasurement(data []byte) (Measurement, error) {
	if len(data) < 2 {
		return Measurement{}, fmt.Errorf("%w: measurement needs at least 2 bytes, got %d", ErrShortPayload, len(data))
	}

	flags := data[0]
	m := Measurement{
		Contact:          flags&(flagContactDetected|flagContactSupported) == flagContactDetected|flagContactSupported,
		ContactSupported: flags&flagContactSupported != 0,
		Energy:           -1,
	}
	if m.ContactSupported && !m.Contact {
		return m, ErrNoContact
	}

	offset := 1
	if flags&flagUint16Value != 0 {
		if len(data) < offset+2 {
			return m, fmt.Errorf("%w: uint16 heart rate truncated", ErrShortPayload)
		}
		m.BPM = binary.LittleEndian.Uint16(data[offset:])
		offset += 2
	} else {
		m.BPM = uint16(data[offset])
		offset++
	}

	if flags&flagEnergyExpended != 0 {
		if len(data) < offset+2 {
			return m, fmt.Errorf("%w: energy expended truncated", ErrShortPayload)
		}
		m.Energy = int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
	}

	if flags&flagRRIntervals != 0 {
		rr := data[offset:]
		m.RR = make([]time.Duration, 0, len(rr)/2)
		for i := 0; i+1 < len(rr); i += 2 {
			// RR intervals are in units of 1/1024 s
			m.RR = append(m.RR, time.Duration(binary.LittleEndian.Uint16(rr[i:]))*time.Second/1024)
		}
	}

	return m, nil
}

// Decoder names accepted by configuration
const (
	DecoderUintLE      = "uint-le"
	DecoderMeasurement = "measurement"
)

// DecodeFunc turns a raw characteristic payload into a Reading
type DecodeFunc func(data []byte) (Reading, error)

// NewDecoder returns the DecodeFunc registered under name
func NewDecoder(name string, width int) (DecodeFunc, error) {
	switch name {
	case "", DecoderUintLE:
		return func(data []byte) (Reading, error) {
			return Decode(data, width)
		}, nil
	case DecoderMeasurement:
		return func(data []byte) (Reading, error) {
			m, err := DecodeMeasurement(data)
			if err != nil {
				return 0, err
			}
			return Reading(m.BPM), nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q (must be %s or %s)", ErrUnknownFormat, name, DecoderUintLE, DecoderMeasurement)
	}
}
