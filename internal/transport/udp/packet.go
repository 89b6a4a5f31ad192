// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"amplifier/internal/analysis"
	"amplifier/internal/health"
	"amplifier/internal/telemetry"
	"amplifier/internal/usbprio"
)

/*
Telemetry packet (BigEndian)

	+------------------+----------+------------------------------------+
	| Field            | Type     | Notes                              |
	+------------------+----------+------------------------------------+
	| Sequence         | uint32   | per sender, starts at 1            |
	| Timestamp        | int64    | snapshot time, ns since epoch      |
	| ADC count        | uint16   | N                                  |
	| N x ADC record   |          |                                    |
	|   Status         | uint8    | health.Status                      |
	|   dBFS           | float32  | combined level                     |
	|   VU L, VU R     | float32  |                                    |
	|   Peak L, Peak R | float32  |                                    |
	|   Dominant       | float32  | Hz                                 |
	|   Band count     | uint16   | B                                  |
	|   Bands          | float32  | B values in [0, 1]                 |
	| Phase offset     | float32  | microseconds                       |
	| In sync          | uint8    | 0 or 1                             |
	| USB state        | uint8    | usbprio.State                      |
	| DSP generation   | uint32   | low 32 bits                        |
	+------------------+----------+------------------------------------+
*/

// Packet is the decoded form of one telemetry datagram.
type Packet struct {
	Sequence      uint32
	Timestamp     int64
	ADCs          []ADCRecord
	PhaseOffsetUs float32
	InSync        bool
	USBState      usbprio.State
	DSPGeneration uint32
}

// ADCRecord is the per-converter part of a Packet.
type ADCRecord struct {
	Status     health.Status
	DBFS       float32
	VU         [2]float32
	Peak       [2]float32
	DominantHz float32
	Bands      []float32
}

type adcHeader struct {
	Status     uint8
	DBFS       float32
	VU         [2]float32
	Peak       [2]float32
	DominantHz float32
	BandCount  uint16
}

type trailer struct {
	PhaseOffsetUs float32
	InSync        uint8
	USBState      uint8
	DSPGeneration uint32
}

// Encoder packs snapshots into datagrams. It reuses one buffer, so the
// returned bytes are only valid until the next Encode.
type Encoder struct {
	seq   uint32
	buf   bytes.Buffer
	bands [analysis.NumBands]float32
}

// Encode packs s with the next sequence number.
func (e *Encoder) Encode(s *telemetry.Snapshot) ([]byte, error) {
	e.seq++
	e.buf.Reset()

	adcs := s.ADCs()
	head := struct {
		Sequence  uint32
		Timestamp int64
		ADCCount  uint16
	}{e.seq, s.Timestamp.UnixNano(), uint16(len(adcs))}
	if err := binary.Write(&e.buf, binary.BigEndian, head); err != nil {
		return nil, err
	}

	for i := range adcs {
		a := &adcs[i]
		h := adcHeader{
			Status:     uint8(a.Diagnostics.Status),
			DBFS:       float32(a.DBFS),
			VU:         [2]float32{float32(a.Levels.Left.VU), float32(a.Levels.Right.VU)},
			Peak:       [2]float32{float32(a.Levels.Left.Peak), float32(a.Levels.Right.Peak)},
			DominantHz: float32(a.Spectrum.DominantHz),
			BandCount:  analysis.NumBands,
		}
		for b, v := range a.Spectrum.Bands {
			e.bands[b] = float32(v)
		}
		if err := binary.Write(&e.buf, binary.BigEndian, h); err != nil {
			return nil, err
		}
		if err := binary.Write(&e.buf, binary.BigEndian, e.bands[:]); err != nil {
			return nil, err
		}
	}

	tr := trailer{
		PhaseOffsetUs: float32(s.Sync.PhaseOffsetUs),
		USBState:      uint8(s.USB.State),
		DSPGeneration: uint32(s.DSP.Generation),
	}
	if s.Sync.InSync {
		tr.InSync = 1
	}
	if err := binary.Write(&e.buf, binary.BigEndian, tr); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// Decode parses a datagram produced by Encoder.
func Decode(data []byte) (Packet, error) {
	r := bytes.NewReader(data)
	var p Packet

	var head struct {
		Sequence  uint32
		Timestamp int64
		ADCCount  uint16
	}
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return p, fmt.Errorf("packet header: %w", err)
	}
	if head.ADCCount > telemetry.MaxADCs {
		return p, fmt.Errorf("packet claims %d ADCs", head.ADCCount)
	}
	p.Sequence = head.Sequence
	p.Timestamp = head.Timestamp

	for i := range int(head.ADCCount) {
		var h adcHeader
		if err := binary.Read(r, binary.BigEndian, &h); err != nil {
			return p, fmt.Errorf("adc %d: %w", i, err)
		}
		if int(h.BandCount)*4 > r.Len() {
			return p, fmt.Errorf("adc %d: %w", i, io.ErrUnexpectedEOF)
		}
		rec := ADCRecord{
			Status:     health.Status(h.Status),
			DBFS:       h.DBFS,
			VU:         h.VU,
			Peak:       h.Peak,
			DominantHz: h.DominantHz,
			Bands:      make([]float32, h.BandCount),
		}
		if err := binary.Read(r, binary.BigEndian, rec.Bands); err != nil {
			return p, fmt.Errorf("adc %d bands: %w", i, err)
		}
		p.ADCs = append(p.ADCs, rec)
	}

	var tr trailer
	if err := binary.Read(r, binary.BigEndian, &tr); err != nil {
		return p, fmt.Errorf("packet trailer: %w", err)
	}
	p.PhaseOffsetUs = tr.PhaseOffsetUs
	p.InSync = tr.InSync != 0
	p.USBState = usbprio.State(tr.USBState)
	p.DSPGeneration = tr.DSPGeneration
	return p, nil
}
