// Package wire implements the wire codec (component F): framing and
// MessagePack serialization for the four packet kinds in §6.2 of the
// protocol — VERSION, ClientSettings, the information (metadata) packet,
// and the snapshot packet.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// ProtocolVersion is the current wire protocol version (§6.2 Step 1).
const ProtocolVersion uint16 = 1

// MetricLabels is the labels sub-object of one metric entry in a metadata
// packet.
type MetricLabels struct {
	Labels map[string]string `msgpack:"labels"`
}

// MetadataPacket is the information packet (§6.2 Step 3a): for every live
// metric, its label set.
type MetadataPacket struct {
	Metrics map[string]MetricLabels `msgpack:"metrics"`
}

// SnapshotPacket is the snapshot packet (§6.2 Step 3b): a monotonic
// timestamp relative to session t0, plus every live metric's value.
type SnapshotPacket struct {
	T uint64             `msgpack:"t"`
	D map[string]float64 `msgpack:"d"`
}

// ClientSettings is decoded from the single MessagePack value the client
// sends after VERSION (§6.2 Step 2). Unknown fields are ignored by the
// underlying decoder; SamplingInterval is the only recognized field.
type ClientSettings struct {
	SamplingInterval uint64 `msgpack:"sampling_interval"`
}

// EncodeVersion writes the 2-byte little-endian VERSION word directly,
// with no MessagePack wrapping — this is the one part of the protocol
// that is not a MessagePack value (§6.2 Step 1).
func EncodeVersion(w io.Writer, version uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], version)
	_, err := w.Write(buf[:])
	return err
}

// sanitize coerces non-finite floats to 0.0 before they reach the wire,
// per the Open Question resolution in SPEC_FULL §9.4: most consumers of
// this packet are plotting a running value and do not special-case
// IEEE-754 sentinels the way a numeric computation would.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.0
	}
	return v
}

// EncodeMetadata writes a metadata packet for the given name->labels map
// as a single MessagePack value, in one write.
func EncodeMetadata(w io.Writer, metrics map[string]map[string]string) error {
	out := make(map[string]MetricLabels, len(metrics))
	for name, labels := range metrics {
		out[name] = MetricLabels{Labels: labels}
	}
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(MetadataPacket{Metrics: out}); err != nil {
		return fmt.Errorf("wire: encode metadata: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("wire: write metadata: %w", err)
	}
	return nil
}

// EncodeSnapshot writes a snapshot packet for timestamp tNanos (relative
// to session t0) and the given name->value map, as a single MessagePack
// value, in one write. Non-finite values are sanitized first.
func EncodeSnapshot(w io.Writer, tNanos uint64, values map[string]float64) error {
	out := make(map[string]float64, len(values))
	for name, v := range values {
		out[name] = sanitize(v)
	}
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(SnapshotPacket{T: tNanos, D: out}); err != nil {
		return fmt.Errorf("wire: encode snapshot: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("wire: write snapshot: %w", err)
	}
	return nil
}

// DecodeSettings reads exactly one MessagePack value from r and decodes
// it as ClientSettings. Unknown fields are ignored by msgpack's default
// map decoding into a struct; a missing sampling_interval decodes as the
// zero value, which the caller must reject per §4.4.
func DecodeSettings(r io.Reader) (ClientSettings, error) {
	var s ClientSettings
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		return ClientSettings{}, fmt.Errorf("wire: decode client settings: %w", err)
	}
	return s, nil
}
