package shmem

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"golang.org/x/sys/unix"

	"github.com/scarson/optilink-monitor/internal/telemetry"
)

const (
	// RecordSize is the stride of one site_stats slot in the mapped region:
	// 32-byte name, u64 timestamp, four u32 counters, f32 utilization,
	// eight reserved u32 words, 4 bytes of struct tail padding.
	RecordSize = 96

	// BufferSize is the fixed size of the mapped region (4 pages).
	BufferSize = 4 * 4096

	nameLen = 32
)

// Field offsets within a record.
const (
	offTimestamp   = 32
	offThroughput  = 40
	offErrorCount  = 44
	offBERErrors   = 48
	offLinkStatus  = 52
	offUtilization = 56
)

// AcquisitionError reports a failure to open or map the device. It is fatal to
// the current connection and drives the caller's reconnect loop.
type AcquisitionError struct {
	Path string
	Err  error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("shmem: acquire %s: %v", e.Path, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// DecodeError reports a malformed record. The affected slot is skipped for the
// cycle; it never aborts a full read pass.
type DecodeError struct {
	Slot   int
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("shmem: decode slot %d at offset %d: %s", e.Slot, e.Offset, e.Reason)
}

// Reader maps the kernel-exposed telemetry region and decodes site records
// out of it. The producer refreshes slots in place at its own cadence; every
// read copies the slot bytes out before decoding.
type Reader struct {
	path  string
	slots int
	fd    int
	buf   []byte
}

// Open opens the device and maps the fixed-size region read-only.
func Open(path string, slots int) (*Reader, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, &AcquisitionError{Path: path, Err: err}
	}

	buf, err := unix.Mmap(fd, 0, BufferSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, &AcquisitionError{Path: path, Err: fmt.Errorf("mmap: %w", err)}
	}

	return &Reader{path: path, slots: slots, fd: fd, buf: buf}, nil
}

// ReadSite decodes the record in the given slot.
func (r *Reader) ReadSite(slot int) (telemetry.SiteSample, error) {
	if r.buf == nil {
		return telemetry.SiteSample{}, &AcquisitionError{Path: r.path, Err: fmt.Errorf("region not mapped")}
	}

	offset := slot * RecordSize
	if slot < 0 || offset+RecordSize > len(r.buf) {
		return telemetry.SiteSample{}, &DecodeError{Slot: slot, Offset: offset, Reason: "slot outside mapped region"}
	}

	raw := make([]byte, RecordSize)
	copy(raw, r.buf[offset:offset+RecordSize])

	return decodeRecord(slot, raw)
}

// ReadAll reads every configured slot and returns the records that decoded
// cleanly along with the per-slot errors for the rest. Partial results are
// valid and expected.
func (r *Reader) ReadAll() ([]telemetry.SiteSample, []error) {
	var samples []telemetry.SiteSample
	var errs []error

	for i := 0; i < r.slots; i++ {
		sample, err := r.ReadSite(i)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		samples = append(samples, sample)
	}

	return samples, errs
}

// Close unmaps the region and releases the device handle. Safe to call more
// than once.
func (r *Reader) Close() error {
	var err error
	if r.buf != nil {
		err = unix.Munmap(r.buf)
		r.buf = nil
	}
	if r.fd >= 0 {
		if cerr := unix.Close(r.fd); err == nil {
			err = cerr
		}
		r.fd = -1
	}
	return err
}

// decodeRecord decodes one 96-byte slot. The layout is the producer's native
// (little-endian) byte order.
func decodeRecord(slot int, raw []byte) (telemetry.SiteSample, error) {
	offset := slot * RecordSize

	if len(raw) < RecordSize {
		return telemetry.SiteSample{}, &DecodeError{
			Slot:   slot,
			Offset: offset,
			Reason: fmt.Sprintf("short record: %d bytes", len(raw)),
		}
	}

	name := string(bytes.TrimRight(raw[:nameLen], "\x00"))
	if name == "" {
		return telemetry.SiteSample{}, &DecodeError{Slot: slot, Offset: offset, Reason: "empty site name"}
	}
	if !utf8.ValidString(name) {
		return telemetry.SiteSample{}, &DecodeError{Slot: slot, Offset: offset, Reason: "site name is not valid UTF-8"}
	}

	utilization := math.Float32frombits(binary.LittleEndian.Uint32(raw[offUtilization:]))
	if math.IsNaN(float64(utilization)) || math.IsInf(float64(utilization), 0) {
		return telemetry.SiteSample{}, &DecodeError{Slot: slot, Offset: offset, Reason: "non-finite utilization"}
	}

	return telemetry.SiteSample{
		SiteName:       name,
		Timestamp:      int64(binary.LittleEndian.Uint64(raw[offTimestamp:])),
		ThroughputGbps: int(binary.LittleEndian.Uint32(raw[offThroughput:])),
		ErrorCount:     int(binary.LittleEndian.Uint32(raw[offErrorCount:])),
		BERErrors:      int(binary.LittleEndian.Uint32(raw[offBERErrors:])),
		LinkStatus:     int(binary.LittleEndian.Uint32(raw[offLinkStatus:])),
		Utilization:    float64(utilization),
	}, nil
}
