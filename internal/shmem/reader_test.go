package shmem

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"golang.org/x/sys/unix"
)

// buildRecord assembles a 96-byte slot in the producer's layout.
func buildRecord(name string, timestamp uint64, throughput, errCount, berErrors, linkStatus uint32, utilization float32) []byte {
	raw := make([]byte, RecordSize)
	copy(raw[:nameLen], name)
	binary.LittleEndian.PutUint64(raw[offTimestamp:], timestamp)
	binary.LittleEndian.PutUint32(raw[offThroughput:], throughput)
	binary.LittleEndian.PutUint32(raw[offErrorCount:], errCount)
	binary.LittleEndian.PutUint32(raw[offBERErrors:], berErrors)
	binary.LittleEndian.PutUint32(raw[offLinkStatus:], linkStatus)
	binary.LittleEndian.PutUint32(raw[offUtilization:], math.Float32bits(utilization))
	return raw
}

func TestDecodeRecord(t *testing.T) {
	raw := buildRecord("SITE-NYC-01", 1700000000, 400, 3, 12, 1, 78.5)

	sample, err := decodeRecord(0, raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if sample.SiteName != "SITE-NYC-01" {
		t.Errorf("expected site SITE-NYC-01, got %q", sample.SiteName)
	}
	if sample.Timestamp != 1700000000 {
		t.Errorf("expected timestamp 1700000000, got %d", sample.Timestamp)
	}
	if sample.ThroughputGbps != 400 {
		t.Errorf("expected throughput 400, got %d", sample.ThroughputGbps)
	}
	if sample.ErrorCount != 3 {
		t.Errorf("expected error count 3, got %d", sample.ErrorCount)
	}
	if sample.BERErrors != 12 {
		t.Errorf("expected ber errors 12, got %d", sample.BERErrors)
	}
	if sample.LinkStatus != 1 {
		t.Errorf("expected link status 1, got %d", sample.LinkStatus)
	}
	if math.Abs(sample.Utilization-78.5) > 0.001 {
		t.Errorf("expected utilization 78.5, got %f", sample.Utilization)
	}
}

func TestDecodeRecord_NamePaddingTrimmed(t *testing.T) {
	raw := buildRecord("A", 1, 1, 0, 0, 1, 0)

	sample, err := decodeRecord(0, raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if sample.SiteName != "A" {
		t.Errorf("expected padding trimmed to %q, got %q", "A", sample.SiteName)
	}
}

func TestDecodeRecord_ShortRecord(t *testing.T) {
	raw := buildRecord("SITE-NYC-01", 1, 1, 0, 0, 1, 0)

	_, err := decodeRecord(2, raw[:40])
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decodeErr.Slot != 2 {
		t.Errorf("expected slot 2 in error, got %d", decodeErr.Slot)
	}
	if decodeErr.Offset != 2*RecordSize {
		t.Errorf("expected offset %d in error, got %d", 2*RecordSize, decodeErr.Offset)
	}
}

func TestDecodeRecord_EmptyName(t *testing.T) {
	raw := buildRecord("", 1, 1, 0, 0, 1, 0)

	_, err := decodeRecord(0, raw)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError for empty name, got %v", err)
	}
}

func TestDecodeRecord_InvalidUTF8Name(t *testing.T) {
	raw := buildRecord("", 1, 1, 0, 0, 1, 0)
	raw[0] = 0xff
	raw[1] = 0xfe

	_, err := decodeRecord(0, raw)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError for invalid UTF-8 name, got %v", err)
	}
}

func TestDecodeRecord_ReservedWordsIgnored(t *testing.T) {
	raw := buildRecord("SITE-LAX-02", 5, 100, 0, 0, 1, 50)
	for i := 60; i < RecordSize; i++ {
		raw[i] = 0xab
	}

	sample, err := decodeRecord(0, raw)
	if err != nil {
		t.Fatalf("decode failed with reserved bytes set: %v", err)
	}
	if sample.ThroughputGbps != 100 || sample.SiteName != "SITE-LAX-02" {
		t.Errorf("reserved bytes leaked into decoded fields: %+v", sample)
	}
}

func TestDecodeRecord_NonFiniteUtilization(t *testing.T) {
	for _, utilization := range []float32{float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1))} {
		raw := buildRecord("SITE-NYC-01", 1, 400, 0, 0, 1, utilization)

		_, err := decodeRecord(0, raw)
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("utilization %f: expected DecodeError, got %v", utilization, err)
		}
	}
}

func TestReadAll_NonFiniteSlotSkippedPerSite(t *testing.T) {
	buf := make([]byte, 2*RecordSize)
	copy(buf[0:], buildRecord("SITE-NYC-01", 1, 400, 0, 0, 1, float32(math.NaN())))
	copy(buf[RecordSize:], buildRecord("SITE-LAX-02", 1, 350, 0, 0, 1, 60))

	r := &Reader{path: "test", slots: 2, fd: -1, buf: buf}

	samples, errs := r.ReadAll()
	if len(samples) != 1 || samples[0].SiteName != "SITE-LAX-02" {
		t.Fatalf("expected only the healthy site decoded, got %+v", samples)
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 decode error, got %d", len(errs))
	}
	var decodeErr *DecodeError
	if !errors.As(errs[0], &decodeErr) || decodeErr.Slot != 0 {
		t.Errorf("expected DecodeError for slot 0, got %v", errs[0])
	}
}

func TestReader_OpenMissingDevice(t *testing.T) {
	_, err := Open("/nonexistent/optilink-test-device", 4)
	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Fatalf("expected AcquisitionError, got %v", err)
	}
}

func TestReader_CloseIdempotent(t *testing.T) {
	r := &Reader{path: "test", fd: -1}
	if err := r.Close(); err != nil {
		t.Errorf("first close failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestReader_CloseReleasesDescriptor(t *testing.T) {
	fd, err := unix.Open("/dev/null", unix.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	r := &Reader{path: "/dev/null", fd: fd}
	if err := r.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if r.fd != -1 {
		t.Errorf("expected descriptor cleared after close, got %d", r.fd)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}
