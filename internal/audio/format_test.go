package audio

import (
	"encoding/binary"
	"testing"
)

func encodeHeader(sampleRate uint32, channels, bits uint16) []byte {
	buf := make([]byte, MetadataHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], sampleRate)
	binary.LittleEndian.PutUint16(buf[4:6], channels)
	binary.LittleEndian.PutUint16(buf[6:8], bits)
	return buf
}

func TestParseMetadataRejectsWrongSize(t *testing.T) {
	if _, err := ParseMetadata([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for undersized header")
	}
}

func TestParseMetadataRoundTrips(t *testing.T) {
	header := encodeHeader(16000, 1, 16)
	m, err := ParseMetadata(header)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.SampleRate != 16000 || m.Channels != 1 || m.BitsPerSample != 16 {
		t.Fatalf("unexpected metadata: %+v", m)
	}
}

func TestFormatSpecValidateAcceptsMatchingFormat(t *testing.T) {
	spec := FormatSpec{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
	m, _ := ParseMetadata(encodeHeader(16000, 1, 16))
	if err := spec.Validate(m); err != nil {
		t.Fatalf("expected matching format to validate, got %v", err)
	}
}

func TestFormatSpecValidateRejectsMismatch(t *testing.T) {
	spec := FormatSpec{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
	m, _ := ParseMetadata(encodeHeader(44100, 2, 24))
	if err := spec.Validate(m); err == nil {
		t.Fatal("expected mismatched format to fail validation")
	}
}

func TestConnectionValidatorCachesVerdict(t *testing.T) {
	spec := FormatSpec{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
	v := NewConnectionValidator(spec)

	if err := v.CheckFirstChunk(encodeHeader(16000, 1, 16)); err != nil {
		t.Fatalf("expected first chunk to validate, got %v", err)
	}
	// A subsequent call with an invalid header should still return the
	// cached (successful) verdict rather than re-parsing.
	if err := v.CheckFirstChunk([]byte{0, 1}); err != nil {
		t.Fatalf("expected cached verdict to be reused, got %v", err)
	}
}

func TestConnectionValidatorCachesFailure(t *testing.T) {
	spec := FormatSpec{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
	v := NewConnectionValidator(spec)

	err1 := v.CheckFirstChunk(encodeHeader(8000, 1, 16))
	if err1 == nil {
		t.Fatal("expected first chunk validation to fail on mismatched sample rate")
	}
	err2 := v.CheckFirstChunk(encodeHeader(16000, 1, 16))
	if err2 == nil {
		t.Fatal("expected cached failure verdict to persist even for a now-valid header")
	}
}

func TestCheckFrameRejectsUnalignedLength(t *testing.T) {
	spec := FormatSpec{BitsPerSample: 16}
	if err := CheckFrame([]byte{1, 2, 3}, spec); err == nil {
		t.Fatal("expected odd-length PCM16 frame to fail")
	}
	if err := CheckFrame([]byte{1, 2, 3, 4}, spec); err != nil {
		t.Fatalf("expected even-length frame to pass, got %v", err)
	}
}
