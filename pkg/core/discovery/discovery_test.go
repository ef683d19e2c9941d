package discovery

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/sedctl/tcgcore/pkg/core/feature"
)

type rawFeature struct {
	code feature.FeatureCode
	ver  uint8
	body []byte
}

func buildL0(major, minor uint16, feats ...rawFeature) []byte {
	buf := &bytes.Buffer{}
	var body bytes.Buffer
	for _, f := range feats {
		fhdr := struct {
			Code    feature.FeatureCode
			Version uint8
			Size    uint8
		}{f.code, f.ver, uint8(len(f.body))}
		binary.Write(&body, binary.BigEndian, &fhdr)
		body.Write(f.body)
	}

	hdr := struct {
		Size     uint32
		Major    uint16
		Minor    uint16
		Reserved [8]byte
		Vendor   [32]byte
	}{
		Major: major,
		Minor: minor,
	}
	hdr.Size = uint32(binary.Size(hdr) - 4 + body.Len())
	binary.Write(buf, binary.BigEndian, &hdr)
	buf.Write(body.Bytes())
	return buf.Bytes()
}

func tperBody(flags uint8) []byte { return []byte{flags} }
func lockingBody(flags uint8) []byte { return []byte{flags} }

// ssaBody returns a CommonSSC-prefixed body long enough to satisfy any of
// Enterprise (5 bytes), PyriteV1/PyriteV2 (10 bytes) or OpalV2 (11 bytes):
// a LimitReader-backed binary.Read only consumes the struct's own size, so
// trailing padding is harmless.
func ssaBody(baseComID, numComID uint16) []byte {
	return []byte{
		byte(baseComID >> 8), byte(baseComID),
		byte(numComID >> 8), byte(numComID),
		0, 0, 0, 0, 0, 0, 0,
	}
}

func TestParseTPerAndLockingAndOpalV2(t *testing.T) {
	raw := buildL0(2, 0,
		rawFeature{feature.CodeTPer, 1, tperBody(0x01 | 0x02)},
		rawFeature{feature.CodeLocking, 1, lockingBody(0x01 | 0x02 | 0x08)},
		rawFeature{feature.CodeOpalV2, 2, ssaBody(0x1000, 4)},
	)

	d0, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if d0.TPer == nil || !d0.TPer.SyncSupported || !d0.TPer.AsyncSupported {
		t.Fatalf("TPer = %+v", d0.TPer)
	}
	if d0.Locking == nil || !d0.Locking.LockingSupported || !d0.Locking.LockingEnabled || !d0.Locking.MediaEncryption {
		t.Fatalf("Locking = %+v", d0.Locking)
	}
	if d0.OpalV2 == nil || d0.OpalV2.BaseComID != 0x1000 || d0.OpalV2.NumComID != 4 {
		t.Fatalf("OpalV2 = %+v", d0.OpalV2)
	}

	s := Elect(d0)
	if s.SSC != SSCOpalV2 {
		t.Errorf("Elect().SSC = %v; want SSCOpalV2", s.SSC)
	}
	if s.BaseComID != 0x1000 || s.NumComID != 4 {
		t.Errorf("Elect() ComID = %d/%d; want 0x1000/4", s.BaseComID, s.NumComID)
	}
	if !s.LockingSupported || !s.LockingEnabled {
		t.Errorf("Elect() locking flags = %+v", s)
	}
}

func TestElectionPriorityOrder(t *testing.T) {
	cases := []struct {
		name  string
		feats []rawFeature
		want  SSC
	}{
		{"OpalV2 wins over Enterprise", []rawFeature{
			{feature.CodeEnterprise, 1, ssaBody(0x800, 1)},
			{feature.CodeOpalV2, 2, ssaBody(0x1000, 4)},
		}, SSCOpalV2},
		{"OpalV1 wins over Enterprise", []rawFeature{
			{feature.CodeEnterprise, 1, ssaBody(0x800, 1)},
			{feature.CodeOpalV1, 1, nil},
		}, SSCOpalV1},
		{"Enterprise wins over PyriteV2", []rawFeature{
			{feature.CodePyriteV2, 1, ssaBody(0x900, 1)},
			{feature.CodeEnterprise, 1, ssaBody(0x800, 1)},
		}, SSCEnterprise},
		{"PyriteV2 wins over PyriteV1", []rawFeature{
			{feature.CodePyriteV1, 1, ssaBody(0x700, 1)},
			{feature.CodePyriteV2, 1, append(ssaBody(0x900, 1), 0, 0)},
		}, SSCPyriteV2},
		{"PyriteV1 alone", []rawFeature{
			{feature.CodePyriteV1, 1, ssaBody(0x700, 1)},
		}, SSCPyriteV1},
		{"No known SSC", []rawFeature{
			{feature.CodeTPer, 1, tperBody(0x01)},
		}, SSCUnknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw := buildL0(2, 0, c.feats...)
			d0, err := Parse(raw)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			s := Elect(d0)
			if s.SSC != c.want {
				t.Errorf("Elect().SSC = %v; want %v", s.SSC, c.want)
			}
		})
	}
}

func TestParseUnknownFeatureIsPreservedNotFatal(t *testing.T) {
	raw := buildL0(2, 0, rawFeature{0xBEEF, 1, []byte{0xAA, 0xBB}})
	d0, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(d0.UnknownFeatures) != 1 || d0.UnknownFeatures[0] != 0xBEEF {
		t.Errorf("UnknownFeatures = %v; want [0xBEEF]", d0.UnknownFeatures)
	}
}

func TestParseZeroSizeHeaderIsUnsupported(t *testing.T) {
	raw := make([]byte, 48)
	if _, err := Parse(raw); err == nil {
		t.Fatalf("Parse() error = nil; want error for zero-size header")
	}
}

func TestParseTruncatedHeaderFails(t *testing.T) {
	if _, err := Parse([]byte{0x00, 0x01, 0x02}); err == nil {
		t.Fatalf("Parse() error = nil; want error for truncated header")
	}
}

func TestParseTruncatedFeatureDescriptorStopsCleanly(t *testing.T) {
	full := buildL0(2, 0, rawFeature{feature.CodeTPer, 1, tperBody(0x01)})
	// Cut off mid feature-descriptor-header: header is fixed 48 bytes,
	// leave only 2 of the 4 feature-descriptor-header bytes.
	raw := full[:48+2]
	d0, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v; want graceful truncation handling", err)
	}
	if d0.TPer != nil {
		t.Errorf("TPer = %+v; want nil for truncated descriptor", d0.TPer)
	}
}
