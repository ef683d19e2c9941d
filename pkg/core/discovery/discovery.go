// Package discovery implements the TCG Level 0 Discovery parser: the
// 48-byte header, the feature descriptor walk, and SSC election over the
// parsed descriptors.
package discovery

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/sedctl/tcgcore/pkg/core/feature"
	"github.com/sedctl/tcgcore/pkg/core/sscerr"
	"github.com/sedctl/tcgcore/pkg/drive"
)

// ComIDDiscoveryL0 is the well-known ComID used to request Level 0
// Discovery.
const ComIDDiscoveryL0 = 1

// SSC identifies the elected Security Subsystem Class.
type SSC int

const (
	SSCUnknown SSC = iota
	SSCOpalV1
	SSCOpalV2
	SSCEnterprise
	SSCPyriteV1
	SSCPyriteV2
)

func (s SSC) String() string {
	switch s {
	case SSCOpalV1:
		return "OpalV1"
	case SSCOpalV2:
		return "OpalV2"
	case SSCEnterprise:
		return "Enterprise"
	case SSCPyriteV1:
		return "PyriteV1"
	case SSCPyriteV2:
		return "PyriteV2"
	}
	return "Unknown"
}

// Level0Discovery is the parsed result of a Level 0 Discovery exchange.
type Level0Discovery struct {
	MajorVersion int
	MinorVersion int
	Vendor       [32]byte

	TPer              *feature.TPer
	Locking           *feature.Locking
	Geometry          *feature.Geometry
	SecureMsg         *feature.SecureMsg
	Enterprise        *feature.Enterprise
	OpalV1            *feature.OpalV1
	SingleUser        *feature.SingleUser
	DataStore         *feature.DataStore
	OpalV2            *feature.OpalV2
	Opalite           *feature.Opalite
	PyriteV1          *feature.PyriteV1
	PyriteV2          *feature.PyriteV2
	RubyV1            *feature.RubyV1
	LockingLBA        *feature.LockingLBA
	BlockSID          *feature.BlockSID
	NamespaceLocking  *feature.NamespaceLocking
	DataRemoval       *feature.DataRemoval
	NamespaceGeometry *feature.NamespaceGeometry
	SeagatePorts      *feature.SeagatePorts
	ShadowMBR         *feature.ShadowMBRForMultipleNamespaces
	UnknownFeatures   []uint16
}

type header struct {
	Size     uint32
	Major    uint16
	Minor    uint16
	Reserved [8]byte
	Vendor   [32]byte
}

type descHeader struct {
	Code    feature.FeatureCode
	Version uint8
	Size    uint8
}

// Parse decodes a raw Level 0 Discovery response buffer.
func Parse(raw []byte) (*Level0Discovery, error) {
	buf := bytes.NewBuffer(raw)
	var hdr header
	if err := binary.Read(buf, binary.BigEndian, &hdr); err != nil {
		return nil, sscerr.Wrap(sscerr.KindDiscoveryInvalidData, "parse level 0 discovery header", err)
	}
	if hdr.Size == 0 {
		return nil, sscerr.New(sscerr.KindDiscoveryFailed, "device does not support TCG Storage Core")
	}

	d0 := &Level0Discovery{
		MajorVersion: int(hdr.Major),
		MinorVersion: int(hdr.Minor),
	}
	copy(d0.Vendor[:], hdr.Vendor[:])

	fsize := int(hdr.Size) - binary.Size(hdr) + 4
	for fsize > 0 {
		var fhdr descHeader
		if err := binary.Read(buf, binary.BigEndian, &fhdr); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				// Response was truncated mid feature descriptor; stop
				// walking rather than fail the whole parse.
				break
			}
			return nil, sscerr.Wrap(sscerr.KindDiscoveryInvalidData, "parse feature descriptor header", err)
		}
		frdr := io.LimitReader(buf, int64(fhdr.Size))
		var err error
		switch fhdr.Code {
		case feature.CodeTPer:
			d0.TPer, err = feature.ReadTPerFeature(frdr)
		case feature.CodeLocking:
			d0.Locking, err = feature.ReadLockingFeature(frdr)
		case feature.CodeGeometry:
			d0.Geometry, err = feature.ReadGeometryFeature(frdr)
		case feature.CodeSecureMsg:
			d0.SecureMsg, err = feature.ReadSecureMsgFeature(frdr)
		case feature.CodeEnterprise:
			d0.Enterprise, err = feature.ReadEnterpriseFeature(frdr)
		case feature.CodeOpalV1:
			d0.OpalV1, err = feature.ReadOpalV1Feature(frdr)
		case feature.CodeSingleUser:
			d0.SingleUser, err = feature.ReadSingleUserFeature(frdr)
		case feature.CodeDataStore:
			d0.DataStore, err = feature.ReadDataStoreFeature(frdr)
		case feature.CodeOpalV2:
			d0.OpalV2, err = feature.ReadOpalV2Feature(frdr)
		case feature.CodeOpalite:
			d0.Opalite, err = feature.ReadOpaliteFeature(frdr)
		case feature.CodePyriteV1:
			d0.PyriteV1, err = feature.ReadPyriteV1Feature(frdr)
		case feature.CodePyriteV2:
			d0.PyriteV2, err = feature.ReadPyriteV2Feature(frdr)
		case feature.CodeRubyV1:
			d0.RubyV1, err = feature.ReadRubyV1Feature(frdr)
		case feature.CodeLockingLBA:
			d0.LockingLBA, err = feature.ReadLockingLBAFeature(frdr)
		case feature.CodeBlockSID:
			d0.BlockSID, err = feature.ReadBlockSIDFeature(frdr)
		case feature.CodeNamespaceLocking:
			d0.NamespaceLocking, err = feature.ReadNamespaceLockingFeature(frdr)
		case feature.CodeDataRemoval:
			d0.DataRemoval, err = feature.ReadDataRemovalFeature(frdr)
		case feature.CodeNamespaceGeometry:
			d0.NamespaceGeometry, err = feature.ReadNamespaceGeometryFeature(frdr)
		case feature.CodeSeagatePorts:
			d0.SeagatePorts, err = feature.ReadSeagatePorts(frdr)
		case feature.CodeShadowMBRForMultipleNamespaces:
			d0.ShadowMBR, err = feature.ReadShadowMBRForMultipleNamespacesFeature(frdr)
		default:
			d0.UnknownFeatures = append(d0.UnknownFeatures, uint16(fhdr.Code))
		}
		if err != nil {
			return nil, sscerr.Wrap(sscerr.KindDiscoveryInvalidData, "parse feature body", err)
		}
		io.Copy(io.Discard, frdr)
		fsize -= binary.Size(fhdr) + int(fhdr.Size)
	}
	return d0, nil
}

// Raw issues the IF-RECV for Level 0 Discovery on the standard protocol/
// ComID and returns the unparsed bytes, for negative-testing callers that
// want to probe arbitrary protocol/ComID combinations or feed a corrupted
// buffer straight to Parse.
func Raw(d drive.DriveIntf) ([]byte, error) {
	raw := make([]byte, 2048)
	if err := d.IFRecv(drive.SecurityProtocolTCGManagement, uint16(ComIDDiscoveryL0), &raw); err != nil {
		if err == drive.ErrNotSupported {
			return nil, sscerr.Wrap(sscerr.KindDiscoveryFailed, "device does not support TCG Storage Core", err)
		}
		return nil, sscerr.Wrap(sscerr.KindTransportRecvFailed, "level 0 discovery IF-RECV", err)
	}
	return raw, nil
}

// Discovery0 performs a full Level 0 Discovery round trip against d.
func Discovery0(d drive.DriveIntf) (*Level0Discovery, error) {
	raw, err := Raw(d)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Summary is the per-SSC election result mirrored out of a parsed Level 0
// Discovery, generalizing the locking/TPer capability flags the teacher's
// discovery code parses but never reduces to a single elected SSC.
type Summary struct {
	SSC       SSC
	BaseComID uint16
	NumComID  uint16

	LockingSupported bool
	LockingEnabled   bool
	Locked           bool
	MediaEncryption  bool
	MBREnabled       bool
	MBRDone          bool

	SyncSupported  bool
	AsyncSupported bool
}

// Elect reduces a parsed Level 0 Discovery to a Summary, picking the first
// SSC in priority order Opal v2 -> Opal v1 -> Enterprise -> Pyrite v2 ->
// Pyrite v1 -> Unknown.
func Elect(d0 *Level0Discovery) *Summary {
	s := &Summary{SSC: SSCUnknown}
	switch {
	case d0.OpalV2 != nil:
		s.SSC = SSCOpalV2
		s.BaseComID = d0.OpalV2.BaseComID
		s.NumComID = d0.OpalV2.NumComID
	case d0.OpalV1 != nil:
		s.SSC = SSCOpalV1
	case d0.Enterprise != nil:
		s.SSC = SSCEnterprise
		s.BaseComID = d0.Enterprise.BaseComID
		s.NumComID = d0.Enterprise.NumComID
	case d0.PyriteV2 != nil:
		s.SSC = SSCPyriteV2
		s.BaseComID = d0.PyriteV2.BaseComID
		s.NumComID = d0.PyriteV2.NumComID
	case d0.PyriteV1 != nil:
		s.SSC = SSCPyriteV1
		s.BaseComID = d0.PyriteV1.BaseComID
		s.NumComID = d0.PyriteV1.NumComID
	}

	if d0.Locking != nil {
		s.LockingSupported = d0.Locking.LockingSupported
		s.LockingEnabled = d0.Locking.LockingEnabled
		s.Locked = d0.Locking.Locked
		s.MediaEncryption = d0.Locking.MediaEncryption
		s.MBREnabled = d0.Locking.MBREnabled
		s.MBRDone = d0.Locking.MBRDone
	}
	if d0.TPer != nil {
		s.SyncSupported = d0.TPer.SyncSupported
		s.AsyncSupported = d0.TPer.AsyncSupported
	}
	return s
}
