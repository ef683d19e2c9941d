package session

import (
	"encoding/binary"

	"github.com/sedctl/tcgcore/pkg/core/sscerr"
	"github.com/sedctl/tcgcore/pkg/drive"
)

// ComID is an extended ComID: the low 16 bits are the base ComID, the high
// 16 bits the ComID extension, per Core Spec 3.2.3.
type ComID uint32

// ComIDRequest selects which comid management function HandleComIDRequest
// asks the TPer to perform.
type ComIDRequest [4]byte

const (
	ComIDInvalid ComID = 0xffffffff
)

var (
	ComIDRequestVerifyComIDValid = ComIDRequest{0x00, 0x00, 0x00, 0x01}
	ComIDRequestStackReset       = ComIDRequest{0x00, 0x00, 0x00, 0x02}
)

// GetComID requests a fresh extended ComID from the TPer via the
// "Get ComID" TCG TPer security protocol IF-RECV.
func GetComID(d drive.DriveIntf) (ComID, error) {
	var buf [512]byte
	bufs := buf[:]
	if err := d.IFRecv(drive.SecurityProtocolTCGTPer, 0, &bufs); err != nil {
		return ComIDInvalid, sscerr.Wrap(sscerr.KindTransportRecvFailed, "get comid", err)
	}
	c := binary.BigEndian.Uint16(buf[0:2])
	ce := binary.BigEndian.Uint16(buf[2:4])
	return ComID(uint32(c) + uint32(ce)<<16), nil
}

// HandleComIDRequest issues a comid management request (verify/stack reset)
// against comID and returns the TPer's response payload.
func HandleComIDRequest(d drive.DriveIntf, comID ComID, req ComIDRequest) ([]byte, error) {
	var out [512]byte
	binary.BigEndian.PutUint16(out[0:2], uint16(comID&0xffff))
	binary.BigEndian.PutUint16(out[2:4], uint16((comID&0xffff0000)>>16))
	copy(out[4:8], req[:])

	if err := d.IFSend(drive.SecurityProtocolTCGTPer, uint16(comID&0xffff), out[:]); err != nil {
		return nil, sscerr.Wrap(sscerr.KindTransportSendFailed, "comid request IF-SEND", err)
	}

	var in [512]byte
	ins := in[:]
	if err := d.IFRecv(drive.SecurityProtocolTCGTPer, uint16(comID&0xffff), &ins); err != nil {
		return nil, sscerr.Wrap(sscerr.KindTransportRecvFailed, "comid request IF-RECV", err)
	}

	size := binary.BigEndian.Uint16(in[10:12])
	if int(size) > len(in)-12 {
		return nil, sscerr.New(sscerr.KindInvalidComPacket, "comid response declared an out of bounds size")
	}
	return in[12 : 12+size], nil
}

// IsComIDValid reports whether the TPer currently considers comID valid and
// usable for a session.
func IsComIDValid(d drive.DriveIntf, comID ComID) (bool, error) {
	res, err := HandleComIDRequest(d, comID, ComIDRequestVerifyComIDValid)
	if err != nil {
		return false, err
	}
	if len(res) < 4 {
		return false, sscerr.New(sscerr.KindMalformedResponse, "comid verify response too short")
	}
	state := binary.BigEndian.Uint32(res[0:4])
	return state == 2 || state == 3, nil
}

// StackReset resets the synchronous protocol stack state associated with
// comID, per Core Spec 3.3.7.3.
func StackReset(d drive.DriveIntf, comID ComID) error {
	res, err := HandleComIDRequest(d, comID, ComIDRequestStackReset)
	if err != nil {
		return err
	}
	if len(res) < 4 {
		return sscerr.New(sscerr.KindSessionSyncFailed, "stack reset is pending, which is not supported")
	}
	if success := binary.BigEndian.Uint32(res[0:4]); success != 0 {
		return sscerr.Newf(sscerr.KindSessionSyncFailed, "stack reset reported failure code %d", success)
	}
	return nil
}
