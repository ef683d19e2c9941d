// Implements TCG Storage Core Table operations on the ThisSP invoker:
// random number generation and authority authentication.

package table

import (
	"errors"
	"fmt"

	"github.com/sedctl/tcgcore/pkg/core/method"
	"github.com/sedctl/tcgcore/pkg/core/session"
	"github.com/sedctl/tcgcore/pkg/core/stream"
	"github.com/sedctl/tcgcore/pkg/core/uid"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
)

func ThisSP_Random(s *session.Session, count uint) ([]byte, error) {
	mc := method.NewMethodCall(uid.InvokeIDThisSP, uid.MethodIDRandom, s.MethodFlags)
	mc.UInt(count)
	resp, err := s.ExecuteMethod(mc)
	if err != nil {
		return nil, err
	}
	res, ok := resp[0].(stream.List)
	if !ok {
		return nil, method.ErrMalformedMethodResponse
	}
	rnd, ok := res[0].([]byte)
	if !ok {
		return nil, method.ErrMalformedMethodResponse
	}
	return rnd, nil
}

func ThisSP_Authenticate(s *session.Session, authority uid.AuthorityObjectUID, proof []byte) error {
	authUID := uid.MethodID{}
	if s.ProtocolLevel == session.ProtocolLevelEnterprise {
		copy(authUID[:], uid.MethodIDEnterpriseAuthenticate[:])
	} else {
		copy(authUID[:], uid.MethodIDAuthenticate[:])
	}
	mc := method.NewMethodCall(uid.InvokeIDThisSP, authUID, s.MethodFlags)
	mc.Bytes(authority[:])
	mc.StartOptionalParameter(0, "Challenge")
	mc.Bytes(proof)
	mc.EndOptionalParameter()
	resp, err := s.ExecuteMethod(mc)
	if err != nil {
		return err
	}
	res, ok := resp[0].(stream.List)
	if !ok {
		return method.ErrMalformedMethodResponse
	}
	success, okUint := res[0].(uint)
	_, okByte := res[0].([]byte)
	if okByte {
		return fmt.Errorf("got a challenge back, not implemented")
	}
	if !okUint {
		return method.ErrMalformedMethodResponse
	}
	if success == 0 {
		return ErrAuthenticationFailed
	}
	return nil
}
