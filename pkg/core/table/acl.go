// Implements the Core V2.0 access-control surface this repo's Locking/Admin
// helpers don't already cover: ACL inspection, row lifecycle (Create/Delete),
// Assign/Remove, authority enable/disable, ACE inspection and range
// assignment, object-level Revert/Erase, and the TPer clock.

package table

import (
	"github.com/sedctl/tcgcore/pkg/core/method"
	"github.com/sedctl/tcgcore/pkg/core/session"
	"github.com/sedctl/tcgcore/pkg/core/stream"
	"github.com/sedctl/tcgcore/pkg/core/uid"
)

// ColumnAuthorityEnabled is the Authority table's "Enabled" column.
var ColumnAuthorityEnabled uint = 5

// ColumnACEBooleanExpr is the ACE table's "BooleanExpr" column.
var ColumnACEBooleanExpr uint = 3

// ColumnActiveKey is the Locking table's "ActiveKey" column.
var ColumnActiveKey uint = 10

// BooleanOR is the ACE BooleanExpr operator value for "OR".
var BooleanOR uint = 0

// uidBytes copies an 8-byte UID value into a fresh, addressable slice.
func uidBytes(u uid.UID) []byte {
	b := make([]byte, 8)
	copy(b, u[:])
	return b
}

// GetACL returns the list of ACE row UIDs governing invocation of methodUID
// on invokingUID.
func GetACL(s *session.Session, invokingUID uid.InvokingID, methodUID uid.MethodID) ([]uid.RowUID, error) {
	mc := method.NewMethodCall(invokingUID, uid.MethodIDGetACL, s.MethodFlags)
	mc.Bytes(uidBytes(uid.UID(invokingUID)))
	mc.Bytes(uidBytes(uid.UID(methodUID)))
	resp, err := s.ExecuteMethod(mc)
	if err != nil {
		return nil, err
	}
	params, ok := resp[0].(stream.List)
	if !ok {
		return nil, method.ErrMalformedMethodResponse
	}
	res := []uid.RowUID{}
	for _, tok := range params {
		b, ok := tok.([]byte)
		if !ok || len(b) != 8 {
			break
		}
		var r uid.RowUID
		copy(r[:], b)
		res = append(res, r)
	}
	return res, nil
}

// CreateRow creates a new row in tbl and returns the response, which a
// caller may inspect for the TPer-assigned row UID.
func CreateRow(s *session.Session, tbl uid.TableUID) (stream.List, error) {
	mc := method.NewMethodCall(uid.InvokingID(tbl), uid.MethodIDCreateRow, s.MethodFlags)
	return s.ExecuteMethod(mc)
}

// DeleteRow deletes row.
func DeleteRow(s *session.Session, row uid.RowUID) error {
	mc := method.NewMethodCall(uid.InvokingID(row), uid.MethodIDDeleteRow, s.MethodFlags)
	_, err := s.ExecuteMethod(mc)
	return err
}

// Assign grants authority access to row by adding it to tbl's ACL.
func Assign(s *session.Session, tbl uid.TableUID, row uid.RowUID, authority uid.AuthorityObjectUID) error {
	mc := method.NewMethodCall(uid.InvokingID(tbl), uid.MethodIDAssign, s.MethodFlags)
	mc.Bytes(uidBytes(uid.UID(row)))
	mc.Bytes(uidBytes(uid.UID(authority)))
	_, err := s.ExecuteMethod(mc)
	return err
}

// Remove revokes authority access to row from tbl's ACL.
func Remove(s *session.Session, tbl uid.TableUID, row uid.RowUID, authority uid.AuthorityObjectUID) error {
	mc := method.NewMethodCall(uid.InvokingID(tbl), uid.MethodIDRemove, s.MethodFlags)
	mc.Bytes(uidBytes(uid.UID(row)))
	mc.Bytes(uidBytes(uid.UID(authority)))
	_, err := s.ExecuteMethod(mc)
	return err
}

// GetClock reads the TPer's current clock value.
func GetClock(s *session.Session) (uint64, error) {
	mc := method.NewMethodCall(uid.InvokeIDThisSP, uid.MethodIDGetClock, s.MethodFlags)
	resp, err := s.ExecuteMethod(mc)
	if err != nil {
		return 0, err
	}
	params, ok := resp[0].(stream.List)
	if !ok {
		return 0, method.ErrMalformedMethodResponse
	}
	v, ok := params[0].(uint)
	if !ok {
		return 0, method.ErrMalformedMethodResponse
	}
	return uint64(v), nil
}

// IsAuthorityEnabled reports whether authority's Enabled column is set.
func IsAuthorityEnabled(s *session.Session, authority uid.AuthorityObjectUID) (bool, error) {
	v, err := GetCell(s, uid.RowUID(authority), ColumnAuthorityEnabled, "Enabled")
	if err != nil {
		return false, err
	}
	u, ok := v.(uint)
	if !ok {
		return false, method.ErrMalformedMethodResponse
	}
	return u != 0, nil
}

// SetAuthorityEnabled sets authority's Enabled column.
func SetAuthorityEnabled(s *session.Session, authority uid.AuthorityObjectUID, enabled bool) error {
	return SetBool(s, uid.RowUID(authority), ColumnAuthorityEnabled, "Enabled", enabled)
}

// SetUint writes a single uint-valued column on row.
func SetUint(s *session.Session, row uid.RowUID, column uint, columnName string, v uint) error {
	mc := NewSetCall(s, row)
	writeNamedColumn(s, mc, column, columnName, func() { mc.UInt(v) })
	FinishSetCall(s, mc)
	_, err := s.ExecuteMethod(mc)
	return err
}

// SetBool writes a single boolean-valued column on row.
func SetBool(s *session.Session, row uid.RowUID, column uint, columnName string, v bool) error {
	mc := NewSetCall(s, row)
	writeNamedColumn(s, mc, column, columnName, func() {
		if v {
			mc.Token(stream.OpalTrue)
		} else {
			mc.Token(stream.OpalFalse)
		}
	})
	FinishSetCall(s, mc)
	_, err := s.ExecuteMethod(mc)
	return err
}

// SetBytes writes a single byte-string-valued column on row.
func SetBytes(s *session.Session, row uid.RowUID, column uint, columnName string, v []byte) error {
	mc := NewSetCall(s, row)
	writeNamedColumn(s, mc, column, columnName, func() { mc.Bytes(v) })
	FinishSetCall(s, mc)
	_, err := s.ExecuteMethod(mc)
	return err
}

// SetMultiUint writes several uint-valued columns on row in a single Set.
// Column addressing is numeric (Core V2.0); Enterprise tables address
// columns by name and should use repeated SetUint calls instead.
func SetMultiUint(s *session.Session, row uid.RowUID, columns map[uint]uint) error {
	mc := NewSetCall(s, row)
	for col, val := range columns {
		mc.StartOptionalParameter(col, "")
		mc.UInt(val)
		mc.EndOptionalParameter()
	}
	FinishSetCall(s, mc)
	_, err := s.ExecuteMethod(mc)
	return err
}

// writeNamedColumn writes one column/value pair using whichever addressing
// convention the session's protocol level requires: Enterprise addresses
// columns by name inside a StartName/EndName pair, Core V2.0 by numeric
// optional-parameter ID.
func writeNamedColumn(s *session.Session, mc *method.MethodCall, column uint, columnName string, writeValue func()) {
	if s.ProtocolLevel == session.ProtocolLevelEnterprise {
		mc.Token(stream.StartName)
		mc.Bytes([]byte(columnName))
		writeValue()
		mc.Token(stream.EndName)
		return
	}
	mc.StartOptionalParameter(column, columnName)
	writeValue()
	mc.EndOptionalParameter()
}

// GetAceInfo reads the BooleanExpr of an ACE row.
func GetAceInfo(s *session.Session, aceRow uid.RowUID) ([]byte, error) {
	v, err := GetCell(s, aceRow, ColumnACEBooleanExpr, "BooleanExpr")
	if err != nil {
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, method.ErrMalformedMethodResponse
	}
	return b, nil
}

// AssignUserToRange builds the { User_<userID> OR Admin1 } ACE boolean
// expression and writes it to locking range rangeID's RdLocked and WrLocked
// ACE rows, granting the user read/write-unlock access to that range.
func AssignUserToRange(s *session.Session, userID uint32, rangeID uint32) error {
	userAuth := uid.UserN(userID)
	admin1 := uid.LockingAuthorityAdmin1
	write := func(aceRow uid.RowUID) error {
		mc := NewSetCall(s, aceRow)
		mc.StartOptionalParameter(ColumnACEBooleanExpr, "BooleanExpr")
		mc.StartList()
		mc.Token(stream.StartName)
		mc.Bytes(uidBytes(uid.UID(userAuth)))
		mc.Bytes(uidBytes(uid.UID(userAuth)))
		mc.Token(stream.EndName)
		mc.Token(stream.StartName)
		mc.Bytes(uidBytes(uid.UID(admin1)))
		mc.Bytes(uidBytes(uid.UID(admin1)))
		mc.Token(stream.EndName)
		mc.UInt(BooleanOR)
		mc.EndList()
		mc.EndOptionalParameter()
		FinishSetCall(s, mc)
		_, err := s.ExecuteMethod(mc)
		return err
	}
	if err := write(uid.AceLockingRangeSetRdLocked(rangeID)); err != nil {
		return err
	}
	return write(uid.AceLockingRangeSetWrLocked(rangeID))
}

// PSIDRevert reverts the Admin SP back to factory defaults. The caller must
// already have authenticated as the PSID authority before invoking this:
// the method itself is an ordinary Admin-SP RevertSP, the PSID-ness comes
// entirely from which authority the session is using.
func PSIDRevert(s *session.Session) error {
	mc := method.NewMethodCall(uid.InvokingID(uid.AdminSP), uid.MethodIDRevertSP, s.MethodFlags)
	_, err := s.ExecuteMethod(mc)
	return err
}

// Erase invokes the Erase method on object directly, as opposed to the
// Enterprise-SSC-specific EraseBand wrapper.
func Erase(s *session.Session, object uid.InvokingID) error {
	mc := method.NewMethodCall(object, uid.MethodIDErase, s.MethodFlags)
	_, err := s.ExecuteMethod(mc)
	return err
}

// GetActiveKey reads a locking range's ActiveKey column.
func GetActiveKey(s *session.Session, rangeRow uid.RowUID) (uid.RowUID, error) {
	v, err := GetCell(s, rangeRow, ColumnActiveKey, "ActiveKey")
	if err != nil {
		return uid.RowUID{}, err
	}
	b, ok := v.([]byte)
	if !ok || len(b) != 8 {
		return uid.RowUID{}, method.ErrMalformedMethodResponse
	}
	var r uid.RowUID
	copy(r[:], b)
	return r, nil
}
