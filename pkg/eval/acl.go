package eval

import (
	"github.com/sedctl/tcgcore/pkg/core/table"
	"github.com/sedctl/tcgcore/pkg/core/uid"
)

// GetACL returns the ACE row UIDs governing invocation of methodUID on
// invokingUID.
func (e *Evaluator) GetACL(invokingUID uid.InvokingID, methodUID uid.MethodID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("GetACL", err)
	}
	v, err := table.GetACL(e.s, invokingUID, methodUID)
	if err != nil {
		return fail("GetACL", err)
	}
	return ok("GetACL", v, nil)
}

// CreateRow creates a new row in tbl.
func (e *Evaluator) CreateRow(tbl uid.TableUID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("CreateRow", err)
	}
	resp, err := table.CreateRow(e.s, tbl)
	if err != nil {
		return fail("CreateRow", err)
	}
	return ok("CreateRow", resp, resp)
}

// DeleteRow deletes row.
func (e *Evaluator) DeleteRow(row uid.RowUID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("DeleteRow", err)
	}
	if err := table.DeleteRow(e.s, row); err != nil {
		return fail("DeleteRow", err)
	}
	return ok("DeleteRow", row, nil)
}

// Assign grants authority access to row by adding it to tbl's ACL.
func (e *Evaluator) Assign(tbl uid.TableUID, row uid.RowUID, authority uid.AuthorityObjectUID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("Assign", err)
	}
	if err := table.Assign(e.s, tbl, row, authority); err != nil {
		return fail("Assign", err)
	}
	return ok("Assign", row, nil)
}

// Remove revokes authority access to row from tbl's ACL.
func (e *Evaluator) Remove(tbl uid.TableUID, row uid.RowUID, authority uid.AuthorityObjectUID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("Remove", err)
	}
	if err := table.Remove(e.s, tbl, row, authority); err != nil {
		return fail("Remove", err)
	}
	return ok("Remove", row, nil)
}

// GetClock reads the TPer's current clock value.
func (e *Evaluator) GetClock() *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("GetClock", err)
	}
	v, err := table.GetClock(e.s)
	if err != nil {
		return fail("GetClock", err)
	}
	return ok("GetClock", v, nil)
}

// IsAuthorityEnabled reports whether authority's Enabled column is set.
func (e *Evaluator) IsAuthorityEnabled(authority uid.AuthorityObjectUID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("IsAuthorityEnabled", err)
	}
	v, err := table.IsAuthorityEnabled(e.s, authority)
	if err != nil {
		return fail("IsAuthorityEnabled", err)
	}
	return ok("IsAuthorityEnabled", v, nil)
}

// SetAuthorityEnabled enables or disables authority.
func (e *Evaluator) SetAuthorityEnabled(authority uid.AuthorityObjectUID, enabled bool) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SetAuthorityEnabled", err)
	}
	if err := table.SetAuthorityEnabled(e.s, authority, enabled); err != nil {
		return fail("SetAuthorityEnabled", err)
	}
	return ok("SetAuthorityEnabled", enabled, nil)
}

// GetAceInfo reads the BooleanExpr of an ACE row.
func (e *Evaluator) GetAceInfo(aceRow uid.RowUID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("GetAceInfo", err)
	}
	v, err := table.GetAceInfo(e.s, aceRow)
	if err != nil {
		return fail("GetAceInfo", err)
	}
	return ok("GetAceInfo", v, nil)
}

// AssignUserToRange grants userID the User_<userID>-or-Admin1 ACE on
// locking range rangeID's RdLocked/WrLocked columns.
func (e *Evaluator) AssignUserToRange(userID uint32, rangeID uint32) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("AssignUserToRange", err)
	}
	if err := table.AssignUserToRange(e.s, userID, rangeID); err != nil {
		return fail("AssignUserToRange", err)
	}
	return ok("AssignUserToRange", rangeID, nil)
}

// PSIDRevert reverts the Admin SP to factory defaults. The caller must
// already be authenticated as the PSID authority.
func (e *Evaluator) PSIDRevert() *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("PSIDRevert", err)
	}
	if err := table.PSIDRevert(e.s); err != nil {
		return fail("PSIDRevert", err)
	}
	return ok("PSIDRevert", nil, nil)
}

// Erase invokes the Erase method on object directly.
func (e *Evaluator) Erase(object uid.InvokingID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("Erase", err)
	}
	if err := table.Erase(e.s, object); err != nil {
		return fail("Erase", err)
	}
	return ok("Erase", object, nil)
}

// GetActiveKey reads a locking range's ActiveKey column.
func (e *Evaluator) GetActiveKey(rangeRow uid.RowUID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("GetActiveKey", err)
	}
	v, err := table.GetActiveKey(e.s, rangeRow)
	if err != nil {
		return fail("GetActiveKey", err)
	}
	return ok("GetActiveKey", v, nil)
}

// SetUint writes a single uint-valued column on row.
func (e *Evaluator) SetUint(row uid.RowUID, column uint, columnName string, v uint) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SetUint", err)
	}
	if err := table.SetUint(e.s, row, column, columnName, v); err != nil {
		return fail("SetUint", err)
	}
	return ok("SetUint", v, nil)
}

// SetBool writes a single boolean-valued column on row.
func (e *Evaluator) SetBool(row uid.RowUID, column uint, columnName string, v bool) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SetBool", err)
	}
	if err := table.SetBool(e.s, row, column, columnName, v); err != nil {
		return fail("SetBool", err)
	}
	return ok("SetBool", v, nil)
}

// SetBytes writes a single byte-string-valued column on row.
func (e *Evaluator) SetBytes(row uid.RowUID, column uint, columnName string, v []byte) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SetBytes", err)
	}
	if err := table.SetBytes(e.s, row, column, columnName, v); err != nil {
		return fail("SetBytes", err)
	}
	return ok("SetBytes", v, nil)
}

// SetMultiUint writes several numerically-addressed uint columns on row in
// a single Set call.
func (e *Evaluator) SetMultiUint(row uid.RowUID, columns map[uint]uint) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SetMultiUint", err)
	}
	if err := table.SetMultiUint(e.s, row, columns); err != nil {
		return fail("SetMultiUint", err)
	}
	return ok("SetMultiUint", columns, nil)
}
