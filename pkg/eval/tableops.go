package eval

import (
	"github.com/sedctl/tcgcore/pkg/core/sscerr"
	"github.com/sedctl/tcgcore/pkg/core/table"
	"github.com/sedctl/tcgcore/pkg/core/uid"
)

// SetParam is one optional-parameter/value pair for SetRow. Value must be a
// bool, uint, int or []byte; anything else is rejected at call time.
type SetParam struct {
	ID    uint
	Name  string
	Value interface{}
}

// GetFullRow reads every column of row, returning map[string]interface{}
// keyed by column ID (Core V2.0) or column name (Enterprise).
func (e *Evaluator) GetFullRow(row uid.RowUID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("GetFullRow", err)
	}
	v, err := table.GetFullRow(e.s, row)
	if err != nil {
		return fail("GetFullRow", err)
	}
	return ok("GetFullRow", v, nil)
}

// GetCell reads a single column of row.
func (e *Evaluator) GetCell(row uid.RowUID, column uint, columnName string) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("GetCell", err)
	}
	v, err := table.GetCell(e.s, row, column, columnName)
	if err != nil {
		return fail("GetCell", err)
	}
	return ok("GetCell", v, nil)
}

// GetPartialRow reads the column range [startCol, endCol] of row.
func (e *Evaluator) GetPartialRow(row uid.RowUID, startCol uint, startColName string, endCol uint, endColName string) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("GetPartialRow", err)
	}
	v, err := table.GetPartialRow(e.s, row, startCol, startColName, endCol, endColName)
	if err != nil {
		return fail("GetPartialRow", err)
	}
	return ok("GetPartialRow", v, nil)
}

// Enumerate lists the row UIDs of tbl, the generic operation backing
// Authority/ACE/Locking-range enumeration alike.
func (e *Evaluator) Enumerate(tbl uid.TableUID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("Enumerate", err)
	}
	v, err := table.Enumerate(e.s, tbl)
	if err != nil {
		return fail("Enumerate", err)
	}
	return ok("Enumerate", v, nil)
}

// SetRow writes params to row via the Base Template Set method, the generic
// operation backing every named table's row update (Authority, ACE,
// Locking range, C_PIN, ...) that has no dedicated wrapper below.
func (e *Evaluator) SetRow(row uid.RowUID, params []SetParam) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SetRow", err)
	}
	mc := table.NewSetCall(e.s, row)
	for _, p := range params {
		mc.StartOptionalParameter(p.ID, p.Name)
		switch v := p.Value.(type) {
		case bool:
			mc.Bool(v)
		case uint:
			mc.UInt(v)
		case int:
			mc.Int(v)
		case []byte:
			mc.Bytes(v)
		default:
			return fail("SetRow", sscerr.Newf(sscerr.KindInvalidArgument, "unsupported SetParam value type %T for column %s", v, p.Name))
		}
		mc.EndOptionalParameter()
	}
	table.FinishSetCall(e.s, mc)
	resp, err := e.s.ExecuteMethod(mc)
	if err != nil {
		return fail("SetRow", err)
	}
	return ok("SetRow", row, resp)
}

// BaseMethodIsSupported probes whether the TPer accepts mid against its own
// Method table, the capability check callers use before trying an optional
// method (e.g. Activate on a drive that never implements it).
func (e *Evaluator) BaseMethodIsSupported(mid uid.MethodID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("BaseMethodIsSupported", err)
	}
	return ok("BaseMethodIsSupported", table.Base_Method_IsSupported(e.s, mid), nil)
}

// TPerInfo reads the Admin SP's TPerInfo row.
func (e *Evaluator) TPerInfo() *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("TPerInfo", err)
	}
	v, err := table.Admin_TPerInfo(e.s)
	if err != nil {
		return fail("TPerInfo", err)
	}
	return ok("TPerInfo", v, nil)
}

// SPLifeCycleState reads spid's lifecycle state column.
func (e *Evaluator) SPLifeCycleState(spid uid.SPID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SPLifeCycleState", err)
	}
	v, err := table.Admin_SP_GetLifeCycleState(e.s, spid)
	if err != nil {
		return fail("SPLifeCycleState", err)
	}
	return ok("SPLifeCycleState", v, nil)
}

// GetMSIDPIN reads the factory-default MSID credential, the PIN every
// Locking SSC drive ships unlocked with until the owner takes it over.
func (e *Evaluator) GetMSIDPIN() *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("GetMSIDPIN", err)
	}
	v, err := table.Admin_C_PIN_MSID_GetPIN(e.s)
	if err != nil {
		return fail("GetMSIDPIN", err)
	}
	return ok("GetMSIDPIN", v, nil)
}

// SetSIDPIN sets the Admin SP's SID credential to the already-hashed pinHash.
func (e *Evaluator) SetSIDPIN(pinHash []byte) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SetSIDPIN", err)
	}
	if err := table.Admin_C_Pin_SID_SetPIN(e.s, pinHash); err != nil {
		return fail("SetSIDPIN", err)
	}
	return ok("SetSIDPIN", nil, nil)
}

// SetAdmin1PIN sets the Locking SP's Admin1 credential to pinHash.
func (e *Evaluator) SetAdmin1PIN(pinHash []byte) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SetAdmin1PIN", err)
	}
	if err := table.Admin_C_Pin_Admin1_SetPIN(e.s, pinHash); err != nil {
		return fail("SetAdmin1PIN", err)
	}
	return ok("SetAdmin1PIN", nil, nil)
}

// CPINInfo reads the SID credential's C_PIN row (try limit, try count,
// persistence), the operation behind "password hashing utilities and
// TryLimit read".
func (e *Evaluator) CPINInfo() *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("CPINInfo", err)
	}
	v, err := table.CPINInfo(e.s)
	if err != nil {
		return fail("CPINInfo", err)
	}
	return ok("CPINInfo", v, nil)
}

// ActivateLockingSP activates the Locking SP template against the Admin SP
// session (Core Spec "Activate" method on the SP's InvokingID).
func (e *Evaluator) ActivateLockingSP() *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("ActivateLockingSP", err)
	}
	if err := table.LockingSPActivate(e.s); err != nil {
		return fail("ActivateLockingSP", err)
	}
	return ok("ActivateLockingSP", nil, nil)
}

// RevertLockingSP reverts the Locking SP to its factory state. keep
// preserves the Global Range's key (Opal's KeepGlobalRangeKey parameter)
// instead of erasing all data.
func (e *Evaluator) RevertLockingSP(keep bool) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("RevertLockingSP", err)
	}
	if err := table.RevertLockingSP(e.s, keep); err != nil {
		return fail("RevertLockingSP", err)
	}
	return ok("RevertLockingSP", keep, nil)
}

// LockingInfo reads the Locking SP's LockingInfo row (range count limits,
// encryption support, alignment).
func (e *Evaluator) LockingInfo() *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("LockingInfo", err)
	}
	v, err := table.LockingInfo(e.s)
	if err != nil {
		return fail("LockingInfo", err)
	}
	return ok("LockingInfo", v, nil)
}

// LockingRanges enumerates every row UID in the Locking table.
func (e *Evaluator) LockingRanges() *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("LockingRanges", err)
	}
	v, err := table.Locking_Enumerate(e.s)
	if err != nil {
		return fail("LockingRanges", err)
	}
	return ok("LockingRanges", v, nil)
}

// LockingRange reads one locking range's row.
func (e *Evaluator) LockingRange(row uid.RowUID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("LockingRange", err)
	}
	v, err := table.Locking_Get(e.s, row)
	if err != nil {
		return fail("LockingRange", err)
	}
	return ok("LockingRange", v, nil)
}

// SetLockingRange writes the non-nil fields of row back to the Locking
// table (bounds, lock-enable flags, lock state).
func (e *Evaluator) SetLockingRange(row *table.LockingRow) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SetLockingRange", err)
	}
	if err := table.Locking_Set(e.s, row); err != nil {
		return fail("SetLockingRange", err)
	}
	return ok("SetLockingRange", row.UID, nil)
}

// ConfigureLockingRange disables read/write lock enforcement on the Global
// Range, the setup step sedutil-cli performs before handing a freshly
// activated Locking SP over to BitLocker/dm-crypt style callers.
func (e *Evaluator) ConfigureLockingRange() *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("ConfigureLockingRange", err)
	}
	if err := table.ConfigureLockingRange(e.s); err != nil {
		return fail("ConfigureLockingRange", err)
	}
	return ok("ConfigureLockingRange", nil, nil)
}

// SecretProtect lists the Locking SP's SecretProtect rows, describing which
// protection mechanism gates each protected table/column.
func (e *Evaluator) SecretProtect() *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SecretProtect", err)
	}
	v, err := table.LockingSecretProtect(e.s)
	if err != nil {
		return fail("SecretProtect", err)
	}
	return ok("SecretProtect", v, nil)
}

// MBRTableInfo reads the Shadow MBR table's size and alignment, used to
// size MBRRead/LoadPBAImage transfers.
func (e *Evaluator) MBRTableInfo() *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("MBRTableInfo", err)
	}
	v, err := table.MBR_TableInfo(e.s)
	if err != nil {
		return fail("MBRTableInfo", err)
	}
	return ok("MBRTableInfo", v, nil)
}

// MBRRead reads len(p) bytes of the Shadow MBR table starting at off into p.
func (e *Evaluator) MBRRead(p []byte, off uint32) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("MBRRead", err)
	}
	n, err := table.MBR_Read(e.s, p, off)
	if err != nil {
		return fail("MBRRead", err)
	}
	return ok("MBRRead", n, nil)
}

// LoadPBAImage uploads image into the Shadow MBR table, chunked to the
// negotiated MaxIndTokenSize rather than a fixed boundary.
func (e *Evaluator) LoadPBAImage(image []byte) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("LoadPBAImage", err)
	}
	if err := table.LoadPBAImage(e.s, image); err != nil {
		return fail("LoadPBAImage", err)
	}
	return ok("LoadPBAImage", len(image), nil)
}

// MBRControl sets the Shadow MBR's Enable/Done/MBRDoneOnReset columns.
func (e *Evaluator) MBRControl(c *table.MBRControl) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("MBRControl", err)
	}
	if err := table.MBRControl_Set(e.s, c); err != nil {
		return fail("MBRControl", err)
	}
	return ok("MBRControl", c, nil)
}

// SetBandMaster0Pin sets the Enterprise BandMaster0 authority's credential.
func (e *Evaluator) SetBandMaster0Pin(pinHash []byte) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SetBandMaster0Pin", err)
	}
	if err := table.SetBandMaster0Pin(e.s, pinHash); err != nil {
		return fail("SetBandMaster0Pin", err)
	}
	return ok("SetBandMaster0Pin", nil, nil)
}

// SetBandMasterPassword sets the credential of the BandMaster<bandID>
// authority backing Enterprise band bandID.
func (e *Evaluator) SetBandMasterPassword(bandID uint32, newPIN []byte) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SetBandMasterPassword", err)
	}
	if err := table.SetBandMasterPassword(e.s, bandID, newPIN); err != nil {
		return fail("SetBandMasterPassword", err)
	}
	return ok("SetBandMasterPassword", bandID, nil)
}

// SetEraseMasterPin sets the Enterprise EraseMaster authority's credential.
func (e *Evaluator) SetEraseMasterPin(pinHash []byte) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SetEraseMasterPin", err)
	}
	if err := table.SetEraseMasterPin(e.s, pinHash); err != nil {
		return fail("SetEraseMasterPin", err)
	}
	return ok("SetEraseMasterPin", nil, nil)
}

// EraseBand cryptographically erases the Enterprise band addressed by band
// (e.g. uid.InvokingID(uid.LockingRangeN(n))).
func (e *Evaluator) EraseBand(band uid.InvokingID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("EraseBand", err)
	}
	if err := table.EraseBand(e.s, band); err != nil {
		return fail("EraseBand", err)
	}
	return ok("EraseBand", band, nil)
}

// EnableGlobalRangeEnterprise enables and locks (read and write) the
// Enterprise Global Range, the Enterprise equivalent of ConfigureLockingRange.
func (e *Evaluator) EnableGlobalRangeEnterprise() *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("EnableGlobalRangeEnterprise", err)
	}
	if err := table.EnableGlobalRangeEnterprise(e.s); err != nil {
		return fail("EnableGlobalRangeEnterprise", err)
	}
	return ok("EnableGlobalRangeEnterprise", nil, nil)
}

// UnlockGlobalRangeEnterprise clears the read/write locked flags on band.
func (e *Evaluator) UnlockGlobalRangeEnterprise(band uid.RowUID) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("UnlockGlobalRangeEnterprise", err)
	}
	if err := table.UnlockGlobalRangeEnterprise(e.s, band); err != nil {
		return fail("UnlockGlobalRangeEnterprise", err)
	}
	return ok("UnlockGlobalRangeEnterprise", band, nil)
}

// SetBandLockOnReset sets an Enterprise band's LockOnReset column.
func (e *Evaluator) SetBandLockOnReset(bandID uint32, lockOnReset bool) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("SetBandLockOnReset", err)
	}
	if err := table.SetBandLockOnReset(e.s, bandID, lockOnReset); err != nil {
		return fail("SetBandLockOnReset", err)
	}
	return ok("SetBandLockOnReset", lockOnReset, nil)
}

// EraseAllBands erases Enterprise bands 0..maxBands-1, stopping at the
// first failure.
func (e *Evaluator) EraseAllBands(maxBands uint32) *RawResult {
	if err := e.requireSession(); err != nil {
		return fail("EraseAllBands", err)
	}
	if err := table.EraseAllBands(e.s, maxBands); err != nil {
		return fail("EraseAllBands", err)
	}
	return ok("EraseAllBands", maxBands, nil)
}
