// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package uid carries the well-known 8-byte object identifiers defined by
// the TCG Storage Core Specification §6.1/§6.3: security providers, tables,
// authorities, method UIDs and the session-manager invoker.
package uid

import "fmt"

// UID is a general type which all UID shall be based upon.
// Specified in TCG Storage Architecture Core Specification Version 2.01 - Rev 1.0
type UID [8]byte

// RowUID addresses a row inside an object table.
type RowUID UID

// InvokingID addresses the object a method call is sent to.
type InvokingID UID

// MethodID addresses the method being invoked.
type MethodID UID

// SPID addresses a Security Provider.
type SPID UID

// TableUID addresses a table as a whole (as opposed to one of its rows).
type TableUID UID

// AuthorityObjectUID addresses an authority row within an Authority table.
type AuthorityObjectUID UID

// IsNull reports whether u is the all-zero null UID.
func (u UID) IsNull() bool {
	return u == UID{}
}

func (u UID) String() string {
	return fmt.Sprintf("%02x%02x%02x%02x%02x%02x%02x%02x",
		u[0], u[1], u[2], u[3], u[4], u[5], u[6], u[7])
}

func (u RowUID) String() string             { return UID(u).String() }
func (u InvokingID) String() string         { return UID(u).String() }
func (u MethodID) String() string           { return UID(u).String() }
func (u SPID) String() string               { return UID(u).String() }
func (u TableUID) String() string           { return UID(u).String() }
func (u AuthorityObjectUID) String() string { return UID(u).String() }

// Well-known invoking IDs. See Core Spec "5.2.1 Invoking IDs".
var (
	InvokeIDNull   = InvokingID{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	InvokeIDThisSP = InvokingID{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	InvokeIDSMU    = InvokingID{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF}
)

// Session Manager methods. See Core Spec Table 241, "SMUID Method UIDs".
var (
	MethodIDSMProperties   = MethodID{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x01}
	MethodIDSMStartSession = MethodID{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x02}
	MethodIDSMSyncSession  = MethodID{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x03}
	MethodIDSMStartTrusted = MethodID{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x04}
	MethodIDSMSyncTrusted  = MethodID{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x05}
	MethodIDSMCloseSession = MethodID{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x06}
)

// Core V2.0 methods. See Core Spec Table 242, "Base Template Method UIDs".
var (
	MethodIDGet          = MethodID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x06}
	MethodIDSet          = MethodID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x07}
	MethodIDNext         = MethodID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x08}
	MethodIDAuthenticate = MethodID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x1C}
	MethodIDGenKey       = MethodID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x10}
	MethodIDRevertSP     = MethodID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x11}
	MethodIDGetACL       = MethodID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x0D}
	MethodIDCreateRow    = MethodID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x09}
	MethodIDDeleteRow    = MethodID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x0A}
	MethodIDAssign       = MethodID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x0B}
	MethodIDRemove       = MethodID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x0C}
	MethodIDRevert       = MethodID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x02, 0x02}
	MethodIDActivate     = MethodID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x02, 0x03}
	MethodIDErase        = MethodID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x08, 0x03}
	MethodIDRandom       = MethodID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x06, 0x01}
	MethodIDGetClock     = MethodID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x04, 0x01}

	// Enterprise SSC reuses the same Get/Set/Authenticate method UIDs as
	// Core V2.0 but addresses optional parameters by name instead of by
	// uinteger ID (see method.MethodFlagOptionalAsName).
	MethodIDEnterpriseGet          = MethodIDGet
	MethodIDEnterpriseSet          = MethodIDSet
	MethodIDEnterpriseAuthenticate = MethodIDAuthenticate
	MethodIDEraseEnterprise        = MethodIDErase
)

// Security providers. See Core Spec Table 238.
var (
	AdminSP             = SPID{0x00, 0x00, 0x02, 0x05, 0x00, 0x00, 0x00, 0x01}
	LockingSP           = SPID{0x00, 0x00, 0x02, 0x05, 0x00, 0x00, 0x00, 0x02}
	EnterpriseLockingSP = SPID{0x00, 0x00, 0x02, 0x05, 0x00, 0x01, 0x00, 0x01}
)

// Admin SP authorities.
var (
	AuthorityAnybody = AuthorityObjectUID{0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x01}
	AuthoritySID     = AuthorityObjectUID{0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x06}
	AuthorityPSID    = AuthorityObjectUID{0x00, 0x00, 0x00, 0x09, 0x00, 0x01, 0xFF, 0x01}
	AuthorityMSID    = AuthorityObjectUID{0x00, 0x00, 0x00, 0x09, 0x00, 0x01, 0xFF, 0x00}
)

// Locking SP authorities.
var (
	LockingAuthorityBandMaster0 = AuthorityObjectUID{0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x80, 0x01}
	LockingAuthorityAdmin1      = AuthorityObjectUID{0x00, 0x00, 0x00, 0x09, 0x00, 0x01, 0x00, 0x01}
	LockingAuthorityEraseMaster = AuthorityObjectUID{0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x84, 0x01}
)

// AdminN returns the authority UID for Admin<n> (n >= 1).
func AdminN(n uint32) AuthorityObjectUID {
	return AuthorityObjectUID{0x00, 0x00, 0x00, 0x09, 0x00, 0x01, byte(n >> 8), byte(n)}
}

// UserN returns the authority UID for User<n> (n >= 1).
func UserN(n uint32) AuthorityObjectUID {
	return AuthorityObjectUID{0x00, 0x00, 0x00, 0x09, 0x00, 0x03, byte(n >> 8), byte(n)}
}

// LockingRangeN returns the locking-range row UID for Locking Range <n>,
// where n == 0 is the Global Range.
func LockingRangeN(n uint32) RowUID {
	return RowUID{0x00, 0x00, 0x08, 0x02, 0x00, 0x00, byte((n + 1) >> 8), byte(n + 1)}
}

// BandMasterN returns the Enterprise BandMaster<n> authority UID.
func BandMasterN(n uint32) AuthorityObjectUID {
	return AuthorityObjectUID{0x00, 0x00, 0x00, 0x09, 0x00, 0x00, byte(0x80 | ((n + 1) >> 8)), byte(n + 1)}
}

// AceLockingRangeSetRdLocked returns the ACE row UID governing who may set
// ReadLocked on locking range n (0 == Global Range).
func AceLockingRangeSetRdLocked(n uint32) RowUID {
	if n == 0 {
		return RowUID{0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x01}
	}
	v := uint64(0x0000000800030000) + uint64(n)*2 - 1
	return rowUIDFromUint64(v)
}

// AceLockingRangeSetWrLocked returns the ACE row UID governing who may set
// WriteLocked on locking range n (0 == Global Range).
func AceLockingRangeSetWrLocked(n uint32) RowUID {
	if n == 0 {
		return RowUID{0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x02}
	}
	v := uint64(0x0000000800030000) + uint64(n)*2
	return rowUIDFromUint64(v)
}

func rowUIDFromUint64(v uint64) RowUID {
	var r RowUID
	for i := 7; i >= 0; i-- {
		r[i] = byte(v)
		v >>= 8
	}
	return r
}

// CPINRowForAuthority returns the C_PIN table row backing the credential of
// the given authority, following the Core Spec convention that the C_PIN row
// UID mirrors the authority row UID with table 0x0B00 substituted for 0x0009.
func CPINRowForAuthority(a AuthorityObjectUID) RowUID {
	return RowUID{0x00, 0x00, 0x0B, 0x00, a[4], a[5], a[6], a[7]}
}

// Tables and well-known object/table rows.
var (
	Table_Table         = TableUID{0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}
	Table_SPInfo        = TableUID{0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00}
	Table_SPTemplates   = TableUID{0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00}
	Table_MethodID      = TableUID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x00}
	Table_ACE           = TableUID{0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00}
	Table_Authority     = TableUID{0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x00}
	Table_C_PIN         = TableUID{0x00, 0x00, 0x0B, 0x00, 0x00, 0x00, 0x00, 0x00}
	Table_SecretProtect = TableUID{0x00, 0x00, 0x00, 0x0F, 0x00, 0x00, 0x00, 0x00}
	Table_LockingInfo   = TableUID{0x00, 0x00, 0x08, 0x01, 0x00, 0x00, 0x00, 0x00}
	Table_Locking       = TableUID{0x00, 0x00, 0x08, 0x02, 0x00, 0x00, 0x00, 0x00}
	Table_MBRControl    = TableUID{0x00, 0x00, 0x08, 0x03, 0x00, 0x00, 0x00, 0x00}
	Table_MBR           = TableUID{0x00, 0x00, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00}
	Table_K_AES_256     = TableUID{0x00, 0x00, 0x08, 0x09, 0x00, 0x00, 0x00, 0x00}
	Table_DataStore     = TableUID{0x00, 0x00, 0x10, 0x01, 0x00, 0x00, 0x00, 0x00}

	GlobalRangeRowUID        = RowUID{0x00, 0x00, 0x08, 0x02, 0x00, 0x00, 0x00, 0x01}
	LockingGlobalRange       = RowUID{0x00, 0x00, 0x08, 0x02, 0x00, 0x00, 0x00, 0x01}
	LockingInfoObj           = RowUID{0x00, 0x00, 0x08, 0x01, 0x00, 0x00, 0x00, 0x01}
	EnterpriseLockingInfoObj = RowUID{0x00, 0x00, 0x08, 0x01, 0x00, 0x00, 0x00, 0x01}
	MBRControlObj            = RowUID{0x00, 0x00, 0x08, 0x03, 0x00, 0x00, 0x00, 0x01}
	Locking_MBRTable         = TableUID{0x00, 0x00, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00}
	Locking_LockingTable     = TableUID{0x00, 0x00, 0x08, 0x02, 0x00, 0x00, 0x00, 0x00}
	Locking_SecretProtect    = TableUID{0x00, 0x00, 0x00, 0x0F, 0x00, 0x00, 0x00, 0x00}
	Admin_TPerInfoObj        = RowUID{0x00, 0x00, 0x02, 0x01, 0x00, 0x00, 0x00, 0x01}

	Admin_C_PIN_SIDRow      = RowUID{0x00, 0x00, 0x0B, 0x00, 0x00, 0x00, 0x00, 0x01}
	Admin_C_PIN_MSIDRow     = RowUID{0x00, 0x00, 0x0B, 0x00, 0x00, 0x00, 0x84, 0x02}
	Admin_C_PIN_Admin1Row   = RowUID{0x00, 0x00, 0x0B, 0x00, 0x00, 0x01, 0x00, 0x01}
	Admin_C_Pin_BandMaster0 = RowUID{0x00, 0x00, 0x0B, 0x00, 0x00, 0x00, 0x80, 0x01}
	Admin_C_Pin_EraseMaster = RowUID{0x00, 0x00, 0x0B, 0x00, 0x00, 0x00, 0x84, 0x01}
)

// Base_TableRowForTable returns the row UID in the Table table that
// describes the given table (used for table-descriptor reads such as
// MBR table sizing).
func Base_TableRowForTable(t TableUID) RowUID {
	return RowUID{0x00, 0x00, 0x00, 0x01, t[4], t[5], t[6], t[7]}
}
