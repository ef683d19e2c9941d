// Implements TCG Storage Core Table operations on the Base Table itself
// (the Table table's own Table row), used to probe whether an optional
// method is implemented by a given table before calling it.

package table

import (
	"github.com/sedctl/tcgcore/pkg/core/method"
	"github.com/sedctl/tcgcore/pkg/core/session"
	"github.com/sedctl/tcgcore/pkg/core/uid"
)

var (
	Base_TableTable    = TableUID{0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}
	Base_MethodIDTable = TableUID{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x00}
)

// Base_Method_IsSupported probes whether method m is implemented by
// issuing a Get against its row in the MethodID table, discarding the
// result and reporting only whether the call succeeded.
func Base_Method_IsSupported(s *session.Session, m uid.MethodID) bool {
	mc := method.NewMethodCall(uid.InvokingID(m), getMethodID(s), s.MethodFlags)
	mc.StartList()
	mc.StartOptionalParameter(CellBlock_StartColumn, "startColumn")
	mc.UInt(Table_ColumnUID)
	mc.EndOptionalParameter()
	mc.StartOptionalParameter(CellBlock_EndColumn, "endColumn")
	mc.UInt(Table_ColumnUID)
	mc.EndOptionalParameter()
	mc.EndList()
	_, err := s.ExecuteMethod(mc)
	return err == nil
}
