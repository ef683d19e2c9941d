// Implements TCG Storage Core Table operations: the generic Get/Set/Next
// methods that every object and byte table exposes, independent of which
// table is being addressed.

package table

import (
	"errors"
	"fmt"

	"github.com/sedctl/tcgcore/pkg/core/method"
	"github.com/sedctl/tcgcore/pkg/core/session"
	"github.com/sedctl/tcgcore/pkg/core/stream"
	"github.com/sedctl/tcgcore/pkg/core/uid"
)

type TableUID [8]byte

var (
	CellBlock_StartRow    uint = 1
	CellBlock_EndRow      uint = 2
	CellBlock_StartColumn uint = 3
	CellBlock_EndColumn   uint = 4

	Table_ColumnUID uint = 0

	ErrEmptyResult = errors.New("empty result")
)

func getMethodID(s *session.Session) uid.MethodID {
	if s.ProtocolLevel == session.ProtocolLevelEnterprise {
		return uid.MethodIDEnterpriseGet
	}
	return uid.MethodIDGet
}

func setMethodID(s *session.Session) uid.MethodID {
	if s.ProtocolLevel == session.ProtocolLevelEnterprise {
		return uid.MethodIDEnterpriseSet
	}
	return uid.MethodIDSet
}

func GetCell(s *session.Session, row uid.RowUID, column uint, columnName string) (interface{}, error) {
	m, err := GetPartialRow(s, row, column, columnName, column, columnName)
	if err != nil {
		return nil, err
	}
	for _, v := range m {
		return v, nil
	}
	return nil, ErrEmptyResult
}

func GetPartialRow(s *session.Session, row uid.RowUID, startCol uint, startColName string, endCol uint, endColName string) (map[string]interface{}, error) {
	mc := method.NewMethodCall(uid.InvokingID(row), getMethodID(s), s.MethodFlags)
	mc.StartList()
	mc.StartOptionalParameter(CellBlock_StartColumn, "startColumn")
	if s.ProtocolLevel == session.ProtocolLevelEnterprise {
		mc.Bytes([]byte(startColName))
	} else {
		mc.UInt(startCol)
	}
	mc.EndOptionalParameter()
	mc.StartOptionalParameter(CellBlock_EndColumn, "endColumn")
	if s.ProtocolLevel == session.ProtocolLevelEnterprise {
		mc.Bytes([]byte(endColName))
	} else {
		mc.UInt(endCol)
	}
	mc.EndOptionalParameter()
	mc.EndList()
	resp, err := s.ExecuteMethod(mc)
	if err != nil {
		return nil, err
	}
	// The Enterprise Get has an extra level of lists.
	if s.ProtocolLevel == session.ProtocolLevelEnterprise {
		var ok bool
		resp, ok = resp[0].(stream.List)
		if !ok {
			return nil, method.ErrMalformedMethodResponse
		}
	}
	val, err := parseGetResult(resp)
	if err != nil {
		return nil, err
	}
	if len(val) == 0 {
		return nil, ErrEmptyResult
	}
	return val, nil
}

func GetFullRow(s *session.Session, row uid.RowUID) (map[string]interface{}, error) {
	mc := method.NewMethodCall(uid.InvokingID(row), getMethodID(s), s.MethodFlags)
	mc.StartList()
	mc.EndList()
	resp, err := s.ExecuteMethod(mc)
	if err != nil {
		return nil, err
	}
	// The Enterprise Get has an extra level of lists.
	if s.ProtocolLevel == session.ProtocolLevelEnterprise {
		var ok bool
		resp, ok = resp[0].(stream.List)
		if !ok {
			return nil, method.ErrMalformedMethodResponse
		}
	}
	val, err := parseGetResult(resp)
	if err != nil {
		return nil, err
	}
	if len(val) == 0 {
		return nil, ErrEmptyResult
	}
	return val, nil
}

func Enumerate(s *session.Session, table uid.TableUID) ([]uid.RowUID, error) {
	mc := method.NewMethodCall(uid.InvokingID(table), uid.MethodIDNext, s.MethodFlags)
	resp, err := s.ExecuteMethod(mc)
	if err != nil {
		return nil, err
	}
	result, ok := resp[0].(stream.List)
	if !ok {
		return nil, method.ErrMalformedMethodResponse
	}
	uidrefs, ok := result[0].(stream.List)
	if !ok {
		return nil, method.ErrMalformedMethodResponse
	}
	res := []uid.RowUID{}
	for _, ur := range uidrefs {
		br, ok := ur.([]byte)
		if !ok || len(br) != 8 {
			return nil, method.ErrMalformedMethodResponse
		}
		r := uid.RowUID{}
		copy(r[:], br)
		res = append(res, r)
	}
	return res, nil
}

func parseGetResult(res stream.List) (map[string]interface{}, error) {
	methodResult, ok := res[0].(stream.List)
	if !ok {
		return nil, method.ErrMalformedMethodResponse
	}
	if len(methodResult) == 0 {
		return nil, ErrEmptyResult
	}
	inner, ok := methodResult[0].(stream.List)
	if !ok {
		return nil, method.ErrMalformedMethodResponse
	}
	if len(inner) == 0 {
		return nil, ErrEmptyResult
	}
	return parseRowValues(inner)
}

// parseRowValues parses a RowValues return value into a map.
//
// The Enterprise SSC relies on sending ASCII column names instead of
// uinteger IDs the way the Core V2.0 spec does, so both are supported.
func parseRowValues(rv stream.List) (map[string]interface{}, error) {
	res := map[string]interface{}{}
	for i := range rv {
		if stream.EqualToken(rv[i], stream.StartName) {
			colID, okID := rv[i+1].(uint)
			colRawName, okString := rv[i+1].([]byte)
			if !okID && !okString {
				return nil, method.ErrMalformedMethodResponse
			}
			colName := ""
			if okID {
				colName = fmt.Sprintf("%d", colID)
			}
			if okString {
				colName = string(colRawName)
			}
			if !stream.EqualToken(rv[i+2], stream.EndName) {
				res[colName] = rv[i+2]
			}
		}
	}
	return res, nil
}

func NewSetCall(s *session.Session, row uid.RowUID) *method.MethodCall {
	mc := method.NewMethodCall(uid.InvokingID(row), setMethodID(s), s.MethodFlags)
	if s.ProtocolLevel == session.ProtocolLevelEnterprise {
		// The two first arguments in ESET are required, and RowValues has an extra list.
		mc.StartList()
		mc.EndList()
		mc.StartList()
		mc.StartList()
	} else {
		mc.StartOptionalParameter(1, "Values")
		mc.StartList()
	}
	return mc
}

func FinishSetCall(s *session.Session, mc *method.MethodCall) {
	if s.ProtocolLevel == session.ProtocolLevelEnterprise {
		mc.EndList()
		mc.EndList()
	} else {
		mc.EndList()
		mc.EndOptionalParameter()
	}
}
