// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Implements TCG Storage Core Data Stream: the tiny/short/medium/long atom
// encoding and the control-token set layered on top of it.
package stream

import (
	"bytes"
	"encoding/binary"

	"github.com/sedctl/tcgcore/pkg/core/sscerr"
)

type TokenType uint8

// List is a decoded token vector. StartList/EndList pairs are materialized
// as nested Lists rather than left as flat control tokens, so a caller
// walking a response never has to track bracket depth by hand.
type List []interface{}

var (
	StartList        TokenType = 0xF0
	EndList          TokenType = 0xF1
	StartName        TokenType = 0xF2
	EndName          TokenType = 0xF3
	Call             TokenType = 0xF8
	EndOfData        TokenType = 0xF9
	EndOfSession     TokenType = 0xFA
	StartTransaction TokenType = 0xFB
	EndTransaction   TokenType = 0xFC
	EmptyAtom        TokenType = 0xFF
	OpalFalse        TokenType = 0x00
	OpalTrue         TokenType = 0x01
	OpalValue        TokenType = 0x01
	OpalPIN          TokenType = 0x03
	OpalWhere        TokenType = 0x00
	ReadLockEnabled  TokenType = 0x05
	WriteLockEnabled TokenType = 0x06
)

// ErrUnbalancedList is returned when a token stream has more EndList tokens
// than StartList tokens, or leaves a list open at the top level.
var ErrUnbalancedList = sscerr.New(sscerr.KindInvalidToken, "message contained unbalanced list structures")

func (t *TokenType) String() string {
	switch *t {
	case (StartList):
		return "StartList"
	case (EndList):
		return "EndList"
	case (StartName):
		return "StartName"
	case (EndName):
		return "EndName"
	case (Call):
		return "Call"
	case (EndOfData):
		return "EndOfData"
	case (EndOfSession):
		return "EndOfSession"
	case (StartTransaction):
		return "StartTransaction"
	case (EndTransaction):
		return "EndTransaction"
	case (EmptyAtom):
		return "EmptyAtom"
	}
	return "<Unknown>"
}

// Token encodes a single control token.
func Token(tok TokenType) []byte {
	return []byte{byte(tok)}
}

// atomHeader builds the header bytes (without payload) for a short, medium
// or long atom of the given length carrying the given byte-sequence/signed
// flags. Tiny atoms are handled separately by their callers since they have
// no header/payload split at all.
func atomHeader(isByteSeq, isSigned bool, length int) []byte {
	switch {
	case length < 16:
		b := byte(0x80)
		if isByteSeq {
			b |= 0x20
		}
		if isSigned {
			b |= 0x10
		}
		b |= byte(length) & 0x0F
		return []byte{b}
	case length < 2048:
		b0 := byte(0xC0)
		if isByteSeq {
			b0 |= 0x10
		}
		if isSigned {
			b0 |= 0x08
		}
		b0 |= byte((length >> 8) & 0x07)
		return []byte{b0, byte(length & 0xFF)}
	default:
		b0 := byte(0xE0)
		if isByteSeq {
			b0 |= 0x02
		}
		if isSigned {
			b0 |= 0x01
		}
		return []byte{b0, byte(length >> 16), byte(length >> 8), byte(length)}
	}
}

// minimalUnsignedBytes returns the shortest big-endian encoding of v with no
// leading zero byte (except the single byte 0x00 for v == 0).
func minimalUnsignedBytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	i := 0
	for i < 7 && buf[i] == 0x00 {
		i++
	}
	return buf[i:]
}

// minimalSignedBytes returns the shortest two's-complement big-endian
// encoding of v. A positive value whose top byte would have its high bit
// set gets one extra 0x00 byte so it can't be mistaken for a negative one.
func minimalSignedBytes(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	i := 0
	for i < 7 {
		b0, b1 := buf[i], buf[i+1]
		if b0 == 0x00 && b1&0x80 == 0 {
			i++
			continue
		}
		if b0 == 0xFF && b1&0x80 != 0 {
			i++
			continue
		}
		break
	}
	return buf[i:]
}

// UInt encodes val as the smallest atom that can hold it: a tiny atom for
// 0..63, otherwise a short/medium/long unsigned atom with the minimum byte
// count.
func UInt(val uint) []byte {
	if val < 64 {
		return []byte{uint8(val)}
	}
	b := minimalUnsignedBytes(uint64(val))
	return append(atomHeader(false, false, len(b)), b...)
}

// Int encodes val as the smallest atom that can hold it: a tiny signed atom
// for -32..31, otherwise a short/medium/long signed atom with the minimum
// sign-preserving byte count.
func Int(val int) []byte {
	if val >= -32 && val <= 31 {
		v := byte(val) & 0x3F
		return []byte{0x40 | v}
	}
	b := minimalSignedBytes(int64(val))
	return append(atomHeader(false, true, len(b)), b...)
}

// Bytes encodes b as a byte-sequence atom. Tiny atoms are never used for
// byte sequences (3.2.2.3.1 Simple Tokens – Atoms Overview): even the empty
// sequence is a short atom with B=1, S=0, L=0.
func Bytes(b []byte) []byte {
	return append(atomHeader(true, false, len(b)), b...)
}

// NamedValue wraps pre-encoded name/value atom bytes in a StartName/EndName
// pair. value may itself be the concatenation of a full nested list
// (StartList ... EndList).
func NamedValue(name, value []byte) []byte {
	buf := make([]byte, 0, len(name)+len(value)+2)
	buf = append(buf, byte(StartName))
	buf = append(buf, name...)
	buf = append(buf, value...)
	buf = append(buf, byte(EndName))
	return buf
}

func decodeUnsignedInt(b []byte) uint {
	var v uint
	for _, by := range b {
		v = v<<8 | uint(by)
	}
	return v
}

func decodeSignedInt(b []byte) int {
	var v int64
	if len(b) > 0 && b[0]&0x80 != 0 {
		v = -1
	}
	for _, by := range b {
		v = v<<8 | int64(by)
	}
	return int(v)
}

// Decode parses a complete token stream into a nested List. StartList/
// EndList pairs become nested Lists rather than flat tokens.
func Decode(b []byte) (List, error) {
	res, rest, err := internalDecode(b, 0)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, ErrUnbalancedList
	}
	return res, nil
}

func internalDecode(b []byte, depth int) (List, []byte, error) {
	res := List{}
	for len(b) > 0 {
		s := 1
		var x interface{}
		switch {
		case b[0]&0x80 == 0:
			// Tiny atom: 00vvvvvv unsigned, 01vvvvvv signed (6-bit
			// sign-extended).
			if b[0]&0x40 == 0 {
				x = uint(b[0] & 0x3F)
			} else {
				v := int(b[0] & 0x3F)
				if v&0x20 != 0 {
					v -= 0x40
				}
				x = v
			}
		case b[0]&0xC0 == 0x80:
			// Short atom.
			isbyte := b[0]&0x20 > 0
			issigned := b[0]&0x10 > 0
			s = int(b[0] & 0xf)
			if len(b) < 1+s {
				return nil, nil, sscerr.New(sscerr.KindInvalidToken, "truncated short atom")
			}
			payload := b[1 : 1+s]
			switch {
			case isbyte:
				bc := make([]byte, s)
				copy(bc, payload)
				x = bc
			case issigned:
				x = decodeSignedInt(payload)
			default:
				x = decodeUnsignedInt(payload)
			}
			s += 1
		case b[0]&0xE0 == 0xC0:
			// Medium atom.
			if len(b) < 2 {
				return nil, nil, sscerr.New(sscerr.KindInvalidToken, "truncated medium atom header")
			}
			isbyte := b[0]&0x10 > 0
			issigned := b[0]&0x08 > 0
			s = int(b[0]&0x7)<<8 | int(b[1])
			if len(b) < 2+s {
				return nil, nil, sscerr.New(sscerr.KindInvalidToken, "truncated medium atom payload")
			}
			payload := b[2 : 2+s]
			switch {
			case isbyte:
				bc := make([]byte, s)
				copy(bc, payload)
				x = bc
			case issigned:
				x = decodeSignedInt(payload)
			default:
				x = decodeUnsignedInt(payload)
			}
			s += 2
		case b[0]&0xF0 == 0xE0:
			// Long atom.
			if len(b) < 4 {
				return nil, nil, sscerr.New(sscerr.KindInvalidToken, "truncated long atom header")
			}
			isbyte := b[0]&0x02 > 0
			issigned := b[0]&0x01 > 0
			s = int(b[1])<<16 | int(b[2])<<8 | int(b[3])
			if len(b) < 4+s {
				return nil, nil, sscerr.New(sscerr.KindInvalidToken, "truncated long atom payload")
			}
			payload := b[4 : 4+s]
			switch {
			case isbyte:
				bc := make([]byte, s)
				copy(bc, payload)
				x = bc
			case issigned:
				x = decodeSignedInt(payload)
			default:
				x = decodeUnsignedInt(payload)
			}
			s += 4
		case b[0] == byte(StartList):
			list, rest, err := internalDecode(b[1:], depth+1)
			if err != nil {
				return nil, nil, err
			}
			s = len(b) - len(rest)
			x = list
		case b[0] == byte(EndList):
			if depth == 0 {
				return nil, nil, ErrUnbalancedList
			}
			b = b[1:]
			return res, b, nil
		case b[0]&0xF0 == 0xF0:
			// Control token.
			x = TokenType(uint8(b[0]))
			// Per 3.2.2.3.1.5 Empty Atom, EmptyAtom SHALL be ignored.
			if x == EmptyAtom {
				x = nil
			}
		default:
			return nil, nil, sscerr.Newf(sscerr.KindInvalidToken, "unknown atom 0x%02x", b[0])
		}
		if x != nil {
			res = append(res, x)
		}
		b = b[s:]
	}
	if depth != 0 {
		return nil, nil, ErrUnbalancedList
	}
	return res, b, nil
}

func EqualBytes(obj interface{}, b []byte) bool {
	bd, ok := obj.([]byte)
	if !ok {
		return false
	}
	// Special nil case
	if len(b) == 0 && len(bd) == 0 {
		return true
	}
	return bytes.Equal(b, bd)
}

func EqualToken(obj interface{}, b TokenType) bool {
	byt, ok := obj.([]byte)
	if ok {
		return bytes.Equal(byt, []byte{uint8(b)})
	}
	bd, ok := obj.(TokenType)
	if !ok {
		return false
	}
	return bd == b
}

func EqualUInt(obj interface{}, b uint) bool {
	bd, ok := obj.(uint)
	if !ok {
		return false
	}
	return bd == b
}

func EqualInt(obj interface{}, b int) bool {
	bd, ok := obj.(int)
	if !ok {
		return false
	}
	return bd == b
}

// Reader is a sequential cursor over a decoded token vector, used to walk a
// method response or a discovery payload without hand-tracked indices.
type Reader struct {
	toks List
	pos  int
}

// NewReader returns a Reader positioned at the start of toks.
func NewReader(toks List) *Reader {
	return &Reader{toks: toks}
}

// Len reports the number of unread tokens.
func (r *Reader) Len() int { return len(r.toks) - r.pos }

// AtEnd reports whether the cursor has consumed every token.
func (r *Reader) AtEnd() bool { return r.pos >= len(r.toks) }

// Peek returns the next token without advancing the cursor.
func (r *Reader) Peek() (interface{}, bool) {
	if r.AtEnd() {
		return nil, false
	}
	return r.toks[r.pos], true
}

// Next returns the next token and advances the cursor.
func (r *Reader) Next() (interface{}, bool) {
	v, ok := r.Peek()
	if ok {
		r.pos++
	}
	return v, ok
}

// ReadUint reads an unsigned-integer atom. A type mismatch yields (0,
// false) without advancing past the already-consumed token.
func (r *Reader) ReadUint() (uint, bool) {
	v, ok := r.Next()
	if !ok {
		return 0, false
	}
	u, ok := v.(uint)
	return u, ok
}

// ReadInt reads a signed-integer atom.
func (r *Reader) ReadInt() (int, bool) {
	v, ok := r.Next()
	if !ok {
		return 0, false
	}
	i, ok := v.(int)
	return i, ok
}

// ReadBytes reads a byte-sequence atom.
func (r *Reader) ReadBytes() ([]byte, bool) {
	v, ok := r.Next()
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// ReadString reads a byte-sequence atom as a string.
func (r *Reader) ReadString() (string, bool) {
	b, ok := r.ReadBytes()
	if !ok {
		return "", false
	}
	return string(b), true
}

// ReadUID reads a byte-sequence atom of exactly n bytes, as used for UIDs
// (8 bytes).
func (r *Reader) ReadUID(n int) ([]byte, bool) {
	b, ok := r.ReadBytes()
	if !ok || len(b) != n {
		return nil, false
	}
	return b, true
}

// ReadBool reads an unsigned-integer atom as a boolean (non-zero is true).
func (r *Reader) ReadBool() (bool, bool) {
	u, ok := r.ReadUint()
	if !ok {
		return false, false
	}
	return u != 0, true
}

// ReadList reads a nested list produced by a StartList/EndList pair.
func (r *Reader) ReadList() (List, bool) {
	v, ok := r.Next()
	if !ok {
		return nil, false
	}
	l, ok := v.(List)
	return l, ok
}

// IsToken reports whether the next token is the control token t, without
// advancing the cursor.
func (r *Reader) IsToken(t TokenType) bool {
	v, ok := r.Peek()
	if !ok {
		return false
	}
	return EqualToken(v, t)
}

// ExpectToken consumes the next token if it is the control token t.
func (r *Reader) ExpectToken(t TokenType) bool {
	if !r.IsToken(t) {
		return false
	}
	r.pos++
	return true
}

// SkipAtom discards a single token (atom, nested list, or control token).
func (r *Reader) SkipAtom() bool {
	_, ok := r.Next()
	return ok
}

// SkipList discards the next token if it is a nested list. Decode already
// materializes StartList/EndList pairs as nested Lists, so a list is always
// a single token regardless of how deeply it nests internally.
func (r *Reader) SkipList() bool {
	v, ok := r.Next()
	if !ok {
		return false
	}
	_, isList := v.(List)
	return isList
}

// SkipNamedValue discards a StartName name value EndName quadruple. value
// tolerates being itself a nested list.
func (r *Reader) SkipNamedValue() bool {
	if !r.ExpectToken(StartName) {
		return false
	}
	if !r.SkipAtom() { // name
		return false
	}
	if !r.SkipAtom() { // value: atom or nested List, both one token here
		return false
	}
	return r.ExpectToken(EndName)
}
