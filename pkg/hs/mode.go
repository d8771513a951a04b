package hs

import "fmt"

// Mode is the operation an index is opened for.
type Mode int

const (
	ModeSelect Mode = iota + 1
	ModeUpdate
	ModeInsert
	ModeDelete
)

func (m Mode) String() string {
	switch m {
	case ModeSelect:
		return "select"
	case ModeUpdate:
		return "update"
	case ModeInsert:
		return "insert"
	case ModeDelete:
		return "delete"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func (m Mode) valid() bool {
	return m >= ModeSelect && m <= ModeDelete
}

// Class returns the connection the mode is routed to.
func (m Mode) Class() ModeClass {
	if m == ModeSelect {
		return ClassRead
	}
	return ClassWrite
}

// ModeClass selects the read or the write connection.
type ModeClass int

const (
	ClassRead ModeClass = iota
	ClassWrite
)

func (c ModeClass) String() string {
	if c == ClassRead {
		return "read"
	}
	return "write"
}

// Operator is a key comparison operator.
type Operator string

const (
	OpEq   Operator = "="
	OpGte  Operator = ">="
	OpLte  Operator = "<="
	OpGt   Operator = ">"
	OpLt   Operator = "<"
	OpPlus Operator = "+"
)

// NormalizeOperator maps anything outside the supported set to "=".
func NormalizeOperator(s string) Operator {
	switch op := Operator(s); op {
	case OpEq, OpGte, OpLte, OpGt, OpLt, OpPlus:
		return op
	default:
		return OpEq
	}
}

// FilterType distinguishes skip filters from stop filters.
type FilterType byte

const (
	// FilterSkip ("F") drops non-matching rows and keeps scanning.
	FilterSkip FilterType = 'F'
	// FilterWhile ("W") ends the scan at the first non-matching row.
	FilterWhile FilterType = 'W'
)

// Filter compares one of the index's filter columns against Value.
// Column is the position in IndexDefinition.FilterColumns.
type Filter struct {
	Type   FilterType
	Op     Operator
	Column int
	Value  string
}

// ModifyOp is the write applied to rows matched by a find.
type ModifyOp string

const (
	ModifyUpdate    ModifyOp = "U"
	ModifyDelete    ModifyOp = "D"
	ModifyIncrement ModifyOp = "+"
	ModifyDecrement ModifyOp = "-"
)
