package hs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOperator(t *testing.T) {
	tests := []struct {
		in   string
		want Operator
	}{
		{"=", OpEq},
		{">=", OpGte},
		{"<=", OpLte},
		{">", OpGt},
		{"<", OpLt},
		{"+", OpPlus},
		{"", OpEq},
		{"!=", OpEq},
		{"LIKE", OpEq},
		{"==", OpEq},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeOperator(tt.in))
		})
	}
}

func TestModeClass(t *testing.T) {
	assert.Equal(t, ClassRead, ModeSelect.Class())
	assert.Equal(t, ClassWrite, ModeUpdate.Class())
	assert.Equal(t, ClassWrite, ModeInsert.Class())
	assert.Equal(t, ClassWrite, ModeDelete.Class())
	assert.Equal(t, "insert", ModeInsert.String())
	assert.Equal(t, "mode(7)", Mode(7).String())
	assert.Equal(t, "write", ClassWrite.String())
}

func TestIndexName(t *testing.T) {
	assert.Equal(t, PrimaryIndex, IndexDefinition{}.IndexName())
	assert.Equal(t, "expiration", IndexDefinition{Name: "expiration"}.IndexName())
}

func TestProtocolError(t *testing.T) {
	dup := Reject("insert", 1, "121")
	assert.True(t, dup.IsDuplicateKey())
	assert.True(t, errors.Is(dup, ErrProtocol))
	assert.Equal(t, "hs: insert: code 1: 121", dup.Error())

	cause := errors.New("broken pipe")
	tr := transportError("find", cause)
	assert.True(t, tr.IsTransport())
	assert.False(t, tr.IsDuplicateKey())
	assert.ErrorIs(t, tr, cause)
	assert.Equal(t, "hs: find: transport: broken pipe", tr.Error())

	assert.False(t, IsDuplicateKey(cause))
	assert.True(t, Reject("find", 2, "stmtnum").IsUnknownHandle())
}
