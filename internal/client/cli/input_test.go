package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gohs/pkg/hs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSecret_FromPipe(t *testing.T) {
	var out bytes.Buffer
	got, err := readSecret(strings.NewReader("hunter2\nrest"), &out, "Secret: ")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
	assert.Empty(t, out.String(), "no prompt without a terminal")

	got, err = readSecret(strings.NewReader("no-newline"), &out, "")
	require.NoError(t, err)
	assert.Equal(t, "no-newline", got)

	_, err = readSecret(strings.NewReader(""), &out, "")
	require.Error(t, err)
}

func TestParseFilter(t *testing.T) {
	f, err := parseFilter("W > 0 100")
	require.NoError(t, err)
	assert.Equal(t, hs.Filter{Type: hs.FilterWhile, Op: hs.OpGt, Column: 0, Value: "100"}, f)

	f, err = parseFilter("F bogus 2 x")
	require.NoError(t, err)
	assert.Equal(t, hs.OpEq, f.Op)
	assert.Equal(t, hs.FilterSkip, f.Type)

	for _, bad := range []string{"W > 0", "X > 0 1", "F > col 1"} {
		_, err := parseFilter(bad)
		assert.Error(t, err, bad)
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("x")))
	assert.Equal(t, ExitNotFound, GetExitCode(NewExitError(ExitNotFound, "not found")))
}
