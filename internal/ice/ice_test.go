package ice

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := Errorf("module app", "declaration %q has no parent", "foo")
	assert.Equal(t, `internal compiler error in module app: declaration "foo" has no parent`, err.Error())

	wrapped := Wrap(io.ErrUnexpectedEOF, "archive lib", "reading metadata")
	require.Error(t, wrapped)
	assert.True(t, errors.Is(wrapped, io.ErrUnexpectedEOF))
	assert.True(t, Is(wrapped))
	assert.Nil(t, Wrap(nil, "x", "y"))
}

func TestRecover(t *testing.T) {
	run := func() (err error) {
		defer Recover(&err)
		Panic("builtins", "not a builtin: %s", "Foo")
		return nil
	}
	err := run()
	require.Error(t, err)
	assert.True(t, Is(err))

	assert.Panics(t, func() {
		var err error
		defer Recover(&err)
		panic("plain")
	})
}
