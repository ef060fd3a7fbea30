package xerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))

	base := errors.New("base error")
	wrapped := Wrap(base, "context")
	require.Error(t, wrapped)
	assert.Equal(t, "context: base error", wrapped.Error())
	assert.ErrorIs(t, wrapped, base)
}

func TestWrapf(t *testing.T) {
	assert.Nil(t, Wrapf(nil, "shard %d", 1))

	wrapped := Wrapf(ErrNotFound, "shard %d", 1)
	assert.Equal(t, "shard 1: not found", wrapped.Error())
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrNotFound)
}

func TestWithCode(t *testing.T) {
	assert.Nil(t, WithCode(nil, "CODE"))

	coded := WithCode(ErrNotFound, "USER_NOT_FOUND")
	assert.Equal(t, "[USER_NOT_FOUND] not found", coded.Error())
	assert.Equal(t, "USER_NOT_FOUND", GetCode(coded))

	// 外层包装后仍能取到错误码
	wrapped := Wrap(coded, "get user")
	assert.Equal(t, "USER_NOT_FOUND", GetCode(wrapped))
	assert.ErrorIs(t, wrapped, ErrNotFound)

	assert.Empty(t, GetCode(errors.New("plain")))
	assert.Equal(t, "[X]", (&CodedError{Code: "X"}).Error())
}

func TestCombine(t *testing.T) {
	assert.Nil(t, Combine())
	assert.Nil(t, Combine(nil, nil))

	err1 := errors.New("error 1")
	assert.Same(t, err1, Combine(nil, err1, nil))

	err2 := errors.New("error 2")
	combined := Combine(err1, err2)
	var multi *MultiError
	require.ErrorAs(t, combined, &multi)
	assert.Len(t, multi.Errors, 2)
	assert.ErrorIs(t, combined, err1)
	assert.ErrorIs(t, combined, err2)
	assert.Equal(t, "error 1 (and 1 more errors)", combined.Error())
	assert.Equal(t, "no errors", (&MultiError{}).Error())
}

func TestReExports(t *testing.T) {
	err1 := New("err1")
	err2 := New("err2")
	joined := Join(err1, err2)
	assert.True(t, Is(joined, err1))
	assert.True(t, Is(joined, err2))
	var coded *CodedError
	assert.True(t, As(WithCode(Wrap(err1, "ctx"), "E1"), &coded))
	assert.Equal(t, "E1", coded.Code)
}
