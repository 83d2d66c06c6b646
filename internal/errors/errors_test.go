// SPDX-License-Identifier: AGPL-3.0-only
package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("task", "t1")))
	assert.True(t, IsInvalidInput(InvalidInput("bad")))
	assert.True(t, IsStorage(Storage("write", io.ErrShortWrite)))
	assert.False(t, IsNotFound(nil))
	assert.Equal(t, CodeInternal, CodeOf(io.EOF))
	assert.Equal(t, CodeAlreadyExists, CodeOf(AlreadyExists("task", "t1")))
}

func TestWrappingKeepsCause(t *testing.T) {
	err := fmt.Errorf("create: %w", Storage("write", io.ErrShortWrite))
	assert.True(t, IsStorage(err))
	assert.True(t, Is(err, io.ErrShortWrite))
	assert.Contains(t, err.Error(), "storage write failed")
	assert.Equal(t, "task not found: t1", NotFound("task", "t1").Error())
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("edit: %w", NotFound("task", "t1"))
	assert.True(t, Is(err, &Error{Code: CodeNotFound}))
	assert.False(t, Is(err, &Error{Code: CodeStorage}))
}
