package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResult struct {
	n   int64
	err error
}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.n, r.err }

func TestRequireOne(t *testing.T) {
	require.NoError(t, requireOne(fakeResult{n: 1}, "0xaa"))

	// UPDATE sem linha: market nunca projetado, a mensagem precisa ir para a DLQ
	err := requireOne(fakeResult{n: 0}, "0xaa")
	require.ErrorIs(t, err, ErrMarketNotIndexed)
	assert.Contains(t, err.Error(), "0xaa")

	boom := errors.New("driver gone")
	require.ErrorIs(t, requireOne(fakeResult{err: boom}, "0xaa"), boom)
}
