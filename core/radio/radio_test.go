package radio

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsFatal(t *testing.T) {
	tt := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"plain error", io.EOF, false},
		{"transient", NewError("read", StatusOverflow, nil), false},
		{"fatal", NewFatalError("read", StatusDisconnected, io.EOF), true},
		{"wrapped fatal", errors.Wrap(NewFatalError("read", StatusStreamError, nil), "receiver"), true},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsFatal(tc.err))
		})
	}
}

func TestErrorCarriesStageAndCode(t *testing.T) {
	err := errors.Wrap(NewError("read", StatusOverflow, io.ErrShortBuffer), "receiver")

	assert.Equal(t, StatusOverflow, Code(err))
	assert.Equal(t, "receiver: read: status -4 (overflow): short buffer", err.Error())
	assert.True(t, errors.Is(err, io.ErrShortBuffer))
	assert.Equal(t, 0, Code(io.EOF))
}
