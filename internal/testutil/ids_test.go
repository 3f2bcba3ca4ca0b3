package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceIDs(t *testing.T) {
	g := NewSequenceIDs("")
	assert.Equal(t, "req-0001", g.Next())
	assert.Equal(t, "req-0002", g.Next())

	other := NewSequenceIDs("cli")
	assert.Equal(t, "cli-0001", other.Next())
}
