package color

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestForKeyIsStable(t *testing.T) {
	assert.Equal(t, ForKey("sprint-1").Sprint("x"), ForKey("sprint-1").Sprint("x"))
}

func TestTagWithoutColor(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	assert.False(t, Enabled())
	assert.Equal(t, "[bug]", Tag("bug"))
}
