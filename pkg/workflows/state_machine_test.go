package workflows

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinearStateMachine(t *testing.T) {
	sm := NewLinearStateMachine("setup", "customize", "position", "preview")

	assert.Equal(t, "setup", sm.Initial())
	assert.True(t, sm.CanTransition("setup", "customize"))
	assert.True(t, sm.CanTransition("customize", "setup"))
	assert.False(t, sm.CanTransition("setup", "preview"))
	assert.Equal(t, []string{"customize"}, sm.GetAllowedTransitions("setup"))
	assert.Equal(t, []string{"position"}, sm.GetAllowedTransitions("preview"))
}

func TestTransitionError(t *testing.T) {
	sm := NewStateMachine("a", map[string][]string{"a": {"b"}})

	assert.NoError(t, sm.Transition("a", "b"))
	err := sm.Transition("b", "a")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Empty(t, sm.GetAllowedTransitions("unknown"))
}

func TestAllow(t *testing.T) {
	sm := NewLinearStateMachine("one", "two")
	sm.Allow("two", "done")

	assert.True(t, sm.CanTransition("two", "done"))
}
