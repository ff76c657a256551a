package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMemoryKind(t *testing.T) {
	for in, want := range map[string]MemoryKind{
		"fact":       MemoryFact,
		" FACT ":     MemoryFact,
		"pref":       MemoryPreference,
		"preference": MemoryPreference,
		"Goal":       MemoryGoal,
	} {
		got, ok := ParseMemoryKind(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseMemoryKind("note")
	assert.False(t, ok)
}

func TestMemory_AddAndItems(t *testing.T) {
	var m Memory
	assert.True(t, m.IsEmpty())

	m.Add(MemoryGoal, "learn go")
	m.Add(MemoryFact, "lives in Moscow")
	m.Add(MemoryPreference, "short answers")
	m.Add(MemoryKind("unknown"), "ignored")

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []MemoryItem{
		{Kind: MemoryFact, Text: "lives in Moscow"},
		{Kind: MemoryPreference, Text: "short answers"},
		{Kind: MemoryGoal, Text: "learn go"},
	}, m.Items())

	var nilMem *Memory
	assert.Nil(t, nilMem.Items())
	assert.True(t, nilMem.IsEmpty())
}
