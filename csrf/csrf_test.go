package csrf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIssueThenCheck(t *testing.T) {
	s := NewService()
	token := s.Issue("tab-1")

	assert.NotEmpty(t, token)
	assert.True(t, s.Check("tab-1", token))
	assert.False(t, s.Check("tab-1", "some-other-string"))
	assert.False(t, s.Check("tab-1", ""))
}

func TestCheckWithoutIssue(t *testing.T) {
	s := NewService()
	assert.False(t, s.Check("tab-1", "anything"))
}

func TestIssueOverwrites(t *testing.T) {
	s := NewService()
	first := s.Issue("tab-1")
	second := s.Issue("tab-1")

	assert.NotEqual(t, first, second)
	assert.False(t, s.Check("tab-1", first))
	assert.True(t, s.Check("tab-1", second))
}

func TestScopesAreIndependent(t *testing.T) {
	s := NewService()
	t1 := s.Issue("tab-1")
	t2 := s.Issue("tab-2")

	assert.False(t, s.Check("tab-1", t2))
	assert.False(t, s.Check("tab-2", t1))
	assert.True(t, s.Check("tab-1", t1))
	assert.True(t, s.Check("tab-2", t2))
}

func TestClear(t *testing.T) {
	s := NewService()
	token := s.Issue("tab-1")
	s.Clear("tab-1")

	assert.False(t, s.Check("tab-1", token))

	// Clearing an unknown scope is safe.
	s.Clear("never-issued")
}
