package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffPurity(t *testing.T) {
	t.Parallel()

	e := New(NormalizeDN("cn=alice"))
	e.SetAttribute("sn", [][]byte{[]byte("Doe")})
	e.SetAttribute("uid", [][]byte{[]byte("alice")})

	// Testable Property 5: diff(E, E) = empty for all E.
	assert.Empty(t, Diff(e, e))
	assert.Empty(t, Diff(e, e.Clone()))
}

func TestDiffAbsentPresentTransitions(t *testing.T) {
	t.Parallel()

	e := New(NormalizeDN("cn=alice"))
	e.SetAttribute("sn", [][]byte{[]byte("Doe")})

	assert.Equal(t, []string{"sn"}, Diff(nil, e))
	assert.Equal(t, []string{"sn"}, Diff(e, nil))
	assert.Empty(t, Diff(nil, nil))
}

func TestDiffValueSetChange(t *testing.T) {
	t.Parallel()

	old := New(NormalizeDN("cn=alice"))
	old.SetAttribute("uid", [][]byte{[]byte("alice")})
	old.SetAttribute("description", [][]byte{[]byte("x")})

	newE := old.Clone()
	newE.SetAttribute("description", [][]byte{[]byte("y")})

	assert.Equal(t, []string{"description"}, Diff(old, newE))
}

func TestDiffIgnoresValueOrder(t *testing.T) {
	t.Parallel()

	old := New(NormalizeDN("cn=alice"))
	old.SetAttribute("mail", [][]byte{[]byte("a@example.com"), []byte("b@example.com")})

	newE := New(NormalizeDN("cn=alice"))
	newE.SetAttribute("mail", [][]byte{[]byte("b@example.com"), []byte("a@example.com")})

	assert.Empty(t, Diff(old, newE))
}

func TestIntersects(t *testing.T) {
	t.Parallel()

	assert.True(t, Intersects([]string{"uid"}, nil), "empty interest list means all attributes")
	assert.True(t, Intersects([]string{"uid", "mail"}, []string{"MAIL"}))
	assert.False(t, Intersects([]string{"description"}, []string{"uid"}))
}
