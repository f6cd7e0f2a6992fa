package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want DN
	}{
		{"already canonical", "cn=alice,ou=people", "cn=alice,ou=people"},
		{"mixed case", "CN=Alice,OU=People", "cn=alice,ou=people"},
		{"extra whitespace", "cn=alice ,  ou=people", "cn=alice,ou=people"},
		{"single component", "DC=example", "dc=example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeDN(tt.in))
		})
	}
}

func TestEntryAttributes(t *testing.T) {
	t.Parallel()

	e := New(NormalizeDN("cn=alice,ou=people"))
	e.SetAttribute("uid", [][]byte{[]byte("alice")})
	e.SetAttribute("UID", [][]byte{[]byte("alice"), []byte("alice")}) // dedup + case-insensitive overwrite

	attr := e.Attribute("uid")
	require.NotNil(t, attr)
	assert.Len(t, attr.Values, 1)

	e.SetAttribute("uid", nil)
	assert.Nil(t, e.Attribute("uid"))
}

func TestEntryModulePresentSet(t *testing.T) {
	t.Parallel()

	e := New(NormalizeDN("cn=bob"))
	assert.False(t, e.HasPresent("replication"))

	e.MarkPresent("replication")
	e.MarkPresent("home-dir")
	assert.True(t, e.HasPresent("replication"))
	assert.Equal(t, []string{"home-dir", "replication"}, e.PresentNames())

	e.ClearPresent("home-dir")
	assert.Equal(t, []string{"replication"}, e.PresentNames())
}

func TestEntryClone(t *testing.T) {
	t.Parallel()

	orig := New(NormalizeDN("cn=carol"))
	orig.SetAttribute("sn", [][]byte{[]byte("Doe")})
	orig.MarkPresent("replication")

	clone := orig.Clone()
	clone.SetAttribute("sn", [][]byte{[]byte("Changed")})
	clone.MarkPresent("home-dir")

	assert.Equal(t, "Doe", string(orig.Attribute("sn").Values[0]))
	assert.Equal(t, []string{"replication"}, orig.PresentNames())
	assert.Equal(t, "Changed", string(clone.Attribute("sn").Values[0]))
}
