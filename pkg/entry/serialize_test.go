package entry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	dn := NormalizeDN("cn=alice,ou=people")
	e := New(dn)
	e.SetAttribute("sn", [][]byte{[]byte("Doe")})
	e.SetAttribute("uid", [][]byte{[]byte("alice")})
	e.SetAttribute("jpegPhoto", [][]byte{{0x00, 0xff, 0x10}})
	e.MarkPresent("replication")
	e.MarkPresent("home-dir")

	encoded := Encode(e)
	decoded, err := Decode(dn, encoded)
	require.NoError(t, err)

	assert.Equal(t, dn, decoded.DN)
	assert.Equal(t, e.AttributeNames(), decoded.AttributeNames())
	assert.Equal(t, e.PresentNames(), decoded.PresentNames())
	assert.Equal(t, "Doe", string(decoded.Attribute("sn").Values[0]))

	// Round-tripping again yields a byte-equal record.
	assert.Equal(t, encoded, Encode(decoded))
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	t.Parallel()

	data := []byte{0xFE, 0, 0, 0, 0}
	_, err := Decode(NormalizeDN("cn=x"), data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))
}

func TestDecodeRejectsTruncatedRecord(t *testing.T) {
	t.Parallel()

	e := New(NormalizeDN("cn=x"))
	e.SetAttribute("uid", [][]byte{[]byte("alice")})
	encoded := Encode(e)

	_, err := Decode(NormalizeDN("cn=x"), encoded[:len(encoded)-2])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTruncatedRecord))
}

func TestEncodeEmptyEntry(t *testing.T) {
	t.Parallel()

	dn := NormalizeDN("cn=empty")
	e := New(dn)
	decoded, err := Decode(dn, Encode(e))
	require.NoError(t, err)
	assert.Empty(t, decoded.AttributeNames())
	assert.Empty(t, decoded.PresentNames())
}
