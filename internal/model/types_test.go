package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagID_PackUnpack(t *testing.T) {
	t.Parallel()
	id := NewTagID(0x2A, 0x1F0)
	assert.Equal(t, uint16(0x2A), id.Package())
	assert.Equal(t, uint16(0x1F0), id.Entry())
	assert.True(t, id.Valid())
	assert.Equal(t, TagID(0x80800000|0x2A<<13|0x1F0), id)
}

func TestTagID_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "80802000", NewTagID(1, 0).String())
}

func TestParseTagID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want TagID
	}{
		{"80802001", NewTagID(1, 1)},
		{"0x80802001", NewTagID(1, 1)},
		{"1:1", NewTagID(1, 1)},
		{"3ff:1fff", NewTagID(0x3FF, 0x1FFF)},
	}
	for _, tt := range tests {
		got, err := ParseTagID(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "zz", "12345678", "400:0", "1:2000"} {
		_, err := ParseTagID(bad)
		assert.Error(t, err, bad)
	}
}

func TestHasTagIDPattern(t *testing.T) {
	t.Parallel()
	assert.True(t, HasTagIDPattern(0x80800065))
	assert.True(t, HasTagIDPattern(0x80FFFFFF))
	assert.False(t, HasTagIDPattern(0x81000000))
	assert.False(t, HasTagIDPattern(0x00001234))
	assert.False(t, HasTagIDPattern(EmptyHash))
}

func TestFNV1(t *testing.T) {
	t.Parallel()
	assert.Equal(t, EmptyHash, FNV1(nil))
	// FNV-1 (not FNV-1a) of "a".
	assert.Equal(t, uint32(0x050C5D7E), FNV1String("a"))
}

func TestQuality(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "partial", QualityPartial.String())
	assert.True(t, QualityUnreadable.Degraded())
	assert.False(t, QualityOpaque.Degraded())
}

func TestReference_Accessors(t *testing.T) {
	t.Parallel()
	r := Reference{Kind: TargetTag, Value: uint64(NewTagID(2, 5))}
	assert.Equal(t, NewTagID(2, 5), r.Tag())
	s := Reference{Kind: TargetString, Value: 0x1234}
	assert.Equal(t, uint32(0x1234), s.StringHash())
}
