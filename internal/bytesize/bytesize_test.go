package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    ByteSize
		wantErr bool
	}{
		{in: "1024", want: 1024},
		{in: "1KiB", want: KiB},
		{in: "512mi", want: 512 * MiB},
		{in: "2 GB", want: 2 * GB},
		{in: "1.5Gi", want: GiB + 512*MiB},
		{in: "", wantErr: true},
		{in: "12XB", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "0", ByteSize(0).String())
	assert.Equal(t, "1000", KB.String())
	assert.Equal(t, "4GiB", (4 * GiB).String())
	assert.Equal(t, "1536KiB", (1536 * KiB).String())
}

func TestTextRoundTrip(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("256MiB")))

	text, err := b.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "256MiB", string(text))
}
