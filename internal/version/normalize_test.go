package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		platform string
		raw      string
		want     string
	}{
		{name: "canonical unchanged", platform: "ios", raw: "15.0(2)SE11", want: "15.0(2)SE11"},
		{name: "dash form", platform: "ios", raw: "15.0.2-SE11", want: "15.0(2)SE11"},
		{name: "concatenated form", platform: "iosxe", raw: "15.2.7E9", want: "15.2(7)E9"},
		{name: "platform is case insensitive", platform: "IOS-XE", raw: "15.0.2-SE11", want: "15.0(2)SE11"},
		{name: "surrounding whitespace", platform: "ios", raw: "  15.0.2-SE11 ", want: "15.0(2)SE11"},
		{name: "canonical without suffix", platform: "ios", raw: "15.0(2)", want: "15.0(2)"},
		{name: "unrecognized passes through", platform: "ios", raw: "17.9.4a", want: "17.9.4a"},
		{name: "other family passes through", platform: "nxos", raw: "15.0.2-SE11", want: "15.0.2-SE11"},
		{name: "empty platform passes through", platform: "", raw: "15.0.2-SE11", want: "15.0.2-SE11"},
		{name: "empty version", platform: "ios", raw: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.platform, tt.raw))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, raw := range []string{"15.0.2-SE11", "15.0.2SE11", "15.0(2)SE11", "15.2.7E9", "12.2(55)SE"} {
		once := Normalize("ios", raw)
		assert.Equal(t, once, Normalize("ios", once), raw)
	}
}

func TestVariantsFor(t *testing.T) {
	tests := []struct {
		name     string
		platform string
		raw      string
		want     []string
	}{
		{
			name:     "dash input yields all spellings then raw",
			platform: "ios",
			raw:      "15.0.2-SE11",
			want:     []string{"15.0(2)SE11", "15.0.2-SE11", "15.0.2SE11"},
		},
		{
			name:     "canonical input",
			platform: "ios",
			raw:      "15.0(2)SE11",
			want:     []string{"15.0(2)SE11", "15.0.2-SE11", "15.0.2SE11"},
		},
		{
			name:     "canonical without suffix has no alternates",
			platform: "ios",
			raw:      "15.0(2)",
			want:     []string{"15.0(2)"},
		},
		{
			name:     "unrecognized keeps raw",
			platform: "ios",
			raw:      "17.9.4a",
			want:     []string{"17.9.4a"},
		},
		{
			name:     "other family",
			platform: "nxos",
			raw:      "10.3(3)",
			want:     []string{"10.3(3)"},
		},
		{
			name:     "raw with whitespace is kept last",
			platform: "ios",
			raw:      "15.0.2-SE11 ",
			want:     []string{"15.0(2)SE11", "15.0.2-SE11", "15.0.2SE11", "15.0.2-SE11 "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VariantsFor(tt.platform, tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, got, tt.raw)
		})
	}
}

func TestVariantsFor_Empty(t *testing.T) {
	assert.Empty(t, VariantsFor("ios", ""))
	assert.Empty(t, VariantsFor("ios", "   "))
}
