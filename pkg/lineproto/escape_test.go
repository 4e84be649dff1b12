package lineproto

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeTag(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "server01", "server01"},
		{"all specials", "a,b c=d\ne", `a\,b\ c\=d\ne`},
		{"leading and trailing", " x,", `\ x\,`},
		{"adjacent specials", ",,==", `\,\,\=\=`},
		{"quote and period pass through", `"v1.2"`, `"v1.2"`},
		{"multi-byte utf8", "häst da=ö", `häst\ da\=ö`},
		{"only newline", "\n", `\n`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeTag(tt.input))
			assert.Equal(t, "prefix:"+tt.want, string(AppendEscapedTag([]byte("prefix:"), tt.input)))
		})
	}
}

func TestEscapeTag_SafeInputUnchanged(t *testing.T) {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789._-\"/:;\\äö€"
	runes := []rune(alphabet)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		var sb strings.Builder
		n := rng.Intn(32)
		for j := 0; j < n; j++ {
			sb.WriteRune(runes[rng.Intn(len(runes))])
		}
		s := sb.String()
		assert.Equal(t, s, EscapeTag(s))
		assert.Equal(t, s, string(AppendEscapedTag(nil, s)))
	}
}

func TestEscapeFieldString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", `""`},
		{"plain", "howdy", `"howdy"`},
		{"inner quotes", `he said "hi"`, `"he said \"hi\""`},
		{"newline", "x\ny", `"x\ny"`},
		{"tag specials pass through", "a,b c=d", `"a,b c=d"`},
		{"multi-byte utf8", "grüß\"", `"grüß\""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeFieldString(tt.input))
			assert.Equal(t, tt.want, string(AppendEscapedFieldString(nil, tt.input)))
		})
	}
}

func TestAppendEscaped_NoAllocWithCapacity(t *testing.T) {
	buf := make([]byte, 0, 128)
	allocs := testing.AllocsPerRun(100, func() {
		b := AppendEscapedTag(buf[:0], "a,b c=d\ne")
		b = AppendEscapedFieldString(b, `he said "hi"`)
		_ = b
	})
	assert.Zero(t, allocs)
}
