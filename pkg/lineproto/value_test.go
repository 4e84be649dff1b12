package lineproto

import (
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	integerLiteral = regexp.MustCompile(`^-?[0-9]+i$`)
	floatLiteral   = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)
)

func TestValue_AppendTo(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  string
		kind  Kind
	}{
		{"string", String("howdy"), `"howdy"`, KindString},
		{"string with newline", String("x\ny"), `"x\ny"`, KindString},
		{"uint32", Uint32(42), "42i", KindUint32},
		{"uint32 max", Uint32(math.MaxUint32), "4294967295i", KindUint32},
		{"uint64 max", Uint64(math.MaxUint64), "18446744073709551615i", KindUint64},
		{"int32 negative", Int32(-7), "-7i", KindInt32},
		{"int64 min", Int64(math.MinInt64), "-9223372036854775808i", KindInt64},
		{"int64 zero", Int64(0), "0i", KindInt64},
		{"float32 integral", Float32(42), "42.0", KindFloat32},
		{"float32 fraction", Float32(0.75), "0.75", KindFloat32},
		{"float32 shortest", Float32(0.1), "0.1", KindFloat32},
		{"float64 fraction", Float64(90.5), "90.5", KindFloat64},
		{"float64 negative", Float64(-2.25), "-2.25", KindFloat64},
		{"float64 large", Float64(1e21), "1000000000000000000000.0", KindFloat64},
		{"float64 tiny", Float64(1e-7), "0.0000001", KindFloat64},
		{"float64 NaN", Float64(math.NaN()), "NaN", KindFloat64},
		{"float64 +Inf", Float64(math.Inf(1)), "+Inf", KindFloat64},
		{"float32 -Inf", Float32(float32(math.Inf(-1))), "-Inf", KindFloat32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.value.Kind())
			assert.Equal(t, tt.want, string(tt.value.AppendTo(nil)))
			assert.Equal(t, tt.want, tt.value.String())
		})
	}
}

func TestValue_InvalidAppendsNothing(t *testing.T) {
	var v Value
	assert.Equal(t, KindInvalid, v.Kind())
	assert.Equal(t, "abc", string(v.AppendTo([]byte("abc"))))
}

func TestValueOf_PreservesKind(t *testing.T) {
	assert.Equal(t, KindString, ValueOf("s").Kind())
	assert.Equal(t, KindUint32, ValueOf(uint32(1)).Kind())
	assert.Equal(t, KindUint64, ValueOf(uint64(1)).Kind())
	assert.Equal(t, KindInt32, ValueOf(int32(1)).Kind())
	assert.Equal(t, KindInt64, ValueOf(int64(1)).Kind())
	assert.Equal(t, KindFloat32, ValueOf(float32(1)).Kind())
	assert.Equal(t, KindFloat64, ValueOf(float64(1)).Kind())

	assert.Equal(t, int64(-3), ValueOf(int32(-3)).Int())
	assert.Equal(t, uint64(9), ValueOf(uint64(9)).Uint())
	assert.Equal(t, 1.5, ValueOf(1.5).Float())
	assert.Equal(t, "s", ValueOf("s").Str())
}

func TestValue_IntegerSuffixInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		for _, v := range []Value{
			Uint32(rng.Uint32()),
			Uint64(rng.Uint64()),
			Int32(int32(rng.Uint32())),
			Int64(int64(rng.Uint64())),
		} {
			lit := v.String()
			require.Truef(t, integerLiteral.MatchString(lit), "%s literal %q", v.Kind(), lit)
		}
	}
}

func TestValue_FloatLiteralInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 1000; i++ {
		f64 := (rng.Float64() - 0.5) * math.Pow(10, float64(rng.Intn(40)-20))
		f32 := float32(f64)

		lit := Float64(f64).String()
		require.Truef(t, floatLiteral.MatchString(lit), "float64 literal %q", lit)
		parsed, err := strconv.ParseFloat(lit, 64)
		require.NoError(t, err)
		assert.Equal(t, f64, parsed, "float64 must round-trip")

		lit = Float32(f32).String()
		require.Truef(t, floatLiteral.MatchString(lit), "float32 literal %q", lit)
		parsed, err = strconv.ParseFloat(lit, 32)
		require.NoError(t, err)
		assert.Equal(t, f32, float32(parsed), "float32 must round-trip")
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "float32", KindFloat32.String())
	assert.Equal(t, "invalid", KindInvalid.String())
	assert.Equal(t, "Kind(99)", Kind(99).String())
	assert.True(t, KindUint32.IsInteger())
	assert.False(t, KindFloat64.IsInteger())
	assert.True(t, KindFloat32.IsFloat())
	assert.False(t, KindString.IsFloat())
}

func TestValue_AppendToNoAlloc(t *testing.T) {
	buf := make([]byte, 0, 64)
	values := []Value{Int64(-12345), Uint64(99), Float64(3.14159), Float32(2.5)}
	allocs := testing.AllocsPerRun(100, func() {
		b := buf[:0]
		for _, v := range values {
			b = v.AppendTo(b)
		}
	})
	assert.Zero(t, allocs)
}
