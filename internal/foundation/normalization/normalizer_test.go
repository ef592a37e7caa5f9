package normalization

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type mode string

const (
	modeAlpha mode = "alpha"
	modeBeta  mode = "beta"
)

func TestEnum_Lookup(t *testing.T) {
	e := NewEnum("mode", modeAlpha, modeBeta).Alias("a", modeAlpha)

	tests := []struct {
		name  string
		input string
		want  mode
		ok    bool
	}{
		{"exact match", "alpha", modeAlpha, true},
		{"case insensitive", "BETA", modeBeta, true},
		{"with spaces", "  alpha  ", modeAlpha, true},
		{"alias", "A", modeAlpha, true},
		{"unknown", "gamma", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.Lookup(tt.input)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEnum_Parse(t *testing.T) {
	e := NewEnum("mode", modeBeta, modeAlpha)
	require.Equal(t, []string{"alpha", "beta"}, e.Keys())

	v, err := e.Parse("Beta")
	require.NoError(t, err)
	require.Equal(t, modeBeta, v)

	_, err = e.Parse("gamma")
	require.EqualError(t, err, `invalid mode "gamma", valid options: alpha, beta`)
}
