package java

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/pkg/types"
)

func TestMajorVersion(t *testing.T) {
	tests := []struct {
		version string
		want    int
	}{
		{"1.8.0_392", 8},
		{"1.8", 8},
		{"8", 8},
		{"11.0.21", 11},
		{"17.0.9+9", 17},
		{"21", 21},
		{"22.0.1", 22},
		{"", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MajorVersion(tt.version), tt.version)
	}
}

func TestParseProperties(t *testing.T) {
	out := `Property settings:
    java.class.version = 65.0
    java.home = /usr/lib/jvm/temurin-21
    java.runtime.version = 21.0.2+13-LTS
    java.specification.version = 21
    java.vendor = Eclipse Adoptium
    java.vendor.version = Temurin-21.0.2+13
    java.version = 21.0.2

openjdk version "21.0.2" 2024-01-16 LTS
`
	info := parseProperties(out)
	assert.Equal(t, 21, info.MajorVersion)
	assert.Equal(t, "/usr/lib/jvm/temurin-21", info.JavaHome)
	assert.Equal(t, "Eclipse Adoptium", info.Vendor)
	assert.Equal(t, "21.0.2+13-LTS", info.RuntimeVersion)
}

func TestParsePropertiesLegacyVersion(t *testing.T) {
	out := `Property settings:
    java.home = /usr/lib/jvm/java-8-openjdk
    java.specification.version = 1.8
    java.version = 1.8.0_392
`
	info := parseProperties(out)
	assert.Equal(t, 8, info.MajorVersion)
}

func newStubRegistry(versions map[string]int) *Registry {
	r := NewRegistry()
	r.detect = func(ctx context.Context, executable string) (*types.JavaInfo, error) {
		v, ok := versions[executable]
		if !ok {
			return nil, errors.New("no such runtime")
		}
		return &types.JavaInfo{MajorVersion: v}, nil
	}
	return r
}

func TestRegisterAndResolve(t *testing.T) {
	r := newStubRegistry(map[string]int{"/jvm/21/bin/java": 21})

	require.NoError(t, r.Register(context.Background(), "temurin21", "/jvm/21/bin/java"))
	p, err := r.Preset("temurin21")
	require.NoError(t, err)
	assert.True(t, p.Registered)
	require.NotNil(t, p.Info)
	assert.Equal(t, 21, p.Info.MajorVersion)

	exe, err := r.Executable("temurin21")
	require.NoError(t, err)
	assert.Equal(t, "/jvm/21/bin/java", exe)

	_, err = r.Preset("missing")
	assert.True(t, errors.Is(err, errs.ErrUnknownJava))

	assert.Error(t, r.Register(context.Background(), "broken", "/nowhere/java"))
}

func TestRemove(t *testing.T) {
	r := newStubRegistry(map[string]int{"/jvm/17/bin/java": 17})
	require.NoError(t, r.Register(context.Background(), "seventeen", "/jvm/17/bin/java"))
	require.NoError(t, r.Remove("seventeen"))
	assert.True(t, errors.Is(r.Remove("seventeen"), errs.ErrUnknownJava))
}

func TestRate(t *testing.T) {
	r := newStubRegistry(map[string]int{
		"/jvm/8/bin/java":  8,
		"/jvm/17/bin/java": 17,
		"/jvm/21/bin/java": 21,
	})
	for name, exe := range map[string]string{
		"eight": "/jvm/8/bin/java", "seventeen": "/jvm/17/bin/java", "twentyone": "/jvm/21/bin/java",
	} {
		require.NoError(t, r.Register(context.Background(), name, exe))
	}

	got := r.Rate(17)
	assert.Equal(t, types.JavaIncompatible, got["eight"])
	assert.Equal(t, types.JavaMatch, got["seventeen"])
	assert.Equal(t, types.JavaWeakMatch, got["twentyone"])
}

func TestLoadKeepsUnprobedPreset(t *testing.T) {
	r := newStubRegistry(nil)
	r.Load(context.Background(), types.JavaConfig{
		Presets: []types.JavaPresetConfig{{Name: "ghost", Executable: "/gone/java"}},
	})
	p, err := r.Preset("ghost")
	require.NoError(t, err)
	assert.Nil(t, p.Info)
	assert.True(t, p.Registered)
}
