package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	o, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Defaults().BindName, o.BindName)
	require.Equal(t, uint(32), o.TTL)
}

func TestRuntimeUpdateNotifiesListeners(t *testing.T) {
	rt := NewRuntime(Defaults())
	var got Snapshot
	rt.OnReload(func(s Snapshot) { got = s })

	s := rt.Get()
	s.Throttle = false
	rt.Update(s)

	require.False(t, got.Throttle)
	require.False(t, rt.Get().Throttle)
}
