package crusher_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydracrusher/crusher/internal/crusher"
)

func TestRegistry_OpenAllAndLookup(t *testing.T) {
	r := newTestReactor(t)
	remote := startEchoServer(t)

	reg := crusher.NewRegistry()
	tc := crusher.NewTCP(crusher.NewTCPOptions(freePort(t), remote.String(), r))
	require.NoError(t, reg.Register("echo", tc))

	require.NoError(t, reg.OpenAll())
	t.Cleanup(func() { reg.CloseAll() })

	p, ok := reg.Get("echo")
	require.True(t, ok)
	assert.True(t, p.IsOpen())

	assert.Equal(t, []string{"echo"}, reg.Names())

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_RegisterDuplicateNameFails(t *testing.T) {
	r := newTestReactor(t)
	remote := startEchoServer(t)

	reg := crusher.NewRegistry()
	require.NoError(t, reg.Register("echo", crusher.NewTCP(crusher.NewTCPOptions(freePort(t), remote.String(), r))))
	err := reg.Register("echo", crusher.NewTCP(crusher.NewTCPOptions(freePort(t), remote.String(), r)))
	assert.Error(t, err)
}
