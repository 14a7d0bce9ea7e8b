package relay

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLastRegisterWins(t *testing.T) {
	r := NewRegistry()
	first, second := newFakeConn("c1"), newFakeConn("c2")

	r.Register("alice", first, loc(1, 1))
	r.Register("alice", second, loc(2, 2))

	e, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c2", e.Conn.ID())
	assert.JSONEq(t, `{"lat":2,"lng":2}`, string(e.Location))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register("alice", newFakeConn("c1"), loc(1, 1))

	r.Remove("alice")
	r.Remove("alice")
	r.Remove("nobody")

	_, ok := r.Lookup("alice")
	assert.False(t, ok)
}

func TestRegistryReleaseOnlyOwnConnection(t *testing.T) {
	r := NewRegistry()
	old, fresh := newFakeConn("old"), newFakeConn("new")

	r.Register("alice", old, loc(1, 1))
	r.Register("alice", fresh, loc(1, 1))

	assert.False(t, r.Release("alice", old))
	_, ok := r.Lookup("alice")
	assert.True(t, ok)

	assert.True(t, r.Release("alice", fresh))
	_, ok = r.Lookup("alice")
	assert.False(t, ok)
}

func TestRegistryUpdateLocation(t *testing.T) {
	r := NewRegistry()
	own, other := newFakeConn("c1"), newFakeConn("c2")
	r.Register("alice", own, loc(1, 1))

	assert.False(t, r.UpdateLocation("alice", other, loc(5, 5)))
	assert.False(t, r.UpdateLocation("bob", own, loc(5, 5)))
	assert.True(t, r.UpdateLocation("alice", own, loc(3, 3)))

	e, _ := r.Lookup("alice")
	assert.JSONEq(t, `{"lat":3,"lng":3}`, string(e.Location))
}

func TestRegistryConcurrentRegisterStorm(t *testing.T) {
	r := NewRegistry()
	const identities, rounds = 200, 5

	var wg sync.WaitGroup
	for i := 0; i < identities; i++ {
		for j := 0; j < rounds; j++ {
			wg.Add(1)
			go func(i, j int) {
				defer wg.Done()
				id := fmt.Sprintf("user-%d", i)
				r.Register(id, newFakeConn(fmt.Sprintf("%s-%d", id, j)), loc(1, 1))
				_, _ = r.Lookup(id)
			}(i, j)
		}
	}
	wg.Wait()

	assert.Equal(t, identities, r.Len())
	snap := r.Snapshot()
	require.Len(t, snap, identities)
	seen := map[string]bool{}
	for _, e := range snap {
		assert.False(t, seen[e.Identity], "duplicate %s", e.Identity)
		seen[e.Identity] = true
	}
}
