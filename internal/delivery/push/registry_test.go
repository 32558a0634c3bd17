package push

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeConn struct {
	name string
}

func (f *fakeConn) Send(context.Context, Event) error { return nil }
func (f *fakeConn) Close() error                      { return nil }

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := NewRegistry()
	first, second := &fakeConn{name: "first"}, &fakeConn{name: "second"}

	assert.Nil(t, r.Set("u-1", first))
	assert.Same(t, first, r.Set("u-1", second))

	got, ok := r.Get("u-1")
	assert.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RemoveIsCompareAndDelete(t *testing.T) {
	r := NewRegistry()
	first, second := &fakeConn{name: "first"}, &fakeConn{name: "second"}

	r.Set("u-1", first)
	r.Set("u-1", second)

	assert.False(t, r.Remove("u-1", first), "stale connection must not evict the newer one")
	_, ok := r.Get("u-1")
	assert.True(t, ok)

	assert.True(t, r.Remove("u-1", second))
	_, ok = r.Get("u-1")
	assert.False(t, ok)
	assert.False(t, r.Remove("u-1", second))
}

func TestRegistry_SetSameConnectionReportsNoReplacement(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{}

	r.Set("u-1", c)
	assert.Nil(t, r.Set("u-1", c))
}
