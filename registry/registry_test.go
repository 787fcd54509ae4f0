package registry

import (
	"errors"
	"github.com/stretchr/testify/assert"
	"testing"
)

type fakeClient struct {
	name string
	sent []interface{}
	err  error
}

func (f *fakeClient) Send(message interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, message)
	return nil
}

func TestAttachDetachFind(t *testing.T) {
	r := New()
	c := &fakeClient{name: "a"}
	assert.True(t, r.Attach("A", c))
	assert.Equal(t, 1, r.Len())

	var found Client
	r.Find("A", func(client Client) { found = client })
	assert.Same(t, c, found)

	detached := false
	r.Detach("A", func() { detached = true })
	assert.True(t, detached)
	assert.Equal(t, 0, r.Len())

	r.Find("A", func(client Client) { t.Fatal("detached connection must not be found") })
}

func TestDetachUnknownStillCallsBack(t *testing.T) {
	r := New()
	called := false
	r.Detach("missing", func() { called = true })
	assert.True(t, called)
	// callback 为空也不应出错
	r.Detach("missing", nil)
}

func TestFindNilClient(t *testing.T) {
	r := New()
	r.Attach("nil", nil)
	r.Find("nil", func(client Client) { t.Fatal("nil client must not be passed to callback") })
}

func TestAttachDuplicateIsNoop(t *testing.T) {
	r := New()
	first, second := &fakeClient{name: "first"}, &fakeClient{name: "second"}
	assert.True(t, r.Attach("A", first))
	assert.False(t, r.Attach("A", second))
	assert.Equal(t, 1, r.Len())
	r.Find("A", func(client Client) { assert.Same(t, first, client) })
}

func TestForEachMostRecentFirst(t *testing.T) {
	r := New()
	for _, id := range []string{"A", "B", "C"} {
		r.Attach(id, &fakeClient{name: id})
	}
	var visited []string
	r.ForEach(func(id string, client Client) { visited = append(visited, id) })
	assert.Equal(t, []string{"C", "B", "A"}, visited)
}

func TestForEachToleratesDetach(t *testing.T) {
	r := New()
	for _, id := range []string{"A", "B", "C", "D"} {
		r.Attach(id, &fakeClient{name: id})
	}
	var visited []string
	r.ForEach(func(id string, client Client) {
		visited = append(visited, id)
		// 删除当前节点和它的下一个节点
		if id == "C" {
			r.Detach("C", nil)
			r.Detach("B", nil)
		}
	})
	assert.Equal(t, []string{"D", "C", "A"}, visited)
	assert.Equal(t, 2, r.Len())
}

func TestBroadcast(t *testing.T) {
	r := New()
	a, b := &fakeClient{name: "a"}, &fakeClient{name: "b", err: errors.New("closed")}
	r.Attach("A", a)
	r.Attach("B", b)
	r.Broadcast("hello")
	assert.Equal(t, []interface{}{"hello"}, a.sent)
	assert.Empty(t, b.sent)
}
