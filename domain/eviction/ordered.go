package eviction

import "container/list"

// orderedMap is a map with LRU ordering: front of the list is the least
// recently used key, back is the most recently used.
type orderedMap[V any] struct {
	order *list.List
	items map[string]*list.Element
}

type orderedItem[V any] struct {
	key   string
	value V
}

func newOrderedMap[V any]() *orderedMap[V] {
	return &orderedMap[V]{
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

func (m *orderedMap[V]) len() int { return m.order.Len() }

func (m *orderedMap[V]) contains(key string) bool {
	_, ok := m.items[key]
	return ok
}

func (m *orderedMap[V]) get(key string) (V, bool) {
	el, ok := m.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return el.Value.(orderedItem[V]).value, true
}

// putMRU inserts or refreshes key at the most-recently-used end.
func (m *orderedMap[V]) putMRU(key string, value V) {
	if el, ok := m.items[key]; ok {
		el.Value = orderedItem[V]{key: key, value: value}
		m.order.MoveToBack(el)
		return
	}
	m.items[key] = m.order.PushBack(orderedItem[V]{key: key, value: value})
}

func (m *orderedMap[V]) remove(key string) (V, bool) {
	el, ok := m.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	delete(m.items, key)
	m.order.Remove(el)
	return el.Value.(orderedItem[V]).value, true
}

// popLRU removes and returns the least-recently-used entry.
func (m *orderedMap[V]) popLRU() (string, V, bool) {
	el := m.order.Front()
	if el == nil {
		var zero V
		return "", zero, false
	}
	item := el.Value.(orderedItem[V])
	delete(m.items, item.key)
	m.order.Remove(el)
	return item.key, item.value, true
}

// peekLRU returns the least-recently-used key without removing it.
func (m *orderedMap[V]) peekLRU() (string, bool) {
	el := m.order.Front()
	if el == nil {
		return "", false
	}
	return el.Value.(orderedItem[V]).key, true
}

func (m *orderedMap[V]) clear() {
	m.order.Init()
	m.items = make(map[string]*list.Element)
}
