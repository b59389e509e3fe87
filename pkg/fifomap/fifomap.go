package fifomap

import (
	"container/list"
	"sync"
)

// FIFOMap is a bounded map that evicts the oldest insertion once full.
// Reads do not refresh an entry's position.
type FIFOMap[K comparable, V any] struct {
	maxSize  int
	elements *list.List
	items    map[K]*list.Element
	lock     sync.RWMutex
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

func NewFIFOMap[K comparable, V any](maxSize int) *FIFOMap[K, V] {
	if maxSize <= 0 {
		panic("maxSize must be positive")
	}
	return &FIFOMap[K, V]{
		maxSize:  maxSize,
		elements: list.New(),
		items:    make(map[K]*list.Element),
	}
}

// Set stores value under key. Updating an existing key moves it to the front.
func (m *FIFOMap[K, V]) Set(key K, value V) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.set(key, value)
}

func (m *FIFOMap[K, V]) set(key K, value V) {
	if elem, exists := m.items[key]; exists {
		m.elements.MoveToFront(elem)
		elem.Value.(*entry[K, V]).value = value
		return
	}

	if m.elements.Len() >= m.maxSize {
		if oldest := m.elements.Back(); oldest != nil {
			delete(m.items, oldest.Value.(*entry[K, V]).key)
			m.elements.Remove(oldest)
		}
	}

	m.items[key] = m.elements.PushFront(&entry[K, V]{key, value})
}

// SetIfAbsent stores value unless key is present, reporting whether it did.
func (m *FIFOMap[K, V]) SetIfAbsent(key K, value V) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, exists := m.items[key]; exists {
		return false
	}
	m.set(key, value)
	return true
}

func (m *FIFOMap[K, V]) Get(key K) (V, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if elem, exists := m.items[key]; exists {
		return elem.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

func (m *FIFOMap[K, V]) Delete(key K) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if elem, exists := m.items[key]; exists {
		m.elements.Remove(elem)
		delete(m.items, key)
	}
}

func (m *FIFOMap[K, V]) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.elements.Len()
}

// GetAll returns the values newest first.
func (m *FIFOMap[K, V]) GetAll() []V {
	m.lock.RLock()
	defer m.lock.RUnlock()

	result := make([]V, 0, m.elements.Len())
	for elem := m.elements.Front(); elem != nil; elem = elem.Next() {
		result = append(result, elem.Value.(*entry[K, V]).value)
	}
	return result
}

func (m *FIFOMap[K, V]) Clear() {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.elements = list.New()
	m.items = make(map[K]*list.Element)
}
