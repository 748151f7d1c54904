// Package pmap provides persistent maps backed by an immutable radix tree.
//
// Every update returns a new Map that shares structure with the old one, so
// holding on to an old Map is a free, immutable capture of its contents.
package pmap

import (
	"encoding/binary"
	"reflect"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// Key is the set of key types a Map accepts. Unsigned keys are stored
// big-endian so iteration follows numeric order.
type Key interface {
	~uint64 | ~string
}

var empty = iradix.New()

type Map[K Key, V any] struct {
	tree *iradix.Tree
}

func New[K Key, V any]() Map[K, V] {
	return Map[K, V]{tree: empty}
}

func encode[K Key](k K) []byte {
	rv := reflect.ValueOf(k)
	if rv.Kind() == reflect.String {
		return []byte(rv.String())
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, rv.Uint())
	return buf
}

func decode[K Key](b []byte) K {
	var k K
	rv := reflect.ValueOf(&k).Elem()
	if rv.Kind() == reflect.String {
		rv.SetString(string(b))
	} else {
		rv.SetUint(binary.BigEndian.Uint64(b))
	}
	return k
}

func (m Map[K, V]) root() *iradix.Tree {
	if m.tree == nil {
		return empty
	}
	return m.tree
}

func (m Map[K, V]) Get(k K) (V, bool) {
	raw, ok := m.root().Get(encode(k))
	if !ok {
		var zero V
		return zero, false
	}
	return raw.(V), true
}

func (m Map[K, V]) Has(k K) bool {
	_, ok := m.root().Get(encode(k))
	return ok
}

// Set returns a map with k bound to v.
func (m Map[K, V]) Set(k K, v V) Map[K, V] {
	tree, _, _ := m.root().Insert(encode(k), v)
	return Map[K, V]{tree: tree}
}

// Delete returns a map without k.
func (m Map[K, V]) Delete(k K) Map[K, V] {
	tree, _, _ := m.root().Delete(encode(k))
	return Map[K, V]{tree: tree}
}

func (m Map[K, V]) Len() int {
	return m.root().Len()
}

// Same reports whether both maps share the same root, which implies equal
// contents without walking them.
func (m Map[K, V]) Same(other Map[K, V]) bool {
	return m.root() == other.root()
}

// Range calls fn in key order until it returns false.
func (m Map[K, V]) Range(fn func(K, V) bool) {
	m.root().Root().Walk(func(k []byte, v interface{}) bool {
		return !fn(decode[K](k), v.(V))
	})
}

// Keys returns all keys in order.
func (m Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.Len())
	m.Range(func(k K, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Builder batches several updates into one new version of a map.
type Builder[K Key, V any] struct {
	txn *iradix.Txn
}

func (m Map[K, V]) Builder() *Builder[K, V] {
	return &Builder[K, V]{txn: m.root().Txn()}
}

func (b *Builder[K, V]) Set(k K, v V) {
	b.txn.Insert(encode(k), v)
}

func (b *Builder[K, V]) Get(k K) (V, bool) {
	raw, ok := b.txn.Get(encode(k))
	if !ok {
		var zero V
		return zero, false
	}
	return raw.(V), true
}

func (b *Builder[K, V]) Map() Map[K, V] {
	return Map[K, V]{tree: b.txn.Commit()}
}
