package history

import "github.com/AnatoleLucet/rewind/internal/pmap"

// Index maps checkpoint names and snapshot labels to version seqs.
type Index struct {
	names pmap.Map[string, uint64]
}

func NewIndex() *Index {
	return &Index{names: pmap.New[string, uint64]()}
}

func (i *Index) Lookup(name string) (uint64, bool) {
	return i.names.Get(name)
}

func (i *Index) Register(name string, seq uint64) {
	i.names = i.names.Set(name, seq)
}

// DropAfter forgets every name pointing past seq.
func (i *Index) DropAfter(seq uint64) []string {
	var dropped []string
	i.names.Range(func(name string, s uint64) bool {
		if s > seq {
			dropped = append(dropped, name)
		}
		return true
	})
	for _, name := range dropped {
		i.names = i.names.Delete(name)
	}
	return dropped
}

// Names returns the registered names in lexical order.
func (i *Index) Names() []string {
	return i.names.Keys()
}

func (i *Index) Len() int {
	return i.names.Len()
}

func (i *Index) Clear() {
	i.names = pmap.New[string, uint64]()
}
