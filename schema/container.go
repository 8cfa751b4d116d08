// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package schema

// Container is the closed set of container encodings a schema can
// attach to a sequence or map member. The encoding decides the wire
// tree shape of the container; both the encode and decode realizers
// match exhaustively over this set. Adding a wire format must never
// require a new case here.
type Container interface {
	container()
}

// DefaultContainer renders sequences as repeated entries with no
// wrapper (query: path.N) and maps as flat key/value pairs.
type DefaultContainer struct{}

// FlatListContainer behaves identically to DefaultContainer for
// sequences. Service schemas declare it explicitly; the distinction
// is preserved for schema fidelity even though current wire behaviour
// is the same.
type FlatListContainer struct{}

// ListContainer wraps sequence entries in a parent element, each
// entry named Member (query: path.member.N).
type ListContainer struct {
	Member string
}

// FlatMapContainer renders map pairs as unwrapped siblings, each pair
// holding a Key and Value child (query: path.N.key, path.N.value).
type FlatMapContainer struct {
	Key   string
	Value string
}

// MapContainer wraps map pairs in a parent element containing Entry
// children, each with Key and Value sub-elements (query:
// path.entry.N.key, path.entry.N.value).
type MapContainer struct {
	Entry string
	Key   string
	Value string
}

func (DefaultContainer) container()  {}
func (FlatListContainer) container() {}
func (ListContainer) container()     {}
func (FlatMapContainer) container()  {}
func (MapContainer) container()      {}
