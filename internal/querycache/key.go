package querycache

import (
	"encoding/json"
	"fmt"
)

// Key identifies a cached query: a resource kind plus the canonical JSON
// encoding of every parameter that affects the result. Structurally equal
// parameters yield equal keys.
type Key struct {
	Kind   string
	Params string
}

// NewKey builds a Key. Map parameters encode with sorted keys and struct
// parameters in field order, so the encoding is deterministic.
func NewKey(kind string, params any) Key {
	if params == nil {
		return Key{Kind: kind}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return Key{Kind: kind, Params: fmt.Sprintf("%#v", params)}
	}
	return Key{Kind: kind, Params: string(raw)}
}

func (k Key) String() string {
	if k.Params == "" {
		return k.Kind
	}
	return k.Kind + ":" + k.Params
}
