package persistence

import "time"

// Namespace separates the small settings area from the translation cache.
type Namespace string

const (
	NamespaceSettings Namespace = "settings"
	NamespaceCache    Namespace = "cache"
)

// Op is one step of an atomic batch. Clear runs before Values are written.
type Op struct {
	Namespace Namespace
	Clear     bool
	Values    map[string]string
}

func ClearOp(ns Namespace) Op {
	return Op{Namespace: ns, Clear: true}
}

func SetOp(ns Namespace, values map[string]string) Op {
	return Op{Namespace: ns, Values: values}
}

// Change is published on the change feed after a successful write.
// Keys is empty when the whole namespace was cleared.
type Change struct {
	Namespace Namespace
	Keys      []string
	Cleared   bool
	At        time.Time
}

func (c Change) Touches(key string) bool {
	if c.Cleared {
		return true
	}
	for _, k := range c.Keys {
		if k == key {
			return true
		}
	}
	return false
}
