package cache

import (
	"reflect"

	"github.com/tubelens/tubecache/types"
)

// isUnresolved reports whether v is an in-flight computation rather than a
// concrete value. Channels and funcs are how a pending result leaks into
// the cache in Go; the Pending interface lets promise-like wrappers declare
// themselves. Checked on every write path and on read hits.
func isUnresolved(v interface{}) bool {
	if v == nil {
		return false
	}

	if p, ok := v.(types.Pending); ok {
		return p.Pending()
	}

	switch reflect.TypeOf(v).Kind() {
	case reflect.Chan, reflect.Func:
		return true
	}

	return false
}
