// Package codec centralizes JSON encoding of snapshots, deltas, and events so
// the json implementation can be swapped in one place.
package codec

import (
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

func Decode[T any](bz []byte) (T, error) {
	val := new(T)
	err := json.Unmarshal(bz, val)
	if err != nil {
		return *val, eris.Wrap(err, "")
	}
	return *val, nil
}

func Encode(val any) ([]byte, error) {
	bz, err := json.Marshal(val)
	if err != nil {
		return nil, eris.Wrap(err, "")
	}
	return bz, nil
}
