package cache

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes values for the remote tier.
type Codec interface {
	Name() string
	Marshal(val any) ([]byte, error)
	Unmarshal(data []byte) (any, error)
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(val any) ([]byte, error) {
	return json.Marshal(val)
}

func (jsonCodec) Unmarshal(data []byte) (any, error) {
	var val any
	if err := json.Unmarshal(data, &val); err != nil {
		return nil, err
	}
	return val, nil
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Marshal(val any) ([]byte, error) {
	return msgpack.Marshal(val)
}

func (msgpackCodec) Unmarshal(data []byte) (any, error) {
	var val any
	if err := msgpack.Unmarshal(data, &val); err != nil {
		return nil, err
	}
	return val, nil
}

var (
	// JSON stores values as JSON text, readable by any client sharing the store.
	JSON Codec = jsonCodec{}
	// Msgpack stores values as msgpack.
	Msgpack Codec = msgpackCodec{}
)

// CodecByName returns the codec called name. An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return Msgpack, nil
	}
	return nil, errors.Mark(errors.Newf("cache: unknown codec %q", name), ErrConfiguration)
}
