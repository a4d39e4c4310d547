package sqlstore

import "encoding/json"

type codec[T any] interface {
	Encode(T) (string, error)
	Decode(string) (T, error)
}

type jsonCodec[T any] struct{}

func (jsonCodec[T]) Encode(v T) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func (jsonCodec[T]) Decode(data string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(data), &v)
	return v, err
}
