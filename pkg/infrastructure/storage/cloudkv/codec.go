package cloudkv

import "encoding/json"

func encode[T any](v T) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func decode[T any](data string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(data), &v)
	return v, err
}
