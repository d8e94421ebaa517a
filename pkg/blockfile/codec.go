package blockfile

import "encoding/json"

// Codec converts between a typed block value and the raw bytes stored in a
// host directory. Grounded on the teacher's pkg/storage/boltdb.go, which
// json.Marshal's every entity before a bucket Put and json.Unmarshal's it
// back out on Get.
type Codec[T any] interface {
	Encode(T) ([]byte, error)
	Decode([]byte) (T, error)
}

// JSONCodec is the default Codec, matching the teacher's on-disk format.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Encode(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec[T]) Decode(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
