package codec

import "encoding/json"

// JSONFormat is the storage format name of the JSON codec.
const JSONFormat = "json"

// JSON encodes a batch as one JSON array. Tuple-like values decay to the
// nearest JSON type on round trip.
type JSON[T any] struct{}

func (JSON[T]) Encode(batch []T) ([]byte, error) {
	return json.Marshal(batch)
}

func (JSON[T]) Decode(data []byte) ([]T, error) {
	var batch []T
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (JSON[T]) Extension() string { return "json" }
