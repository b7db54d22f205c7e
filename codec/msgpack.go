package codec

import "github.com/vmihailenco/msgpack/v5"

// MsgpackFormat is the storage format name of the msgpack codec.
const MsgpackFormat = "msgpack"

// Msgpack encodes a batch as one msgpack array; denser than JSON and
// preferable for numeric-heavy elements.
type Msgpack[T any] struct{}

func (Msgpack[T]) Encode(batch []T) ([]byte, error) {
	return msgpack.Marshal(batch)
}

func (Msgpack[T]) Decode(data []byte) ([]T, error) {
	var batch []T
	if err := msgpack.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (Msgpack[T]) Extension() string { return "mp" }
