package util

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"

	"github.com/Jclennon97/bustub-jc/storage/disk"
)

// ToByteSlice msgpack-encodes obj into a page-sized buffer, the on-disk
// representation every page layout (leaf, internal, header) uses.
func ToByteSlice[T any](obj T) ([]byte, error) {
	res := make([]byte, disk.PAGE_SIZE)

	data, err := msgpack.Marshal(obj)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling page")
	}
	if len(data) > len(res) {
		return nil, errors.Errorf("encoded page is %d bytes, exceeds page size %d", len(data), len(res))
	}
	copy(res, data)

	return res, nil
}

// ToStruct msgpack-decodes a page-sized buffer back into T.
func ToStruct[T any](data []byte) (T, error) {
	var res T

	if err := msgpack.Unmarshal(data, &res); err != nil {
		return res, errors.Wrap(err, "unmarshaling page")
	}

	return res, nil
}
