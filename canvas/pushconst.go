package canvas

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
)

// EncodePushConstants lays out p the way it is uploaded with each dispatch.
func EncodePushConstants[P any](p P) ([]byte, error) {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, common.ByteOrder, p)
	if err != nil {
		return nil, errors.Wrapf(err, "push constants of type %T are not fixed-size", p)
	}
	return buf.Bytes(), nil
}
