package transport

import (
	"github.com/klauspost/compress/zstd"
)

// Compressed wraps ch so that every outbound record is zstd-compressed and
// every inbound record is decompressed before the rest of the engine sees
// it. Both peers must agree to use it and wrap their channels explicitly;
// no other transport in this package applies it on its own.
func Compressed(ch Channel) (Channel, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &compressed{inner: ch, enc: enc, dec: dec}, nil
}

type compressed struct {
	inner Channel
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

func (c *compressed) Send(msg []byte) error {
	return c.inner.Send(c.enc.EncodeAll(msg, nil))
}

func (c *compressed) Recv() ([]byte, error) {
	raw, err := c.inner.Recv()
	if err != nil {
		return nil, err
	}
	return c.dec.DecodeAll(raw, nil)
}

func (c *compressed) Close() error {
	c.enc.Close()
	c.dec.Close()
	return c.inner.Close()
}
