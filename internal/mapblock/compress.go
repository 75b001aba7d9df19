package mapblock

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Codec — кодек мапблоков с долгоживущими ресурсами сжатия.
// Один Codec можно переиспользовать для многих блоков; одновременный
// вызов Decode/Encode из нескольких горутин безопасен
// (EncodeAll/DecodeAll у zstd конкурентны).
type Codec struct {
	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

// NewCodec создаёт кодек, инициализируя zstd-компрессор и декомпрессор.
func NewCodec() (*Codec, error) {
	zenc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, &CompressionError{Algo: "zstd", Err: err}
	}
	zdec, err := zstd.NewReader(nil)
	if err != nil {
		zenc.Close()
		return nil, &CompressionError{Algo: "zstd", Err: err}
	}
	return &Codec{zenc: zenc, zdec: zdec}, nil
}

// Close освобождает ресурсы zstd.
func (c *Codec) Close() {
	c.zenc.Close()
	c.zdec.Close()
}

// zstdCompress сжимает весь конверт блока версии ≥29.
func (c *Codec) zstdCompress(data []byte) []byte {
	return c.zenc.EncodeAll(data, make([]byte, 0, len(data)/2))
}

// zstdDecompress распаковывает конверт блока версии ≥29.
func (c *Codec) zstdDecompress(data []byte) ([]byte, error) {
	out, err := c.zdec.DecodeAll(data, nil)
	if err != nil {
		return nil, &CompressionError{Algo: "zstd", Err: err}
	}
	return out, nil
}

// readZlibSection читает одну zlib-секцию легаси-формата, потребляя
// из r ровно байты сжатого потока. Секции не имеют префикса длины,
// поэтому источником служит *bytes.Reader: он реализует io.ByteReader,
// и flate гарантированно не читает дальше конца потока.
func readZlibSection(r *bytes.Reader) ([]byte, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, &CompressionError{Algo: "zlib", Err: err}
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, &CompressionError{Algo: "zlib", Err: err}
	}
	return data, nil
}

// writeZlibSection дописывает в w одну zlib-секцию легаси-формата.
func writeZlibSection(w *bytes.Buffer, data []byte) error {
	zw := zlib.NewWriter(w)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return &CompressionError{Algo: "zlib", Err: err}
	}
	if err := zw.Close(); err != nil {
		return &CompressionError{Algo: "zlib", Err: err}
	}
	return nil
}
