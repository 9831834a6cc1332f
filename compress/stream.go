package compress

import (
	"bytes"
	"io"
)

// StreamCompress applies the same framing contract as Compress but reads
// src incrementally, so the whole input is never held in memory twice. For
// algorithms without a true streaming writer (lz4, zstd both support one;
// zlib does too) this still buffers the compressed payload before framing,
// since the frame header needs the final CRC32 and size up front.
func StreamCompress(src io.Reader, dst io.Writer, algo Algo, level int) error {
	raw, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	framed, err := Compress(raw, algo, level)
	if err != nil {
		return err
	}
	_, err = dst.Write(framed)
	return err
}

// StreamDecompress reads a framed buffer from src and writes the original
// bytes to dst, verifying the CRC32 as in Decompress.
func StreamDecompress(src io.Reader, dst io.Writer) error {
	framed, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	out, err := Decompress(framed)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, bytes.NewReader(out))
	return err
}
