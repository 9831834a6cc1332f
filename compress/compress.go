// Package compress implements the multi-algorithm byte compressor: a
// self-describing 12-byte frame (magic + original size + CRC32) wrapping a
// payload produced by one of several interchangeable algorithms.
package compress

import (
	"bytes"
	"compress/bzip2"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algo identifies a compression algorithm by its on-disk magic value.
type Algo string

const (
	AlgoNone Algo = "none"
	AlgoZlib Algo = "zlib"
	AlgoLZ4  Algo = "lz4"
	AlgoZstd Algo = "zstd"
	AlgoBz2  Algo = "bz2"
	AlgoLZMA Algo = "lzma"
)

const frameHeaderSize = 12

var magicForAlgo = map[Algo][4]byte{
	AlgoNone: {'V', 'N', '0', '1'},
	AlgoZlib: {'V', 'Z', '0', '1'},
	AlgoLZ4:  {'V', 'L', '0', '1'},
	AlgoZstd: {'V', 'S', '0', '1'},
	AlgoBz2:  {'V', 'B', '0', '1'},
	AlgoLZMA: {'V', 'X', '0', '1'},
}

var algoForMagic = func() map[[4]byte]Algo {
	m := make(map[[4]byte]Algo, len(magicForAlgo))
	for a, mg := range magicForAlgo {
		m[mg] = a
	}
	return m
}()

// ErrCorruptedFrame is returned when a frame's header is malformed or its
// CRC32 does not match the decompressed payload.
var ErrCorruptedFrame = errors.New("compress: corrupted frame")

// ErrUnsupportedAlgorithm is returned when a frame names an algorithm this
// build has no backend for (currently: lzma has neither an encoder nor a
// decoder available anywhere in the dependency set).
var ErrUnsupportedAlgorithm = errors.New("compress: unsupported algorithm")

// Compress frames src using algo at the given level. A level of 0 lets the
// algorithm pick its own default. If the compressed payload is not smaller
// than src, the frame falls back to AlgoNone and the payload is src itself.
func Compress(src []byte, algo Algo, level int) ([]byte, error) {
	payload, err := encode(src, algo, level)
	if err != nil {
		return nil, err
	}
	finalAlgo := algo
	if algo != AlgoNone && len(payload) >= len(src) {
		finalAlgo = AlgoNone
		payload = src
	}
	return frame(finalAlgo, src, payload), nil
}

// Decompress parses a framed buffer, verifies its CRC32, and returns the
// original bytes.
func Decompress(framed []byte) ([]byte, error) {
	if len(framed) < frameHeaderSize {
		return nil, fmt.Errorf("%w: short frame", ErrCorruptedFrame)
	}
	var magic [4]byte
	copy(magic[:], framed[0:4])
	algo, ok := algoForMagic[magic]
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized magic %q", ErrCorruptedFrame, magic)
	}
	origSize := binary.LittleEndian.Uint32(framed[4:8])
	wantCRC := binary.LittleEndian.Uint32(framed[8:12])
	payload := framed[frameHeaderSize:]

	out, err := decode(payload, algo)
	if err != nil {
		return nil, err
	}
	// origSize is truncated to 32 bits per the frame format; only reject
	// on mismatch when it wasn't saturated.
	if origSize != 0xFFFFFFFF && uint32(len(out)) != origSize {
		return nil, fmt.Errorf("%w: size mismatch", ErrCorruptedFrame)
	}
	if crc32.ChecksumIEEE(out) != wantCRC {
		return nil, fmt.Errorf("%w: crc mismatch", ErrCorruptedFrame)
	}
	return out, nil
}

func frame(algo Algo, original, payload []byte) []byte {
	magic := magicForAlgo[algo]
	buf := make([]byte, frameHeaderSize+len(payload))
	copy(buf[0:4], magic[:])
	size := uint64(len(original))
	if size > 0xFFFFFFFF {
		size = 0xFFFFFFFF
	}
	binary.LittleEndian.PutUint32(buf[4:8], uint32(size))
	binary.LittleEndian.PutUint32(buf[8:12], crc32.ChecksumIEEE(original))
	copy(buf[frameHeaderSize:], payload)
	return buf
}

func encode(src []byte, algo Algo, level int) ([]byte, error) {
	switch algo {
	case AlgoNone:
		return src, nil
	case AlgoZlib:
		return encodeZlib(src, level)
	case AlgoLZ4:
		return encodeLZ4(src, level)
	case AlgoZstd:
		return encodeZstd(src, level)
	case AlgoBz2, AlgoLZMA:
		// No bzip2 or lzma encoder is available (compress/bzip2 is
		// read-only), so these magics can be decoded but never written.
		return nil, fmt.Errorf("%w: %s has no encoder available", ErrUnsupportedAlgorithm, algo)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algo)
	}
}

func decode(payload []byte, algo Algo) ([]byte, error) {
	switch algo {
	case AlgoNone:
		return payload, nil
	case AlgoZlib:
		return decodeZlib(payload)
	case AlgoLZ4:
		return decodeLZ4(payload)
	case AlgoZstd:
		return decodeZstd(payload)
	case AlgoBz2:
		return decodeBz2(payload)
	case AlgoLZMA:
		return nil, fmt.Errorf("%w: lzma has no decoder available", ErrUnsupportedAlgorithm)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algo)
	}
}

func encodeZlib(src []byte, level int) ([]byte, error) {
	if level == 0 {
		level = zlib.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeZlib(payload []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func encodeLZ4(src []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if level > 0 {
		if err := w.Apply(lz4.CompressionLevelOption(lz4Level(level))); err != nil {
			return nil, err
		}
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// lz4Level maps a small 1..9 profile level onto the library's
// CompressionLevel flags (Level1 = 1<<9 ... Level9 = 1<<17).
func lz4Level(level int) lz4.CompressionLevel {
	if level < 1 {
		return lz4.Fast
	}
	if level > 9 {
		level = 9
	}
	return lz4.CompressionLevel(1 << (8 + level))
}

func decodeLZ4(payload []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(payload))
	return io.ReadAll(r)
}

func encodeZstd(src []byte, level int) ([]byte, error) {
	opts := []zstd.EOption{}
	if level > 0 {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(src, nil), nil
}

func decodeZstd(payload []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(payload, nil)
}

func decodeBz2(payload []byte) ([]byte, error) {
	return io.ReadAll(bzip2.NewReader(bytes.NewReader(payload)))
}
