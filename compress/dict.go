package compress

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// TrainDictionary builds a zstd raw-content dictionary from a set of
// small-object samples. klauspost/compress does not implement zstd's
// reference COVER training algorithm, so this uses the simpler "raw
// content" dictionary form the zstd format itself supports: the samples
// concatenated up to maxSize, which WithEncoderDict/WithDecoderDicts both
// accept without a trained-dictionary header.
func TrainDictionary(samples [][]byte, maxSize int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("compress: no samples to train dictionary from")
	}
	var dict []byte
	for _, s := range samples {
		if len(dict)+len(s) > maxSize {
			remaining := maxSize - len(dict)
			if remaining <= 0 {
				break
			}
			dict = append(dict, s[:remaining]...)
			break
		}
		dict = append(dict, s...)
	}
	return dict, nil
}

// CompressWithDict compresses src using a pre-trained zstd dictionary,
// intended for amplifying ratio on many small, self-similar objects (the
// L5 full-text path for a single category of short documents).
func CompressWithDict(src []byte, dict []byte, level int) ([]byte, error) {
	opts := []zstd.EOption{zstd.WithEncoderDict(dict)}
	if level > 0 {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	payload := enc.EncodeAll(src, nil)
	return frame(AlgoZstd, src, payload), nil
}

// DecompressWithDict is the inverse of CompressWithDict.
func DecompressWithDict(framed []byte, dict []byte) ([]byte, error) {
	if len(framed) < frameHeaderSize {
		return nil, ErrCorruptedFrame
	}
	payload := framed[frameHeaderSize:]
	dec, err := zstd.NewReader(nil, zstd.WithDecoderDicts(dict))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, err
	}
	return out, nil
}
