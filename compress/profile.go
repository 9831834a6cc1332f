package compress

import (
	"fmt"
	"time"
)

// Profile names a human-friendly (algorithm, level) pair.
type Profile struct {
	Algo  Algo
	Level int
}

// Profiles maps profile names to algorithm/level pairs.
var Profiles = map[string]Profile{
	"fastest":    {AlgoLZ4, 1},
	"fast":       {AlgoZstd, 1},
	"balanced":   {AlgoZstd, 3},
	"default":    {AlgoZstd, 3},
	"high":       {AlgoZstd, 9},
	"maximum":    {AlgoZstd, 19},
	"archive":    {AlgoZlib, 9},
	"text":       {AlgoZstd, 9},
	"embeddings": {AlgoZlib, 6},
	"metadata":   {AlgoZlib, 1},
}

// CompressProfile compresses src using the named profile.
func CompressProfile(src []byte, name string) ([]byte, error) {
	p, ok := Profiles[name]
	if !ok {
		return nil, fmt.Errorf("compress: unknown profile %q", name)
	}
	return Compress(src, p.Algo, p.Level)
}

// candidateAlgos is the set benchmarked by CompressAuto.
var candidateAlgos = []Algo{AlgoLZ4, AlgoZlib, AlgoZstd}

// CompressAuto benchmarks src against the candidate algorithms and picks
// the one scoring highest on 0.6*ratio + 0.4*normalized_time, where ratio
// is original/compressed and normalized_time is the fastest candidate's
// duration divided by this candidate's duration (so faster scores higher).
func CompressAuto(src []byte) ([]byte, Algo, error) {
	type trial struct {
		algo     Algo
		payload  []byte
		duration time.Duration
	}
	var trials []trial
	var fastest time.Duration
	for _, algo := range candidateAlgos {
		start := time.Now()
		payload, err := encode(src, algo, 0)
		if err != nil {
			continue
		}
		d := time.Since(start)
		if fastest == 0 || d < fastest {
			fastest = d
		}
		trials = append(trials, trial{algo: algo, payload: payload, duration: d})
	}
	if len(trials) == 0 {
		framed, err := Compress(src, AlgoNone, 0)
		return framed, AlgoNone, err
	}

	var best trial
	bestScore := -1.0
	for _, t := range trials {
		ratio := 1.0
		if len(t.payload) > 0 {
			ratio = float64(len(src)) / float64(len(t.payload))
		}
		normTime := 1.0
		if t.duration > 0 {
			normTime = float64(fastest) / float64(t.duration)
		}
		score := 0.6*ratio + 0.4*normTime
		if score > bestScore {
			bestScore = score
			best = t
		}
	}

	finalAlgo := best.algo
	payload := best.payload
	if len(payload) >= len(src) {
		finalAlgo = AlgoNone
		payload = src
	}
	return frame(finalAlgo, src, payload), finalAlgo, nil
}
