package density

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	magic          = "VDEN"
	encodingV1     = 1
	headerSize     = len(magic) + 3*4
	maxDecodedBins = 1 << 24
)

// MarshalBinary stores: magic "VDEN", version(uint32), neighborhood(uint32),
// bins(uint32), edges(float64[bins+1]), cumulative(float64[bins]).
func (e *Estimator) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, headerSize+8*(len(e.edges)+len(e.cumulative)))
	out = append(out, magic...)
	out = binary.LittleEndian.AppendUint32(out, encodingV1)
	out = binary.LittleEndian.AppendUint32(out, uint32(e.neighborhood))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(e.cumulative)))
	for _, v := range e.edges {
		out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v))
	}
	for _, v := range e.cumulative {
		out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v))
	}
	return out, nil
}

// Decode restores an Estimator from bytes produced by MarshalBinary. Only
// WithLogger among the options applies.
func Decode(data []byte, opts ...Option) (*Estimator, error) {
	if len(data) < headerSize || string(data[:len(magic)]) != magic {
		return nil, errors.New("density: invalid estimator data")
	}
	off := len(magic)
	getU32 := func() uint32 { v := binary.LittleEndian.Uint32(data[off:]); off += 4; return v }
	if version := getU32(); version != encodingV1 {
		return nil, fmt.Errorf("density: unsupported estimator encoding version %d", version)
	}
	neighborhood := int(getU32())
	bins := int(getU32())
	if neighborhood < 1 || bins < 1 || bins > maxDecodedBins {
		return nil, fmt.Errorf("density: invalid estimator header: neighborhood %d, bins %d", neighborhood, bins)
	}
	if want := headerSize + 8*(2*bins+1); len(data) != want {
		return nil, fmt.Errorf("density: estimator data has %d bytes, want %d", len(data), want)
	}
	getF64 := func() float64 { v := math.Float64frombits(binary.LittleEndian.Uint64(data[off:])); off += 8; return v }
	edges := make([]float64, bins+1)
	for i := range edges {
		edges[i] = getF64()
		if math.IsNaN(edges[i]) || (i > 0 && edges[i] <= edges[i-1]) {
			return nil, errors.New("density: estimator edges are not increasing")
		}
	}
	cumulative := make([]float64, bins)
	for i := range cumulative {
		cumulative[i] = getF64()
		if math.IsNaN(cumulative[i]) || cumulative[i] < 0 || (i > 0 && cumulative[i] < cumulative[i-1]) {
			return nil, errors.New("density: estimator cumulative values are not non-decreasing")
		}
	}
	o := newOptions(opts)
	return &Estimator{
		cumulative:   cumulative,
		edges:        edges,
		neighborhood: neighborhood,
		logger:       o.logger,
	}, nil
}

// UnmarshalBinary replaces e with the estimator encoded in data. The logger
// of e is kept, or slog.Default() when e has none.
func (e *Estimator) UnmarshalBinary(data []byte) error {
	var opts []Option
	if e.logger != nil {
		opts = append(opts, WithLogger(e.logger))
	}
	decoded, err := Decode(data, opts...)
	if err != nil {
		return err
	}
	*e = *decoded
	return nil
}
