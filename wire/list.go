package wire

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/x64dbg/bridge"
	"github.com/x64dbg/bridge/errors"
	"github.com/x64dbg/bridge/internal/abi"
)

// CopyData encodes items into a freshly allocated buffer and returns its
// handle. An empty input yields the zero handle and allocates nothing. On
// failure no buffer is left behind.
func CopyData[T any](b *Boundary, c Codec[T], items []T) (ListHandle, error) {
	if len(items) == 0 {
		return ListHandle{}, nil
	}
	if len(items) > abi.MaxListLength {
		return ListHandle{}, errors.New(errors.PhaseEncode, errors.KindOverflow).
			Call("CopyData").
			Type(c.Name()).
			Value(len(items)).
			Detail("%d elements exceeds the list limit %d", len(items), abi.MaxListLength).
			Build()
	}
	size, ok := abi.SafeMulU32(uint32(len(items)), c.Size())
	if !ok {
		return ListHandle{}, errors.Overflow(errors.PhaseEncode, []string{c.Name()}, "list byte size overflows u32")
	}
	data, err := b.Alloc(size, c.Align())
	if err != nil {
		return ListHandle{}, err
	}
	for i, item := range items {
		if err := c.Store(b.mem, data+uint32(i)*c.Size(), item); err != nil {
			b.Free(data)
			return ListHandle{}, errors.New(errors.PhaseEncode, errors.KindInvalidData).
				Call("CopyData").
				Type(c.Name()).
				Path(strconv.Itoa(i)).
				Cause(err).
				Detail("store element").
				Build()
		}
	}
	return ListHandle{Count: int32(len(items)), Size: size, Data: data}, nil
}

// Check validates h against the element size of c. A negative count, a byte
// size other than count*elemSize, a missing buffer for a non-empty list, or a
// buffer outside memory all violate the interchange contract and panic.
func Check[T any](b *Boundary, c Codec[T], h ListHandle) {
	check(b, c, h, "Check")
}

// check reports violations against call, the boundary operation the caller
// is performing.
func check[T any](b *Boundary, c Codec[T], h ListHandle, call string) {
	if h.Count < 0 {
		b.violation(errors.New(errors.PhaseDecode, errors.KindContractViolation).
			Call(call).
			Type(c.Name()).
			Value(h.Count).
			Detail("negative count %d", h.Count).
			Build())
	}
	expected := uint64(h.Count) * uint64(c.Size())
	if expected != uint64(h.Size) {
		b.violation(errors.SizeMismatch(errors.PhaseDecode, call, c.Name(), h.Count, expected, uint64(h.Size)))
	}
	if h.Count == 0 {
		return
	}
	if h.Data == 0 {
		b.violation(errors.New(errors.PhaseDecode, errors.KindContractViolation).
			Call(call).
			Type(c.Name()).
			Detail("%d elements with a null buffer", h.Count).
			Build())
	}
	if sizer, ok := b.mem.(bridge.MemorySizer); ok {
		if uint64(h.Data)+uint64(h.Size) > uint64(sizer.Size()) {
			b.violation(errors.New(errors.PhaseDecode, errors.KindContractViolation).
				Call(call).
				Type(c.Name()).
				Value(h.Data).
				Detail("buffer %#x+%d exceeds memory size %d", h.Data, h.Size, sizer.Size()).
				Build())
		}
	}
}

// ToSlice decodes the list described by h. When free is set the buffer is
// released after decoding, whatever the outcome; the handle must not be used
// again. Contract violations panic (see Check); element decode failures are
// returned.
func ToSlice[T any](b *Boundary, c Codec[T], h ListHandle, free bool) ([]T, error) {
	return decode(b, c, h, free, "ToSlice")
}

func decode[T any](b *Boundary, c Codec[T], h ListHandle, free bool, call string) ([]T, error) {
	check(b, c, h, call)
	if free {
		defer b.Free(h.Data)
	}
	if h.Count == 0 {
		return []T{}, nil
	}
	out := make([]T, h.Count)
	for i := range out {
		v, err := c.Load(b.mem, h.Data+uint32(i)*c.Size())
		if err != nil {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Call(call).
				Type(c.Name()).
				Path(strconv.Itoa(i)).
				Cause(err).
				Detail("load element").
				Build()
		}
		out[i] = v
	}
	b.logger.Debug("decoded list",
		zap.String("type", c.Name()),
		zap.Int32("count", h.Count),
		zap.Bool("freed", free))
	return out, nil
}

// Free validates h and releases its buffer without decoding it. The zero
// handle is accepted.
func Free[T any](b *Boundary, c Codec[T], h ListHandle) {
	release(b, c, h, "Free")
}

func release[T any](b *Boundary, c Codec[T], h ListHandle, call string) {
	check(b, c, h, call)
	b.Free(h.Data)
}
