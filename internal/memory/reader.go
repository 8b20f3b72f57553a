package memory

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/text/encoding/unicode"
)

// Reader copies bytes out of a foreign address space. Implementations fill
// buf completely or return an error; partial reads surface as *BadAddressError.
type Reader interface {
	Read(addr int64, buf []byte) error
}

// maxArrayElems bounds runtime-managed array reads so a corrupted in-memory
// length field cannot trigger an unbounded allocation.
const maxArrayElems = 1 << 20

var utf16Decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// ReadI8 reads a signed byte at addr.
func ReadI8(r Reader, addr int64) (int8, error) {
	var buf [1]byte
	if err := r.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	return int8(buf[0]), nil
}

// ReadU8 reads an unsigned byte at addr.
func ReadU8(r Reader, addr int64) (uint8, error) {
	var buf [1]byte
	if err := r.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadI16 reads a little-endian int16 at addr.
func ReadI16(r Reader, addr int64) (int16, error) {
	v, err := ReadU16(r, addr)
	return int16(v), err
}

// ReadU16 reads a little-endian uint16 at addr.
func ReadU16(r Reader, addr int64) (uint16, error) {
	var buf [2]byte
	if err := r.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// ReadI32 reads a little-endian int32 at addr.
func ReadI32(r Reader, addr int64) (int32, error) {
	v, err := ReadU32(r, addr)
	return int32(v), err
}

// ReadU32 reads a little-endian uint32 at addr.
func ReadU32(r Reader, addr int64) (uint32, error) {
	var buf [4]byte
	if err := r.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadI64 reads a little-endian int64 at addr.
func ReadI64(r Reader, addr int64) (int64, error) {
	v, err := ReadU64(r, addr)
	return int64(v), err
}

// ReadU64 reads a little-endian uint64 at addr.
func ReadU64(r Reader, addr int64) (uint64, error) {
	var buf [8]byte
	if err := r.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadF32 reads a little-endian float32 at addr.
func ReadF32(r Reader, addr int64) (float32, error) {
	v, err := ReadU32(r, addr)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadF64 reads a little-endian float64 at addr.
func ReadF64(r Reader, addr int64) (float64, error) {
	v, err := ReadU64(r, addr)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadPtr reads a 32-bit game pointer at addr, widened without sign extension.
func ReadPtr(r Reader, addr int64) (int64, error) {
	v, err := ReadU32(r, addr)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

// ReadString decodes the runtime-managed string object at addr: a 32-bit
// character count at +0x4 followed by UTF-16 code units at +0x8. Invalid
// units decode to U+FFFD. A count above limit fails with ErrConversion
// instead of allocating.
func ReadString(r Reader, addr int64, limit uint32) (string, error) {
	count, err := ReadU32(r, addr+0x4)
	if err != nil {
		return "", err
	}
	if count == 0 {
		return "", nil
	}
	if count > limit {
		return "", fmt.Errorf("string length %d exceeds limit %d: %w", count, limit, ErrConversion)
	}
	raw := make([]byte, count*2)
	if err := r.Read(addr+0x8, raw); err != nil {
		return "", err
	}
	decoded, err := utf16Decoder.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("utf-16 decode: %w", ErrConversion)
	}
	return string(decoded), nil
}

// ReadStringPtr dereferences the pointer at addr and decodes the string
// object it points to.
func ReadStringPtr(r Reader, addr int64, limit uint32) (string, error) {
	ptr, err := ReadPtr(r, addr)
	if err != nil {
		return "", err
	}
	if ptr == 0 {
		return "", &BadAddressError{Addr: addr, Len: 4}
	}
	return ReadString(r, ptr, limit)
}

// ReadI32Array decodes the runtime-managed array object at addr: a pointer to
// the element block at +0x4 and a 32-bit element count at +0xC; elements
// start at +0x8 into the block. The destination slice is resized to the
// element count and the block is pulled in a single read.
func ReadI32Array(r Reader, addr int64, out *[]int32) error {
	block, err := ReadPtr(r, addr+0x4)
	if err != nil {
		return err
	}
	count, err := ReadI32(r, addr+0xC)
	if err != nil {
		return err
	}
	if count < 0 || count > maxArrayElems {
		return fmt.Errorf("array length %d out of range: %w", count, ErrConversion)
	}
	if cap(*out) < int(count) {
		*out = make([]int32, count)
	}
	*out = (*out)[:count]
	if count == 0 {
		return nil
	}
	raw := make([]byte, int(count)*4)
	if err := r.Read(block+0x8, raw); err != nil {
		return err
	}
	for i := range *out {
		(*out)[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return nil
}

// ReadULEB128 reads an unsigned LEB128 value at addr and returns it together
// with the number of bytes consumed.
func ReadULEB128(r Reader, addr int64) (uint64, int, error) {
	var (
		value uint64
		shift uint
		n     int
	)
	for {
		b, err := ReadU8(r, addr+int64(n))
		if err != nil {
			return 0, n, err
		}
		n++
		value |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return value, n, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, n, fmt.Errorf("uleb128 value too large: %w", ErrConversion)
		}
	}
}
