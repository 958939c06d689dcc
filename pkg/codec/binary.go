package codec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// maxStringLen bounds a single string so a corrupted length prefix cannot
// trigger a huge allocation.
const maxStringLen = 1 << 24

// BinaryWriter encodes values in the compact binary layout: little-endian
// int32/int64/float64, one-byte bools, and strings as a presence byte plus a
// uvarint length. Empty strings are written as absent.
type BinaryWriter struct {
	w   io.Writer
	buf [binary.MaxVarintLen64]byte
	err error
}

// NewBinaryWriter returns a writer appending to w.
func NewBinaryWriter(w io.Writer) *BinaryWriter {
	return &BinaryWriter{w: w}
}

func (bw *BinaryWriter) write(p []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(p)
}

func (bw *BinaryWriter) WriteInt(v int) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		if bw.err == nil {
			bw.err = fmt.Errorf("codec: int %d overflows int32", v)
		}
		return
	}
	binary.LittleEndian.PutUint32(bw.buf[:4], uint32(int32(v)))
	bw.write(bw.buf[:4])
}

func (bw *BinaryWriter) WriteBool(v bool) {
	if v {
		bw.buf[0] = 1
	} else {
		bw.buf[0] = 0
	}
	bw.write(bw.buf[:1])
}

func (bw *BinaryWriter) WriteString(v string) {
	if v == "" {
		bw.buf[0] = 0
		bw.write(bw.buf[:1])
		return
	}
	bw.buf[0] = 1
	bw.write(bw.buf[:1])
	n := binary.PutUvarint(bw.buf[:], uint64(len(v)))
	bw.write(bw.buf[:n])
	if bw.err == nil {
		_, bw.err = io.WriteString(bw.w, v)
	}
}

func (bw *BinaryWriter) WriteDouble(v float64) {
	binary.LittleEndian.PutUint64(bw.buf[:8], math.Float64bits(v))
	bw.write(bw.buf[:8])
}

func (bw *BinaryWriter) writeInt64(v int64) {
	binary.LittleEndian.PutUint64(bw.buf[:8], uint64(v))
	bw.write(bw.buf[:8])
}

func (bw *BinaryWriter) WriteTime(v time.Time) {
	if v.IsZero() {
		bw.writeInt64(0)
		return
	}
	bw.writeInt64(v.UnixNano())
}

func (bw *BinaryWriter) WriteDuration(v time.Duration) {
	bw.writeInt64(int64(v))
}

func (bw *BinaryWriter) WriteRef(v gamedb.DBRef) {
	bw.WriteInt(int(v))
}

func (bw *BinaryWriter) WritePoint(v gamedb.Point3D) {
	bw.WriteInt(v.X)
	bw.WriteInt(v.Y)
	bw.WriteInt(v.Z)
}

func (bw *BinaryWriter) Err() error { return bw.err }

type byteReader interface {
	io.Reader
	io.ByteReader
}

// BinaryReader decodes the BinaryWriter layout. A short stream is reported
// as io.ErrUnexpectedEOF.
type BinaryReader struct {
	r   byteReader
	buf [8]byte
	err error
}

// NewBinaryReader returns a reader over r.
func NewBinaryReader(r io.Reader) *BinaryReader {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &BinaryReader{r: br}
}

func (br *BinaryReader) fail(err error) {
	if br.err != nil {
		return
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	br.err = err
}

func (br *BinaryReader) read(n int) []byte {
	if br.err != nil {
		return nil
	}
	if _, err := io.ReadFull(br.r, br.buf[:n]); err != nil {
		br.fail(err)
		return nil
	}
	return br.buf[:n]
}

func (br *BinaryReader) ReadInt() int {
	b := br.read(4)
	if b == nil {
		return 0
	}
	return int(int32(binary.LittleEndian.Uint32(b)))
}

func (br *BinaryReader) ReadBool() bool {
	b := br.read(1)
	if b == nil {
		return false
	}
	switch b[0] {
	case 0:
		return false
	case 1:
		return true
	}
	br.fail(fmt.Errorf("codec: invalid bool byte 0x%02x", b[0]))
	return false
}

func (br *BinaryReader) ReadString() string {
	if !br.ReadBool() {
		return ""
	}
	if br.err != nil {
		return ""
	}
	n, err := binary.ReadUvarint(br.r)
	if err != nil {
		br.fail(err)
		return ""
	}
	if n > maxStringLen {
		br.fail(fmt.Errorf("codec: string length %d exceeds limit", n))
		return ""
	}
	p := make([]byte, n)
	if _, err := io.ReadFull(br.r, p); err != nil {
		br.fail(err)
		return ""
	}
	return string(p)
}

func (br *BinaryReader) ReadDouble() float64 {
	b := br.read(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (br *BinaryReader) readInt64() int64 {
	b := br.read(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (br *BinaryReader) ReadTime() time.Time {
	n := br.readInt64()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (br *BinaryReader) ReadDuration() time.Duration {
	return time.Duration(br.readInt64())
}

func (br *BinaryReader) ReadRef() gamedb.DBRef {
	return gamedb.DBRef(br.ReadInt())
}

func (br *BinaryReader) ReadPoint() gamedb.Point3D {
	return gamedb.Point3D{X: br.ReadInt(), Y: br.ReadInt(), Z: br.ReadInt()}
}

func (br *BinaryReader) Err() error { return br.err }
