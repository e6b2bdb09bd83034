// Package tfrecord reads and writes TFRecord files: a sequence of length prefixed, CRC32C
// checked records, and the tf.train.Example messages stored in them.
package tfrecord

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

const (
	headerSize  = 8 + 4
	footerSize  = 4
	maskDelta   = 0xa282ead8
	maxRecordSz = 1 << 31
)

// ErrCorrupt is returned when a record fails its checksum or is truncated.
var ErrCorrupt = errors.New("corrupt tfrecord")

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// maskedCRC is the masked CRC32C used by TFRecord framing.
func maskedCRC(b []byte) uint32 {
	crc := crc32.Checksum(b, crcTable)
	return ((crc >> 15) | (crc << 17)) + maskDelta
}

// Writer appends records to an underlying writer. Flush must be called once done.
type Writer struct {
	w       *bufio.Writer
	header  [headerSize]byte
	footer  [footerSize]byte
	count   int
	written int64
}

// NewWriter returns a Writer framing records onto w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write appends a single record.
func (w *Writer) Write(record []byte) error {
	binary.LittleEndian.PutUint64(w.header[:8], uint64(len(record)))
	binary.LittleEndian.PutUint32(w.header[8:], maskedCRC(w.header[:8]))
	binary.LittleEndian.PutUint32(w.footer[:], maskedCRC(record))

	if _, err := w.w.Write(w.header[:]); err != nil {
		return errors.Wrap(err, "writing record header")
	}
	if _, err := w.w.Write(record); err != nil {
		return errors.Wrap(err, "writing record data")
	}
	if _, err := w.w.Write(w.footer[:]); err != nil {
		return errors.Wrap(err, "writing record footer")
	}
	w.count++
	w.written += int64(headerSize + len(record) + footerSize)
	return nil
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Count returns the number of records written so far.
func (w *Writer) Count() int {
	return w.count
}

// Size returns the number of framed bytes written so far.
func (w *Writer) Size() int64 {
	return w.written
}

// Reader reads records from an underlying reader.
type Reader struct {
	r      *bufio.Reader
	header [headerSize]byte
	offset int64
	count  int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next record. It returns io.EOF at a clean end of input and an error wrapping
// ErrCorrupt when a record is truncated or fails its checksum.
func (r *Reader) Next() ([]byte, error) {
	n, err := io.ReadFull(r.r, r.header[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, io.EOF
		}
		return nil, errors.Wrapf(ErrCorrupt, "truncated header at offset %d", r.offset)
	}
	lenBytes := r.header[:8]
	if binary.LittleEndian.Uint32(r.header[8:]) != maskedCRC(lenBytes) {
		return nil, errors.Wrapf(ErrCorrupt, "length checksum mismatch at offset %d", r.offset)
	}
	length := binary.LittleEndian.Uint64(lenBytes)
	if length > maxRecordSz {
		return nil, errors.Wrapf(ErrCorrupt, "record length %d at offset %d too large", length, r.offset)
	}

	buf := make([]byte, int(length)+footerSize)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "truncated record at offset %d", r.offset)
	}
	data, footer := buf[:length], buf[length:]
	if binary.LittleEndian.Uint32(footer) != maskedCRC(data) {
		return nil, errors.Wrapf(ErrCorrupt, "data checksum mismatch at offset %d", r.offset)
	}
	r.offset += int64(headerSize + len(buf))
	r.count++
	return data, nil
}

// Offset returns the byte offset of the next record.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Count returns the number of records read so far.
func (r *Reader) Count() int {
	return r.count
}

// ReadAll returns every remaining record.
func (r *Reader) ReadAll() ([][]byte, error) {
	var out [][]byte
	for {
		rec, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, rec)
	}
}
