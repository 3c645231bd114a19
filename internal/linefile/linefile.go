// Package linefile indexes the lines of a text file so that any
// range of them can be read without scanning from the start.
//
// Only every stride-th line offset is kept in memory; a read
// seeks to the nearest mark and skips at most stride-1 lines.
package linefile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

type (
	constError string
	// Index is a sparse line index over a reader.
	// Safe for concurrent use if the underlying
	// [io.ReaderAt] is (as [os.File] is).
	// Constructed by [New] or [Open].
	Index struct {
		source io.ReaderAt
		closer io.Closer
		marks  []int64
		size   int64
		lines  int
		stride int
	}
)

const (
	// DefaultStride is used when a stride < 1 is requested.
	DefaultStride = 64

	ErrOutOfRange = constError("line out of range")
)

const readBuffer = 64 << 10

func (errStr constError) Error() string { return string(errStr) }

// Open indexes the file at path.
// The file stays open until [Index.Close].
func Open(path string, stride int) (*Index, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		return nil, errors.Join(err, file.Close())
	}
	index, err := New(file, info.Size(), stride)
	if err != nil {
		return nil, errors.Join(err, file.Close())
	}
	index.closer = file
	return index, nil
}

// New indexes the first size bytes of source.
func New(source io.ReaderAt, size int64, stride int) (*Index, error) {
	if stride < 1 {
		stride = DefaultStride
	}
	var (
		reader = bufio.NewReaderSize(io.NewSectionReader(source, 0, size), readBuffer)
		index  = &Index{
			source: source,
			size:   size,
			stride: stride,
		}
		position int64
	)
	for {
		length, err := skipLine(reader)
		if length > 0 {
			if index.lines%stride == 0 {
				index.marks = append(index.marks, position)
			}
			index.lines++
			position += length
		}
		if errors.Is(err, io.EOF) {
			return index, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// skipLine consumes a line, including its terminator,
// and returns its length in bytes.
func skipLine(reader *bufio.Reader) (int64, error) {
	var length int64
	for {
		chunk, err := reader.ReadSlice('\n')
		length += int64(len(chunk))
		if !errors.Is(err, bufio.ErrBufferFull) {
			return length, err
		}
	}
}

// Len returns the number of lines.
func (ix *Index) Len() int { return ix.lines }

// Lines returns up to count lines starting at line offset,
// without their terminators.
func (ix *Index) Lines(offset, count int) ([]string, error) {
	if offset < 0 || count < 0 || offset > ix.lines {
		return nil, fmt.Errorf("%w: %d (+%d) of %d",
			ErrOutOfRange, offset, count, ix.lines)
	}
	count = min(count, ix.lines-offset)
	if count == 0 {
		return []string{}, nil
	}
	var (
		mark   = offset / ix.stride
		start  = ix.marks[mark]
		reader = bufio.NewReader(io.NewSectionReader(ix.source, start, ix.size-start))
	)
	for skip := offset - mark*ix.stride; skip > 0; skip-- {
		if _, err := skipLine(reader); err != nil {
			return nil, err
		}
	}
	lines := make([]string, 0, count)
	for len(lines) < count {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			lines = append(lines, strings.TrimRight(line, "\r\n"))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return lines, nil
}

// Fetch has the shape of a blocking page fetcher.
func (ix *Index) Fetch(offset, size int) ([]string, error) { return ix.Lines(offset, size) }

// Count has the shape of a blocking count fetcher.
func (ix *Index) Count() (int, error) { return ix.lines, nil }

// Close closes the file opened by [Open].
func (ix *Index) Close() error {
	if ix.closer == nil {
		return nil
	}
	return ix.closer.Close()
}
