package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// FlushFunc persists a full or final batch
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// Batcher accumulates items and flushes them every size items. It is meant
// for a single consumer goroutine and does no locking of its own.
type Batcher[T any] struct {
	size    int
	buf     []T
	flush   FlushFunc[T]
	flushes int
	flushed int
}

// NewBatcher creates a batcher flushing every size items (at least one)
func NewBatcher[T any](size int, flush FlushFunc[T]) *Batcher[T] {
	if size <= 0 {
		size = 1
	}
	return &Batcher[T]{
		size:  size,
		buf:   make([]T, 0, size),
		flush: flush,
	}
}

// Add buffers an item and flushes when the batch is full
func (b *Batcher[T]) Add(ctx context.Context, item T) error {
	b.buf = append(b.buf, item)
	if len(b.buf) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes whatever is buffered. On error the buffer is kept so a later
// flush can retry.
func (b *Batcher[T]) Flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	if err := b.flush(ctx, b.buf); err != nil {
		return err
	}
	b.flushes++
	b.flushed += len(b.buf)
	b.buf = make([]T, 0, b.size)
	return nil
}

// Pending returns the number of buffered items
func (b *Batcher[T]) Pending() int {
	return len(b.buf)
}

// Flushes returns the number of successful flushes
func (b *Batcher[T]) Flushes() int {
	return b.flushes
}

// Flushed returns the number of items written by successful flushes
func (b *Batcher[T]) Flushed() int {
	return b.flushed
}

// ReadLines reads non-empty, non-comment lines from a file, dropping duplicates
func ReadLines(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return lines, nil
}
