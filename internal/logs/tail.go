package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TailOptions controls one read of the daemon log. A negative Offset asks for
// the last Limit lines; a non-negative one resumes a previous read exactly
// where it stopped.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
}

// TailResult carries the lines read and the offset the next call should
// resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads from the daemon log. The file not existing yet is not an error;
// the caller gets an empty result and retries later. With Follow set, a read
// that finds nothing new blocks up to Wait for the daemon to append.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	if opts.Wait < 0 {
		opts.Wait = 0
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var result TailResult
	if opts.Offset < 0 {
		result, err = snapshotTail(path, opts.Limit)
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			// The log was rotated or truncated underneath us.
			offset = info.Size()
		}
		result, err = readSegment(path, offset)
	}
	if err != nil {
		return result, err
	}
	if opts.Follow && opts.Wait > 0 && len(result.Lines) == 0 {
		return awaitAppend(ctx, path, result.Offset, opts.Wait)
	}
	return result, nil
}

// snapshotTail returns the last limit lines of the file and the offset of its
// current end.
func snapshotTail(path string, limit int) (TailResult, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var tail []string
	if limit > 0 {
		scanner := newLineScanner(file)
		for scanner.Scan() {
			tail = append(tail, scanner.Text())
			if len(tail) > limit {
				tail = tail[1:]
			}
		}
		if err := scanner.Err(); err != nil {
			return TailResult{}, fmt.Errorf("read log file: %w", err)
		}
	}
	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return TailResult{}, fmt.Errorf("determine log offset: %w", err)
	}
	return TailResult{Lines: tail, Offset: end}, nil
}

// readSegment returns every complete line between offset and the current end
// of the file.
func readSegment(path string, offset int64) (TailResult, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	scanner := newLineScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("read log file: %w", err)
	}
	end, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("determine log offset: %w", err)
	}
	return TailResult{Lines: lines, Offset: end}, nil
}

// awaitAppend blocks until the daemon writes past offset or the wait budget
// runs out. A filesystem watcher on the log directory provides the wakeup;
// when one cannot be established the poll ticker alone carries the loop.
func awaitAppend(ctx context.Context, path string, offset int64, wait time.Duration) (TailResult, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var events chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		if err := watcher.Add(filepath.Dir(path)); err == nil {
			defer watcher.Close()
			events = make(chan fsnotify.Event, 1)
			go func() {
				for event := range watcher.Events {
					if event.Name != path {
						continue
					}
					select {
					case events <- event:
					default:
					}
				}
			}()
		} else {
			watcher.Close()
		}
	}

	result := TailResult{Offset: offset}
	for {
		segment, err := readSegment(path, result.Offset)
		if err != nil {
			return result, err
		}
		result.Offset = segment.Offset
		if len(segment.Lines) > 0 {
			result.Lines = segment.Lines
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-deadline.C:
			return result, nil
		case <-events:
		case <-ticker.C:
		}
	}
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}
