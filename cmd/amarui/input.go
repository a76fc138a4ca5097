package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/sirreidlos/amarui/internal/runtime/hal/sim"
	"github.com/sirreidlos/amarui/internal/runtime/keyboard"
)

// typeText presses the keys for text on kb. Runes the layout cannot type
// are skipped.
func typeText(kb *sim.PS2Keyboard, text string) int {
	typed := 0
	for _, r := range text {
		codes := keyboard.ScancodesFor(r)
		if codes == nil {
			continue
		}
		kb.Press(codes...)
		typed++
	}
	return typed
}

// readKeys types everything read from r until it fails.
func readKeys(r io.Reader, kb *sim.PS2Keyboard) error {
	br := bufio.NewReader(r)
	for {
		ch, _, err := br.ReadRune()
		if err != nil {
			return err
		}
		typeText(kb, string(ch))
	}
}

// inputFeed types the bytes appended to a file since the last read.
type inputFeed struct {
	path   string
	offset int64
	kb     *sim.PS2Keyboard
}

func (f *inputFeed) feed() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < f.offset {
		// truncated; start over
		f.offset = 0
	}
	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	f.offset += int64(len(data))
	typeText(f.kb, string(data))
	return nil
}

// replayInputFile types the contents of path and then everything appended
// to it until ctx is done.
func replayInputFile(ctx context.Context, path string, kb *sim.PS2Keyboard) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// watch the directory so the file may be created or replaced later
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	f := &inputFeed{path: filepath.Clean(path), kb: kb}
	if err := f.feed(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				f.offset = 0
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if err := f.feed(); err != nil {
					return err
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
