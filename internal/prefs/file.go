package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	fileName           = "prefs.json"
	compressedFileName = "prefs.json.zst"
)

// File keeps every slot in a single JSON document on disk. The document is
// rewritten atomically (temp file + rename) on every Save, so a crash leaves
// either the old or the new document, never a torn one.
type File struct {
	path string

	// Compression
	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder

	values map[string]json.RawMessage

	mu     sync.Mutex
	closed bool
}

// NewFile opens (or creates) the document in dir.
func NewFile(dir string, compress bool) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create prefs directory: %w", err)
	}

	f := &File{
		path:     filepath.Join(dir, fileName),
		compress: compress,
		values:   make(map[string]json.RawMessage),
	}

	if compress {
		f.path = filepath.Join(dir, compressedFileName)

		var err error
		f.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		f.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
	}

	if err := f.read(); err != nil {
		// Non-fatal: an unreadable document starts over empty.
		f.values = make(map[string]json.RawMessage)
	}

	return f, nil
}

// Path returns the location of the document.
func (f *File) Path() string { return f.path }

// Load implements Backend.
func (f *File) Load(key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, false, ErrClosed
	}
	v, ok := f.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Save implements Backend.
func (f *File) Save(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}

	v := make(json.RawMessage, len(value))
	copy(v, value)
	f.values[key] = v
	return f.write()
}

// Delete implements Backend.
func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if _, ok := f.values[key]; !ok {
		return nil
	}
	delete(f.values, key)
	return f.write()
}

// Close implements Backend.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	if f.encoder != nil {
		_ = f.encoder.Close()
	}
	if f.decoder != nil {
		f.decoder.Close()
	}
	return nil
}

func (f *File) read() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if f.compress {
		data, err = f.decoder.DecodeAll(data, nil)
		if err != nil {
			return fmt.Errorf("decompress prefs: %w", err)
		}
	}

	values := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("decode prefs: %w", err)
	}
	f.values = values
	return nil
}

func (f *File) write() error {
	data, err := json.Marshal(f.values)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	if f.compress {
		data = f.encoder.EncodeAll(data, nil)
	}

	// Write to temp file first, then rename
	tempPath := f.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, f.path)
}
