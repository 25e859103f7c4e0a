package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
)

const bodySuffix = ".body"

//The FileCache stores every entry in its own file below a root directory.
// The on-disk path is derived by hashing the key and fanning the first
// characters of the hash out as directory segments so no single directory
// grows unbounded.
//
// Writes to the same key are serialized across processes with a cooperative
// file lock scoped to the destination path. Writes to different keys never
// contend with each other, there is no lock covering the whole store.
type FileCache struct {
	//Directory is the root of the on-disk store
	Directory string

	//FileMode is the permission mode used for entry files
	FileMode os.FileMode

	//DirMode is the permission mode used for fan-out directories
	DirMode os.FileMode
}

func NewFileCache(directory string) *FileCache {
	return &FileCache{
		Directory: directory,
		FileMode:  0o600,
		DirMode:   0o700,
	}
}

//path derives the file path for a key.
// The first five characters of the hashed key become single character
// directory segments, the full hash is the file name.
func (c *FileCache) path(key string) string {
	hashed := hex.EncodeToString(hashKey(key))

	parts := make([]string, 0, 7)
	parts = append(parts, c.Directory)
	for _, char := range hashed[:5] {
		parts = append(parts, string(char))
	}
	parts = append(parts, hashed)

	return filepath.Join(parts...)
}

func hashKey(key string) []byte {
	sum := sha256.Sum224([]byte(key))
	return sum[:]
}

func (c *FileCache) Get(key string) ([]byte, bool, error) {
	value, err := os.ReadFile(c.path(key))
	if err != nil {
		//A missing or already evicted file is simply a cache miss
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}

		return nil, false, err
	}

	return value, true, nil
}

func (c *FileCache) Set(key string, value []byte) error {
	return c.write(c.path(key), value)
}

func (c *FileCache) Delete(key string) error {
	return removeIfExists(c.path(key))
}

//write stores data at path, guarded by a file lock scoped to that path.
// The data is written to a freshly and exclusively created staging file and
// moved into place with an atomic rename, a reader either sees the previous
// entry or the complete new one, never a partial write. Two concurrent
// writers to the same key serialize on the lock instead of racing the
// rename. Symlinks are never followed so a planted link can't redirect the
// write outside the store.
func (c *FileCache) write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), c.DirMode); err != nil {
		return fmt.Errorf("unable to create cache directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("unable to acquire file lock: %w", err)
	}
	defer lock.Unlock()

	staging := path + ".tmp"

	//A leftover staging file from a crashed writer is stale, the lock
	// guarantees nobody is writing it right now
	if err := removeIfExists(staging); err != nil {
		return err
	}

	file, err := os.OpenFile(staging, os.O_WRONLY|os.O_CREATE|os.O_EXCL|syscall.O_NOFOLLOW, c.FileMode)
	if err != nil {
		return fmt.Errorf("unable to create cache file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(staging)
		return fmt.Errorf("unable to write cache file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(staging)
		return err
	}

	if err := os.Rename(staging, path); err != nil {
		os.Remove(staging)
		return fmt.Errorf("unable to move cache file into place: %w", err)
	}

	return nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}

//The SeparateBodyFileCache stores the entry body in a sibling file next to
// the metadata file. Reads of the body return the file itself as a stream,
// large bodies are never buffered in memory by the store.
type SeparateBodyFileCache struct {
	FileCache
}

func NewSeparateBodyFileCache(directory string) *SeparateBodyFileCache {
	return &SeparateBodyFileCache{FileCache: *NewFileCache(directory)}
}

func (c *SeparateBodyFileCache) GetBody(key string) (io.ReadCloser, bool, error) {
	file, err := os.Open(c.path(key) + bodySuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}

		return nil, false, err
	}

	return file, true, nil
}

func (c *SeparateBodyFileCache) SetBody(key string, body []byte) error {
	return c.write(c.path(key)+bodySuffix, body)
}

func (c *SeparateBodyFileCache) Delete(key string) error {
	if err := removeIfExists(c.path(key)); err != nil {
		return err
	}

	return removeIfExists(c.path(key) + bodySuffix)
}
