package go_fs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// localStorage is a real, on-disk Storage, added alongside the teacher's
// in-memory-only implementation (inmem.go) so a bloomfilter.Filter can
// actually persist its bitset across process restarts (a proxied filter's
// cask log is written by internal/cask directly, not through a Storage) —
// the teacher's go-fs shipped only the in-memory variant,
// which is sufficient for its own tests but not for a daemon that must
// survive a restart.
type localStorage struct {
	dir string

	mu    sync.Mutex
	open  map[fileId]*os.File
	sizes map[fileId]int64
}

// NewLocalStorage opens (creating if necessary) a Storage rooted at dir.
func NewLocalStorage(dir string) (Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &localStorage{
		dir:   dir,
		open:  make(map[fileId]*os.File),
		sizes: make(map[fileId]int64),
	}, nil
}

func (s *localStorage) path(objType ObjectType, num int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d-%d.obj", objType, num))
}

func (s *localStorage) Open(objType ObjectType, num int64, _ int) (Readable, FileDesc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fid := fileId(num<<4 | int64(objType))
	if _, ok := s.open[fid]; ok {
		return nil, FileDesc{}, errFileIsOpened
	}

	f, err := os.Open(s.path(objType, num))
	if os.IsNotExist(err) {
		return nil, FileDesc{}, errFileNotFound
	}
	if err != nil {
		return nil, FileDesc{}, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, FileDesc{}, err
	}

	s.open[fid] = f
	return &localReadable{storage: s, fid: fid, f: f, size: uint64(info.Size())},
		FileDesc{Type: objType, Num: num, Loc: LocalFile}, nil
}

func (s *localStorage) Create(objType ObjectType, num int64) (Writable, FileDesc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fid := fileId(num<<4 | int64(objType))
	path := s.path(objType, num)
	if _, err := os.Stat(path); err == nil {
		return nil, FileDesc{}, errFileExists
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, FileDesc{}, err
	}

	s.open[fid] = f
	return &localWritable{storage: s, fid: fid, f: f},
		FileDesc{Type: objType, Num: num, Loc: LocalFile}, nil
}

func (s *localStorage) LookUp(objType ObjectType, num int64) (FileDesc, error) {
	if _, err := os.Stat(s.path(objType, num)); err != nil {
		return FileDesc{}, errFileNotFound
	}
	return FileDesc{Type: objType, Num: num, Loc: LocalFile}, nil
}

func (s *localStorage) Remove(objType ObjectType, num int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fid := fileId(num<<4 | int64(objType))
	delete(s.open, fid)
	delete(s.sizes, fid)

	err := os.Remove(s.path(objType, num))
	if os.IsNotExist(err) {
		return errFileNotFound
	}
	return err
}

func (s *localStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for fid, f := range s.open {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.open, fid)
	}
	return firstErr
}

func (s *localStorage) release(fid fileId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, fid)
}

type localReadable struct {
	storage *localStorage
	fid     fileId
	f       *os.File
	size    uint64
}

func (r *localReadable) ReadAt(p []byte, off int64) (int, error) { return r.f.ReadAt(p, off) }
func (r *localReadable) Read(p []byte) (int, error)              { return r.f.Read(p) }
func (r *localReadable) Seek(offset int64, whence int) (int64, error) {
	return r.f.Seek(offset, whence)
}
func (r *localReadable) Size() uint64 { return r.size }
func (r *localReadable) Close() error {
	r.storage.release(r.fid)
	return r.f.Close()
}

var _ Readable = (*localReadable)(nil)

type localWritable struct {
	storage *localStorage
	fid     fileId
	f       *os.File
	done    bool
}

func (w *localWritable) Write(p []byte) (int, error) { return w.f.Write(p) }
func (w *localWritable) Seek(offset int64, whence int) (int64, error) {
	return w.f.Seek(offset, whence)
}
func (w *localWritable) Sync() error { return w.f.Sync() }
func (w *localWritable) Close() error {
	if w.done {
		return errFileIsClosed
	}
	w.done = true
	w.storage.release(w.fid)
	return w.f.Close()
}

func (w *localWritable) Finish() error {
	if w.done {
		return errFileIsClosed
	}
	if err := w.f.Sync(); err != nil {
		return err
	}
	return w.Close()
}

func (w *localWritable) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.storage.release(w.fid)
	_ = w.f.Close()
	_ = os.Remove(w.f.Name())
}

var _ Writable = (*localWritable)(nil)
var _ Storage = (*localStorage)(nil)
