// Package devices implements the device-handler contracts of spec §4.6:
// the collaborator interfaces reached only through the I/O router. Concrete
// driver internals (VirtIO negotiation, TLS, HTTP parsing, GUI composition)
// are explicitly out of scope (spec §1); each handler here is the thin,
// in-memory simulation the router contract actually specifies.
//
// The filesystem handler's VFS-over-root-filesystem layering follows the
// teacher's internal/vfs/backend.go: a mount table consulted first, falling
// back to a root filesystem, both exposed as plain byte-oriented
// read/write/list/exists operations rather than a POSIX file-descriptor
// API (this core's router contract, spec §6, is coarser-grained than
// POSIX).
package devices

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tinyrange/riscv-core/internal/iorouter"
)

// fsNode is one entry in the in-memory filesystem: either a regular file
// (data set) or a directory (children set).
type fsNode struct {
	isDir    bool
	data     []byte
	children map[string]*fsNode
}

// FS is the block/filesystem device handler state (spec §4.6): a root
// filesystem plus an ordered set of VFS mounts consulted first, exactly as
// the teacher's VFS layers a mount table over a legacy root backend.
type FS struct {
	mu      sync.RWMutex
	root    *fsNode
	mounts  []mount
	online  bool
	synced  bool
}

type mount struct {
	prefix string
	fs     *FS
}

// NewFS constructs an empty, online filesystem handler.
func NewFS() *FS {
	return &FS{
		root:   &fsNode{isDir: true, children: make(map[string]*fsNode)},
		online: true,
	}
}

// Mount registers backing as the filesystem rooted at prefix, consulted
// before the root filesystem (spec §4.6's "routes to the VFS when the path
// is under a mount, else to the root filesystem").
func (f *FS) Mount(prefix string, backing *FS) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mounts = append(f.mounts, mount{prefix: normalizePath(prefix), fs: backing})
}

func normalizePath(p string) string {
	p = strings.Trim(p, "/")
	return "/" + p
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// resolveBackend picks the mount whose prefix matches path, or f itself.
func (f *FS) resolveBackend(path string) (*FS, string) {
	norm := normalizePath(path)
	for _, m := range f.mounts {
		if norm == m.prefix || strings.HasPrefix(norm, m.prefix+"/") {
			rel := strings.TrimPrefix(norm, m.prefix)
			return m.fs, rel
		}
	}
	return f, path
}

func (f *FS) lookup(path string) (*fsNode, bool) {
	parts := splitPath(path)
	cur := f.root
	for _, part := range parts {
		if !cur.isDir {
			return nil, false
		}
		next, ok := cur.children[part]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func (f *FS) mkdirAll(parts []string) *fsNode {
	cur := f.root
	for _, part := range parts {
		next, ok := cur.children[part]
		if !ok {
			next = &fsNode{isDir: true, children: make(map[string]*fsNode)}
			cur.children[part] = next
		}
		cur = next
	}
	return cur
}

// Read implements FsRead{path}: file bytes, or an error if not found (spec
// §4.6).
func (f *FS) Read(path string) ([]byte, error) {
	backend, rel := f.resolveBackend(path)
	backend.mu.RLock()
	defer backend.mu.RUnlock()
	n, ok := backend.lookup(rel)
	if !ok || n.isDir {
		return nil, fmt.Errorf("File not found")
	}
	out := make([]byte, len(n.data))
	copy(out, n.data)
	return out, nil
}

// Write implements FsWrite{path,data} (spec §4.6).
func (f *FS) Write(path string, data []byte) error {
	backend, rel := f.resolveBackend(path)
	backend.mu.Lock()
	defer backend.mu.Unlock()
	parts := splitPath(rel)
	if len(parts) == 0 {
		return fmt.Errorf("invalid path")
	}
	dir := backend.mkdirAll(parts[:len(parts)-1])
	name := parts[len(parts)-1]
	node, ok := dir.children[name]
	if !ok || node.isDir {
		node = &fsNode{}
		dir.children[name] = node
	}
	node.data = append([]byte(nil), data...)
	return nil
}

// List implements FsList{path}: newline-separated "name:size:is_dir"
// records (spec §6; the is_dir field is this implementation's backward
// compatible extension — see DESIGN.md Open Question decisions).
func (f *FS) List(path string) ([]byte, error) {
	backend, rel := f.resolveBackend(path)
	backend.mu.RLock()
	defer backend.mu.RUnlock()
	n, ok := backend.lookup(rel)
	if !ok || !n.isDir {
		return nil, fmt.Errorf("File not found")
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, name := range names {
		child := n.children[name]
		size := 0
		isDir := 0
		if child.isDir {
			isDir = 1
		} else {
			size = len(child.data)
		}
		fmt.Fprintf(&sb, "%s:%d:%d\n", name, size, isDir)
	}
	return []byte(sb.String()), nil
}

// Exists implements FsExists{path}: a single byte 0 or 1 (spec §4.6).
func (f *FS) Exists(path string) []byte {
	backend, rel := f.resolveBackend(path)
	backend.mu.RLock()
	defer backend.mu.RUnlock()
	if _, ok := backend.lookup(rel); ok {
		return []byte{1}
	}
	return []byte{0}
}

// MkdirAll creates every missing directory component of path.
func (f *FS) MkdirAll(path string) {
	backend, rel := f.resolveBackend(path)
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.mkdirAll(splitPath(rel))
}

// Remove deletes the node at path, if present.
func (f *FS) Remove(path string) error {
	backend, rel := f.resolveBackend(path)
	backend.mu.Lock()
	defer backend.mu.Unlock()
	parts := splitPath(rel)
	if len(parts) == 0 {
		return fmt.Errorf("invalid path")
	}
	dirParts, name := parts[:len(parts)-1], parts[len(parts)-1]
	dir := backend.root
	for _, part := range dirParts {
		next, ok := dir.children[part]
		if !ok {
			return fmt.Errorf("File not found")
		}
		dir = next
	}
	if _, ok := dir.children[name]; !ok {
		return fmt.Errorf("File not found")
	}
	delete(dir.children, name)
	return nil
}

// IsDir reports whether path names a directory.
func (f *FS) IsDir(path string) bool {
	backend, rel := f.resolveBackend(path)
	backend.mu.RLock()
	defer backend.mu.RUnlock()
	n, ok := backend.lookup(rel)
	return ok && n.isDir
}

// Flush implements Flush/FsSync: syncs the filesystem to the underlying
// block device (spec §4.6). This in-memory simulation has nothing to flush
// to, so it only sets the synced bookkeeping bit; Status does not report it.
func (f *FS) Flush() {
	f.mu.Lock()
	f.synced = true
	f.mu.Unlock()
}

// Status implements Status: b"online"/b"offline" (spec §4.6).
func (f *FS) Status() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.online {
		return []byte("online")
	}
	return []byte("offline")
}

// SetOnline toggles the handler's reported online state.
func (f *FS) SetOnline(online bool) {
	f.mu.Lock()
	f.online = online
	f.mu.Unlock()
}

// Handler returns the iorouter.Handler for this block/filesystem device.
func (f *FS) Handler() iorouter.Handler {
	return func(req *iorouter.IoRequest) iorouter.IoResult {
		switch req.Op.Kind {
		case iorouter.OpFlush, iorouter.OpFsSync:
			f.Flush()
			return iorouter.OkResult(nil)
		case iorouter.OpStatus:
			return iorouter.OkResult(f.Status())
		case iorouter.OpFsRead:
			data, err := f.Read(req.Op.Path)
			if err != nil {
				return iorouter.ErrResult(err.Error())
			}
			return iorouter.OkResult(data)
		case iorouter.OpFsWrite:
			if err := f.Write(req.Op.Path, req.Op.Data); err != nil {
				return iorouter.ErrResult(err.Error())
			}
			return iorouter.OkResult(nil)
		case iorouter.OpFsList:
			data, err := f.List(req.Op.Path)
			if err != nil {
				return iorouter.ErrResult(err.Error())
			}
			return iorouter.OkResult(data)
		case iorouter.OpFsExists:
			return iorouter.OkResult(f.Exists(req.Op.Path))
		default:
			return iorouter.ErrResult(fmt.Sprintf("%v: not implemented via I/O router", req.Device))
		}
	}
}
