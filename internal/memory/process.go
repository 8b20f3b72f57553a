package memory

import (
	"errors"
	"path/filepath"
	"strings"
)

// MemoryRegion is one readable range of the attached process's address space.
// The region list is enumerated once per attachment and never mutated.
type MemoryRegion struct {
	Base int64
	Size int64
}

// Process owns the OS credential needed to read the target's virtual memory:
// a pid on Linux, a kernel handle on Windows. It is released by the
// supervisor when any "process vanished" error surfaces.
type Process struct {
	Pid           int
	Regions       []MemoryRegion
	ExecutableDir string

	platform platformHandle
}

// Attach locates a running process whose command line (Linux) or full image
// path (Windows) contains name and none of the excluded words, opens it for
// reading and enumerates its memory regions. The whole string is matched, not
// only the executable basename, so a name in a directory or an argument also
// matches.
func Attach(name string, excluded []string) (*Process, error) {
	proc, err := findProcess(name, excluded)
	if err != nil {
		return nil, err
	}
	if err := proc.readRegions(); err != nil {
		proc.Close()
		return nil, err
	}
	return proc, nil
}

// Read copies len(buf) bytes from the target's address space at addr.
func (p *Process) Read(addr int64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	return p.readMemory(addr, buf)
}

// Close releases the underlying OS handle, if any.
func (p *Process) Close() {
	if p == nil {
		return
	}
	p.closeHandle()
}

// FindSignature scans every enumerated region for the pattern and returns the
// absolute address of the first match in enumeration order.
func (p *Process) FindSignature(sig Signature) (int64, error) {
	return ScanRegions(p, p.Regions, sig)
}

// ScanRegions pulls each region with one bulk read and searches it for the
// pattern. Regions that fail with a transient read error are skipped;
// permission and lifecycle errors propagate so the supervisor can reattach.
func ScanRegions(r Reader, regions []MemoryRegion, sig Signature) (int64, error) {
	var buf []byte
	for _, region := range regions {
		if int64(cap(buf)) < region.Size {
			buf = make([]byte, region.Size)
		}
		buf = buf[:region.Size]
		if err := r.Read(region.Base, buf); err != nil {
			if errors.Is(err, ErrProcessNotFound) || errors.Is(err, ErrNotEnoughPermissions) {
				return 0, err
			}
			continue
		}
		if idx, ok := sig.Find(buf); ok {
			return region.Base + int64(idx), nil
		}
	}
	return 0, &SignatureNotFoundError{Pattern: sig.String()}
}

// matchesTarget applies the name/excluded-words rule to a command line or
// image path. The exclusion list filters launcher wrappers whose command line
// mentions the real binary as an argument.
func matchesTarget(cmdline, name string, excluded []string) bool {
	if !strings.Contains(cmdline, name) {
		return false
	}
	for _, word := range excluded {
		if word != "" && strings.Contains(cmdline, word) {
			return false
		}
	}
	return true
}

// executableDir derives the directory of the image path, tolerating Wine
// style drive prefixes ("Z:/home/...") in the recorded command line.
func executableDir(exePath string) string {
	path := strings.ReplaceAll(exePath, `\`, `/`)
	if len(path) >= 2 && path[1] == ':' {
		path = path[2:]
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}
