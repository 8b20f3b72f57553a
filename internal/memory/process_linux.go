package memory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

type platformHandle struct{}

// findProcess walks /proc looking for a command line that matches the target
// rule. The command line is matched as a whole so launcher wrappers that pass
// the real binary as an argument can be excluded by word.
func findProcess(name string, excluded []string) (*Process, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, &OSError{Op: "readdir /proc", Err: err}
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "cmdline"))
		if err != nil || len(raw) == 0 {
			continue
		}
		cmdline := strings.ReplaceAll(strings.Trim(string(raw), "\x00"), "\x00", " ")
		cmdline = strings.ReplaceAll(cmdline, `\`, `/`)
		if !matchesTarget(cmdline, name, excluded) {
			continue
		}

		exe, _, _ := strings.Cut(cmdline, " ")
		return &Process{
			Pid:           pid,
			ExecutableDir: executableDir(exe),
		}, nil
	}

	return nil, ErrProcessNotFound
}

// readRegions parses /proc/<pid>/maps; every non-empty line contributes one
// region from its from-to hex range.
func (p *Process) readRegions() error {
	raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/maps", p.Pid))
	if err != nil {
		if os.IsPermission(err) {
			return ErrNotEnoughPermissions
		}
		if os.IsNotExist(err) {
			return ErrProcessNotFound
		}
		return &OSError{Op: "read maps", Err: err}
	}

	var regions []MemoryRegion
	for _, line := range strings.Split(string(raw), "\n") {
		if line == "" {
			break
		}
		rangeRaw, _, _ := strings.Cut(line, " ")
		fromStr, toStr, ok := strings.Cut(rangeRaw, "-")
		if !ok {
			return fmt.Errorf("malformed maps line %q: %w", line, ErrConversion)
		}
		from, err := strconv.ParseUint(fromStr, 16, 64)
		if err != nil {
			return fmt.Errorf("maps range %q: %w", rangeRaw, ErrConversion)
		}
		to, err := strconv.ParseUint(toStr, 16, 64)
		if err != nil {
			return fmt.Errorf("maps range %q: %w", rangeRaw, ErrConversion)
		}
		// Ranges above the int64 range (the vsyscall page) wrap to a negative
		// Base; reads convert the address back through uintptr unchanged.
		regions = append(regions, MemoryRegion{Base: int64(from), Size: int64(to - from)})
	}

	p.Regions = regions
	return nil
}

// readMemory pulls bytes with a single process_vm_readv call.
func (p *Process) readMemory(addr int64, buf []byte) error {
	local := []unix.Iovec{{Base: &buf[0], Len: uint64(len(buf))}}
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}

	n, err := unix.ProcessVMReadv(p.Pid, local, remote, 0)
	if err != nil {
		var errno unix.Errno
		if errors.As(err, &errno) {
			switch errno {
			case unix.EFAULT:
				return &BadAddressError{Addr: addr, Len: len(buf)}
			case unix.EPERM:
				return ErrNotEnoughPermissions
			case unix.ESRCH:
				return ErrProcessNotFound
			}
		}
		return &OSError{Op: "process_vm_readv", Err: err}
	}
	if n != len(buf) {
		return &BadAddressError{Addr: addr, Len: len(buf)}
	}
	return nil
}

func (p *Process) closeHandle() {}
