package memory

import (
	"errors"
	"path/filepath"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

type platformHandle struct {
	handle windows.Handle
}

// findProcess enumerates pids, opens each candidate for reading and matches
// the image path against the target rule.
func findProcess(name string, excluded []string) (*Process, error) {
	pids := make([]uint32, 1024)
	var returned uint32
	if err := windows.EnumProcesses(pids, &returned); err != nil {
		return nil, &OSError{Op: "EnumProcesses", Err: err}
	}
	count := int(returned) / 4

	for _, pid := range pids[:count] {
		if pid == 0 {
			continue
		}
		handle, err := windows.OpenProcess(
			windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, pid)
		if err != nil {
			continue
		}

		path, err := imagePath(handle)
		if err != nil || !matchesTarget(strings.ReplaceAll(path, `\`, `/`), name, excluded) {
			windows.CloseHandle(handle)
			continue
		}

		return &Process{
			Pid:           int(pid),
			ExecutableDir: filepath.Dir(path),
			platform:      platformHandle{handle: handle},
		}, nil
	}

	return nil, ErrProcessNotFound
}

func imagePath(handle windows.Handle) (string, error) {
	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(handle, 0, &buf[0], &size); err != nil {
		return "", err
	}
	return windows.UTF16ToString(buf[:size]), nil
}

// readRegions walks VirtualQueryEx, skipping free regions.
func (p *Process) readRegions() error {
	var regions []MemoryRegion
	var address uintptr
	for {
		var info windows.MemoryBasicInformation
		err := windows.VirtualQueryEx(p.platform.handle, address, &info, unsafe.Sizeof(info))
		if err != nil {
			break
		}
		address = info.BaseAddress + info.RegionSize
		if info.State != windows.MEM_FREE {
			regions = append(regions, MemoryRegion{
				Base: int64(info.BaseAddress),
				Size: int64(info.RegionSize),
			})
		}
		if address == 0 {
			break
		}
	}
	if len(regions) == 0 {
		return ErrNotEnoughPermissions
	}
	p.Regions = regions
	return nil
}

// readMemory pulls bytes with a single ReadProcessMemory call.
func (p *Process) readMemory(addr int64, buf []byte) error {
	var read uintptr
	err := windows.ReadProcessMemory(
		p.platform.handle, uintptr(addr), &buf[0], uintptr(len(buf)), &read)
	if err != nil {
		var errno syscall.Errno
		if errors.As(err, &errno) {
			switch errno {
			case windows.ERROR_PARTIAL_COPY, windows.ERROR_NOACCESS:
				return &BadAddressError{Addr: addr, Len: len(buf)}
			case windows.ERROR_ACCESS_DENIED:
				return ErrNotEnoughPermissions
			case windows.ERROR_INVALID_HANDLE:
				return ErrProcessNotFound
			}
		}
		return &OSError{Op: "ReadProcessMemory", Err: err}
	}
	if read != uintptr(len(buf)) {
		return &BadAddressError{Addr: addr, Len: len(buf)}
	}
	return nil
}

func (p *Process) closeHandle() {
	if p.platform.handle != 0 {
		windows.CloseHandle(p.platform.handle)
		p.platform.handle = 0
	}
}
