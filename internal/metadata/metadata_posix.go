//go:build linux || darwin

package metadata

import (
	"os"

	"golang.org/x/sys/unix"

	"phantomvault/internal/errs"
)

// Capture reads path's POSIX metadata: mode, ownership, timestamps, and
// extended attributes. Symlinks are captured by target and never followed.
func Capture(path string) (FilesystemMetadata, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return FilesystemMetadata{}, errs.NewIOOpError("lstat", path, err)
	}

	md := FilesystemMetadata{
		IsDir:    info.IsDir(),
		ModeBits: uint32(info.Mode()),
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return FilesystemMetadata{}, errs.NewIOOpError("readlink", path, err)
		}
		md.LinkTarget = target
		md.OwnerUID, md.OwnerGID, _, _ = platformStat(info)
		return md, nil
	}

	uid, gid, atime, mtime := platformStat(info)
	md.OwnerUID, md.OwnerGID = uid, gid
	md.AccessTime, md.ModTime = atime, mtime

	names, err := listXattrNames(path)
	if err != nil {
		return FilesystemMetadata{}, err
	}
	if len(names) > 0 {
		md.Xattrs = make(map[string][]byte, len(names))
		for _, name := range names {
			value, err := getXattr(path, name)
			if err != nil {
				continue // best-effort: an unreadable attribute is dropped, not fatal
			}
			md.Xattrs[name] = value
		}
	}

	return md, nil
}

func listXattrNames(path string) ([]string, error) {
	size, err := unix.Llistxattr(path, nil)
	if err != nil {
		if err == unix.ENOTSUP || err == unix.EOPNOTSUPP {
			return nil, nil
		}
		return nil, errs.NewIOOpError("llistxattr", path, err)
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	n, err := unix.Llistxattr(path, buf)
	if err != nil {
		return nil, errs.NewIOOpError("llistxattr", path, err)
	}
	return splitXattrNames(buf[:n]), nil
}

// splitXattrNames splits the NUL-separated name list Llistxattr returns.
func splitXattrNames(buf []byte) []string {
	var names []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return names
}

func getXattr(path, name string) ([]byte, error) {
	size, err := unix.Lgetxattr(path, name, nil)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, size)
	n, err := unix.Lgetxattr(path, name, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Restore applies md to path in the required order: extended
// attributes and ownership first, mode next, timestamps last - other
// changes update mtime, so timestamps must land after everything else.
// A failure on any one field is collected as a Warning rather than
// aborting the restore; the caller audit-logs each as a WARNING event
// (a captured field must never be silently dropped).
func Restore(path string, md FilesystemMetadata) ([]Warning, error) {
	var warnings []Warning

	if md.LinkTarget != "" {
		if md.OwnerUID >= 0 && md.OwnerGID >= 0 {
			if err := os.Lchown(path, md.OwnerUID, md.OwnerGID); err != nil {
				warnings = append(warnings, Warning{Field: "owner", Err: err})
			}
		}
		return warnings, nil
	}

	for name, value := range md.Xattrs {
		if err := unix.Lsetxattr(path, name, value, 0); err != nil {
			warnings = append(warnings, Warning{Field: "xattr:" + name, Err: err})
		}
	}

	if md.OwnerUID >= 0 && md.OwnerGID >= 0 {
		if err := os.Lchown(path, md.OwnerUID, md.OwnerGID); err != nil {
			warnings = append(warnings, Warning{Field: "owner", Err: err})
		}
	}

	if err := os.Chmod(path, os.FileMode(md.ModeBits)); err != nil {
		warnings = append(warnings, Warning{Field: "mode", Err: err})
	}

	if err := os.Chtimes(path, md.AccessTime, md.ModTime); err != nil {
		warnings = append(warnings, Warning{Field: "timestamps", Err: err})
	}

	return warnings, nil
}
