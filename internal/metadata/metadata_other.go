//go:build !linux && !darwin && !windows

package metadata

import (
	"os"

	"phantomvault/internal/errs"
)

// Capture on an unsupported platform falls back to Go's portable os
// package: mode and modification time only. No ownership, access time, or
// extended attributes are captured - ingest on these platforms restores a
// best-effort subset, never a claim of full fidelity.
func Capture(path string) (FilesystemMetadata, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return FilesystemMetadata{}, errs.NewIOOpError("lstat", path, err)
	}

	md := FilesystemMetadata{
		IsDir:    info.IsDir(),
		ModeBits: uint32(info.Mode()),
		OwnerUID: -1,
		OwnerGID: -1,
		ModTime:  info.ModTime(),
	}
	md.AccessTime = md.ModTime

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return FilesystemMetadata{}, errs.NewIOOpError("readlink", path, err)
		}
		md.LinkTarget = target
	}

	return md, nil
}

// Restore applies only mode and timestamps; ownership and xattrs were
// never captured on this platform so there is nothing more to replay.
func Restore(path string, md FilesystemMetadata) ([]Warning, error) {
	var warnings []Warning

	if md.LinkTarget != "" {
		return warnings, nil
	}

	if err := os.Chmod(path, os.FileMode(md.ModeBits)); err != nil {
		warnings = append(warnings, Warning{Field: "mode", Err: err})
	}
	if err := os.Chtimes(path, md.AccessTime, md.ModTime); err != nil {
		warnings = append(warnings, Warning{Field: "timestamps", Err: err})
	}

	return warnings, nil
}
