//go:build windows

package metadata

import (
	"encoding/json"
	"os"
	"time"

	"golang.org/x/sys/windows"

	"phantomvault/internal/errs"
)

// windowsBlob is what Capture serializes into FilesystemMetadata.PlatformBlob
// on Windows: the NTFS owner SID (string form, since a *SID is only valid
// for the process that looked it up) and the raw FILE_ATTRIBUTE_* bits
// (SYSTEM/HIDDEN/ARCHIVE/etc). Alternate data streams are out of scope for
// v1 - a restored file carries only its unnamed stream.
type windowsBlob struct {
	OwnerSID   string
	Attributes uint32
}

// Capture reads path's NTFS metadata: attribute bits, owner SID, and
// filesystem timestamps. Mode bits are synthesized by Go's os package from
// the attribute bits (no POSIX permission model exists on Windows).
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
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return FilesystemMetadata{}, errs.NewIOOpError("readlink", path, err)
		}
		md.LinkTarget = target
	}

	var fad windows.Win32finddata
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err == nil {
		h, ferr := windows.FindFirstFile(pathPtr, &fad)
		if ferr == nil {
			windows.FindClose(h)
			md.AccessTime = time.Unix(0, fad.LastAccessTime.Nanoseconds())
			md.ModTime = time.Unix(0, fad.LastWriteTime.Nanoseconds())
		}
	}
	if md.ModTime.IsZero() {
		md.ModTime = info.ModTime()
		md.AccessTime = info.ModTime()
	}

	blob := windowsBlob{}
	if attrs, aerr := windows.GetFileAttributes(pathPtr); aerr == nil {
		blob.Attributes = attrs
	}
	// GetNamedSecurityInfo allocates the returned descriptor with LocalAlloc;
	// it is intentionally leaked here rather than freed, since owner is a
	// pointer into it and this capture is a one-shot, short-lived call.
	if owner, _, _, _, _, serr := windows.GetNamedSecurityInfo(
		path, windows.SE_FILE_OBJECT, windows.OWNER_SECURITY_INFORMATION); serr == nil {
		blob.OwnerSID = owner.String()
	}

	if data, merr := json.Marshal(blob); merr == nil {
		md.PlatformBlob = data
	}

	return md, nil
}

// Restore applies md's attribute bits, owner SID, and timestamps to path.
// A field that cannot be restored (most commonly the owner SID, which
// requires SeRestorePrivilege) is reported as a Warning, never a hard
// failure - a captured field must never be silently dropped.
func Restore(path string, md FilesystemMetadata) ([]Warning, error) {
	var warnings []Warning

	var blob windowsBlob
	if len(md.PlatformBlob) > 0 {
		if err := json.Unmarshal(md.PlatformBlob, &blob); err != nil {
			warnings = append(warnings, Warning{Field: "platform_blob", Err: err})
		}
	}

	if blob.OwnerSID != "" {
		sid, err := windows.StringToSid(blob.OwnerSID)
		if err != nil {
			warnings = append(warnings, Warning{Field: "owner", Err: err})
		} else if err := windows.SetNamedSecurityInfo(
			path, windows.SE_FILE_OBJECT, windows.OWNER_SECURITY_INFORMATION,
			sid, nil, nil, nil); err != nil {
			warnings = append(warnings, Warning{Field: "owner", Err: err})
		}
	}

	if blob.Attributes != 0 {
		pathPtr, err := windows.UTF16PtrFromString(path)
		if err != nil {
			warnings = append(warnings, Warning{Field: "attributes", Err: err})
		} else if err := windows.SetFileAttributes(pathPtr, blob.Attributes); err != nil {
			warnings = append(warnings, Warning{Field: "attributes", Err: err})
		}
	}

	if err := os.Chtimes(path, md.AccessTime, md.ModTime); err != nil {
		warnings = append(warnings, Warning{Field: "timestamps", Err: err})
	}

	return warnings, nil
}
