//go:build !linux && !darwin && !windows

package fsops

import (
	"fmt"
	"os"
)

func fillPlatformInfo(info *FileInfo, fi os.FileInfo) {
	info.PermissionsOctal = fmt.Sprintf("%03o", fi.Mode().Perm())
}
