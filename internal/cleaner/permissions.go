package cleaner

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"syscall"
)

// PermissionManager pre-flights whether files can be removed or moved.
// Both need write access to the parent directory.
type PermissionManager struct {
	isRoot bool
	uid    string
	gid    string
}

// NewPermissionManager creates a new PermissionManager
func NewPermissionManager() *PermissionManager {
	pm := &PermissionManager{}
	if currentUser, err := user.Current(); err == nil {
		pm.isRoot = currentUser.Uid == "0"
		pm.uid = currentUser.Uid
		pm.gid = currentUser.Gid
	}
	return pm
}

// IsRunningAsRoot checks if the current process is running as root
func (pm *PermissionManager) IsRunningAsRoot() bool {
	return pm.isRoot
}

// CanModify checks if we have permission to unlink or rename path
func (pm *PermissionManager) CanModify(path string) (bool, error) {
	// Check if file exists
	if _, err := os.Lstat(path); err != nil {
		return false, err
	}

	// If running as root, we can modify anything
	if pm.isRoot {
		return true, nil
	}

	return pm.dirWritable(filepath.Dir(path))
}

// dirWritable checks the write bit that applies to us on dir
func (pm *PermissionManager) dirWritable(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return false, err
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return false, fmt.Errorf("unable to get file stats")
	}

	if pm.uid == "" {
		return false, fmt.Errorf("unable to determine current user")
	}

	// Check if user owns the directory
	if fmt.Sprint(stat.Uid) == pm.uid {
		return info.Mode()&0200 != 0, nil
	}

	// Check group permissions
	if fmt.Sprint(stat.Gid) == pm.gid {
		return info.Mode()&0020 != 0, nil
	}

	// Check other permissions
	return info.Mode()&0002 != 0, nil
}

// PermissionReport partitions files by whether they can be modified
type PermissionReport struct {
	Writable     []string
	ReadOnly     []string
	Inaccessible map[string]error
	Missing      []string
}

// AnalyzePermissions categorizes absolute paths by permission requirements.
// Input order is preserved within each list.
func (pm *PermissionManager) AnalyzePermissions(paths []string) *PermissionReport {
	report := &PermissionReport{
		Writable:     []string{},
		ReadOnly:     []string{},
		Inaccessible: make(map[string]error),
		Missing:      []string{},
	}

	for _, path := range paths {
		ok, err := pm.CanModify(path)
		switch {
		case os.IsNotExist(err):
			report.Missing = append(report.Missing, path)
		case err != nil:
			report.Inaccessible[path] = err
		case ok:
			report.Writable = append(report.Writable, path)
		default:
			report.ReadOnly = append(report.ReadOnly, path)
		}
	}

	return report
}
