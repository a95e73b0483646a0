package common

import "os"

// File modes used when writing into the working copy and the state directory
const (
	// FilePermissionSecure is used for state files and audit credentials
	FilePermissionSecure os.FileMode = 0600

	// FilePermissionNormal is used for resolved configuration files and their backups
	FilePermissionNormal os.FileMode = 0644

	// DirPermissionSecure is used for the state directory
	DirPermissionSecure os.FileMode = 0700

	// DirPermissionNormal is used for directories created inside the working copy
	DirPermissionNormal os.FileMode = 0755
)
