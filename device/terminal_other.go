//go:build !windows

package device

import "os"

// Synchronized output (CSI ?2026) is understood or safely ignored by common
// Unix terminal emulators.
const supportsSyncOutput = true

// Unix terminals advertise color support through $TERM.
const colorAlwaysAvailable = false

func prepareConsole(*os.File) {}
