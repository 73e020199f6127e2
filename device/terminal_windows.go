//go:build windows

package device

import (
	"os"

	"golang.org/x/sys/windows"
)

const utf8CodePage = 65001

// Windows consoles print the synchronized output sequence literally.
const supportsSyncOutput = false

// $TERM is usually unset on Windows; VT-enabled consoles render 256 colors.
const colorAlwaysAvailable = true

// prepareConsole turns on virtual terminal processing for f and switches the
// console to UTF-8 so ramp and block glyphs render without "chcp 65001".
func prepareConsole(f *os.File) {
	h := windows.Handle(f.Fd())
	if h == windows.InvalidHandle {
		return
	}
	var mode uint32
	if err := windows.GetConsoleMode(h, &mode); err != nil {
		return
	}
	mode |= windows.ENABLE_PROCESSED_OUTPUT | windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING
	mode &^= windows.DISABLE_NEWLINE_AUTO_RETURN
	_ = windows.SetConsoleMode(h, mode)

	_ = windows.SetConsoleOutputCP(utf8CodePage)
	_ = windows.SetConsoleCP(utf8CodePage)
}
