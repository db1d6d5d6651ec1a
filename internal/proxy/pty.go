package proxy

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// openPTY allocates a pty master/slave pair via the Linux devpts interface
// and returns the master plus the slave's filesystem path.
func openPTY() (master *os.File, slavePath string, err error) {
	master, err = os.OpenFile("/dev/ptmx", os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, "", fmt.Errorf("open /dev/ptmx: %w", err)
	}

	fd := int(master.Fd())

	ptyNumber, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		master.Close()
		return nil, "", fmt.Errorf("get pty number (TIOCGPTN): %w", err)
	}

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		master.Close()
		return nil, "", fmt.Errorf("unlock pty slave (TIOCSPTLCK): %w", err)
	}

	return master, fmt.Sprintf("/dev/pts/%d", ptyNumber), nil
}

// copyWinsize mirrors the controlling terminal's dimensions onto the child
// pty. Setting the size raises SIGWINCH in the child's foreground process
// group.
func copyWinsize(fromFd, toFd int) error {
	ws, err := unix.IoctlGetWinsize(fromFd, unix.TIOCGWINSZ)
	if err != nil {
		return fmt.Errorf("get winsize: %w", err)
	}
	if err := unix.IoctlSetWinsize(toFd, unix.TIOCSWINSZ, ws); err != nil {
		return fmt.Errorf("set winsize: %w", err)
	}
	return nil
}
