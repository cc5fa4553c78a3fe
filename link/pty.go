package link

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// PtyLink drives a host pseudo-terminal pair as a Link, so
// cmd/binlogctl's "pty" mode can hand a real terminal emulator (minicom,
// screen, a second binlogctl in "decode" mode) the device side of the
// wire protocol. Grounded on the termios ioctl conventions of
// other_examples' goserial port_linux.go, adapted onto
// golang.org/x/sys/unix's termios bindings rather than a hand-rolled
// ioctl wrapper.
type PtyLink struct {
	master *os.File
	name   string
	log    *zap.Logger
}

// OpenPty allocates a new pty pair, puts the master side into raw mode,
// and returns a Link over it plus the slave device's path (for the
// operator to attach a terminal to).
func OpenPty(logger *zap.Logger) (*PtyLink, string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	master, err := os.OpenFile("/dev/ptmx", os.O_RDWR, 0)
	if err != nil {
		return nil, "", fmt.Errorf("link: open /dev/ptmx: %w", err)
	}

	fd := int(master.Fd())
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		master.Close()
		return nil, "", fmt.Errorf("link: unlock pty: %w", err)
	}

	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		master.Close()
		return nil, "", fmt.Errorf("link: get pty number: %w", err)
	}
	name := fmt.Sprintf("/dev/pts/%d", n)

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		master.Close()
		return nil, "", fmt.Errorf("link: get termios: %w", err)
	}
	makeRaw(termios)
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		master.Close()
		return nil, "", fmt.Errorf("link: set termios: %w", err)
	}

	return &PtyLink{master: master, name: name, log: logger.Named("link.pty")}, name, nil
}

// makeRaw clears the termios flags that would otherwise have the
// kernel line-discipline interpret or echo binary frame bytes.
func makeRaw(t *unix.Termios) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8
}

// Name returns the slave device path.
func (p *PtyLink) Name() string {
	return p.name
}

// Write stages p by writing directly to the pty master.
func (p *PtyLink) Write(ctx context.Context, buf []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := p.master.Write(buf)
		done <- result{n, err}
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-done:
		return r.n, r.err
	}
}

// Schedule is a no-op: writes to the pty master are synchronous.
func (p *PtyLink) Schedule() {}

// Read blocks until the slave side writes or ctx is done.
func (p *PtyLink) Read(ctx context.Context, buf []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := p.master.Read(buf)
		done <- result{n, err}
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-done:
		return r.n, r.err
	}
}

// Close releases the pty master.
func (p *PtyLink) Close() error {
	return p.master.Close()
}
