//go:build linux

package link

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// nativePort drives a tty directly through termios. Reads use VMIN=0/VTIME so
// an idle line returns (0, nil) after the read timeout.
type nativePort struct {
	fd int
}

func openNative(cfg Config) (Port, error) {
	flag := unix.O_RDWR | unix.O_NOCTTY
	fd, err := unix.Open(cfg.Device, flag, 0)
	if err != nil {
		return nil, err
	}

	// Best-effort: if anything below fails, close fd.
	ok := false
	defer func() {
		if !ok {
			_ = unix.Close(fd)
		}
	}()

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	spd, err := baudToUnix(cfg.Baud)
	if err != nil {
		return nil, err
	}
	size, err := dataBitsToUnix(cfg.DataBits)
	if err != nil {
		return nil, err
	}

	// Raw mode, no line processing: the RDAC stream is binary.
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CMSPAR | unix.CSTOPB
	t.Cflag |= size | unix.CLOCAL | unix.CREAD

	switch cfg.Parity {
	case "none":
	case "odd":
		t.Cflag |= unix.PARENB | unix.PARODD
	case "even":
		t.Cflag |= unix.PARENB
	case "mark":
		t.Cflag |= unix.PARENB | unix.PARODD | unix.CMSPAR
	case "space":
		t.Cflag |= unix.PARENB | unix.CMSPAR
	default:
		return nil, fmt.Errorf("unsupported parity %q", cfg.Parity)
	}
	switch cfg.StopBits {
	case "1":
	case "2":
		t.Cflag |= unix.CSTOPB
	default:
		return nil, fmt.Errorf("stop bits %q not supported by native backend", cfg.StopBits)
	}

	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = vtime(cfg.ReadTimeout)

	t.Cflag &^= unix.CBAUD
	t.Cflag |= spd
	t.Ispeed = spd
	t.Ospeed = spd

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return nil, err
	}
	ok = true
	return &nativePort{fd: fd}, nil
}

func (p *nativePort) Read(b []byte) (int, error) {
	for {
		n, err := unix.Read(p.fd, b)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

func (p *nativePort) Close() error {
	return unix.Close(p.fd)
}

func (p *nativePort) SetReadTimeout(d time.Duration) error {
	t, err := unix.IoctlGetTermios(p.fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = vtime(d)
	return unix.IoctlSetTermios(p.fd, unix.TCSETS, t)
}

// vtime converts a timeout to termios deciseconds, clamped to 0.1s..25.5s.
func vtime(d time.Duration) uint8 {
	ds := (d + 99*time.Millisecond) / (100 * time.Millisecond)
	if ds < 1 {
		ds = 1
	}
	if ds > 255 {
		ds = 255
	}
	return uint8(ds)
}

func baudToUnix(baud int) (uint32, error) {
	switch baud {
	case 1200:
		return unix.B1200, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	default:
		return 0, fmt.Errorf("unsupported baud %d", baud)
	}
}

func dataBitsToUnix(bits int) (uint32, error) {
	switch bits {
	case 5:
		return unix.CS5, nil
	case 6:
		return unix.CS6, nil
	case 7:
		return unix.CS7, nil
	case 8:
		return unix.CS8, nil
	default:
		return 0, fmt.Errorf("unsupported data bits %d", bits)
	}
}
