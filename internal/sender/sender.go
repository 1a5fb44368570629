// Package sender implements the wire-protocol half of a transfer: it reads
// a file, fragments it into datagrams per internal/dgram's layout, and
// transmits them over an already-connected net.Conn.
package sender

import (
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kstaniek/dgram-xfer/internal/dgram"
)

// interFrameDelay is a brief pause between emissions so a burst from one
// sender does not overrun the receiver's single-threaded loop.
const interFrameDelay = time.Millisecond

// ErrEmptyFilename is returned when path has no usable base name (e.g. "/"
// or "").
var ErrEmptyFilename = errors.New("sender: path has no usable filename")

// NewMarker returns a random 32-bit transfer identifier. It need not be
// cryptographically secure, only vary across invocations.
func NewMarker() uint32 {
	return rand.Uint32()
}

// SendFile opens path for reading, fragments it, and transmits it over conn
// under a freshly generated marker. It returns the total number of payload
// bytes transmitted (the file's contents, not counting headers or the
// filename frame).
func SendFile(conn net.Conn, path string) (int64, error) {
	name := filepath.Base(path)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return 0, ErrEmptyFilename
	}
	// filepath.Base already strips a leading directory; guard against any
	// remaining separator defensively (e.g. a path using the other slash
	// style on a mixed filesystem).
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	marker := NewMarker()
	if err := emit(conn, 1, marker, dgram.FlagNotLast, []byte(name)); err != nil {
		return 0, err
	}

	// os.File.Read never returns a final non-empty read paired with io.EOF:
	// a full chunk comes back as (n, nil), and EOF only surfaces on the next,
	// empty read. So the chunk just read is held back one iteration until
	// it's known whether another chunk follows, and FlagLast is set on
	// whichever chunk turns out to be the last one actually sent.
	var total int64
	number := uint32(2)
	var pending []byte
	havePending := false
	buf := make([]byte, dgram.MaxDataSize)
	for {
		n, readErr := f.Read(buf)
		eof := errors.Is(readErr, io.EOF)
		if n > 0 {
			if havePending {
				if err := emit(conn, number, marker, dgram.FlagNotLast, pending); err != nil {
					return total, err
				}
				total += int64(len(pending))
				number++
			}
			pending = append(pending[:0:0], buf[:n]...)
			havePending = true
		}
		if eof {
			if err := emit(conn, number, marker, dgram.FlagLast, pending); err != nil {
				return total, err
			}
			if havePending {
				total += int64(len(pending))
			}
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}

func emit(conn net.Conn, number, marker uint32, flag byte, payload []byte) error {
	wire, err := dgram.Encode(number, marker, flag, payload)
	if err != nil {
		return err
	}
	if _, err := conn.Write(wire); err != nil {
		return err
	}
	time.Sleep(interFrameDelay)
	return nil
}
