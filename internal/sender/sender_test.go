package sender

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kstaniek/dgram-xfer/internal/dgram"
)

// fakeConn captures every Write as a separate datagram, like a UDP socket.
type fakeConn struct {
	net.Conn
	frames [][]byte
}

func (f *fakeConn) Write(b []byte) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	f.frames = append(f.frames, cp)
	return len(b), nil
}

func (f *fakeConn) Close() error { return nil }

func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestSendFileEmitsFilenameThenPayloadFrames(t *testing.T) {
	path := writeTempFile(t, "report.txt", []byte("Hello world\n"))
	conn := &fakeConn{}

	start := time.Now()
	n, err := SendFile(conn, path)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if n != 12 {
		t.Fatalf("bytes sent = %d, want 12", n)
	}
	if time.Since(start) < 2*interFrameDelay {
		t.Fatal("expected a brief pause between frame emissions")
	}
	if len(conn.frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(conn.frames))
	}

	first, err := dgram.Decode(conn.frames[0])
	if err != nil {
		t.Fatalf("Decode frame 0: %v", err)
	}
	if first.Number() != 1 || first.Flag() != dgram.FlagNotLast {
		t.Fatalf("frame 0 header wrong: number=%d flag=%d", first.Number(), first.Flag())
	}
	if string(first.Payload()) != "report.txt" {
		t.Fatalf("frame 0 payload = %q", first.Payload())
	}

	second, err := dgram.Decode(conn.frames[1])
	if err != nil {
		t.Fatalf("Decode frame 1: %v", err)
	}
	if second.Number() != 2 || second.Flag() != dgram.FlagLast {
		t.Fatalf("frame 1 header wrong: number=%d flag=%d", second.Number(), second.Flag())
	}
	if string(second.Payload()) != "Hello world\n" {
		t.Fatalf("frame 1 payload = %q", second.Payload())
	}
	if first.Marker() != second.Marker() {
		t.Fatal("all frames of one transfer must share a marker")
	}
}

func TestSendFileStripsDirectoryComponent(t *testing.T) {
	path := writeTempFile(t, "nested.bin", []byte("x"))
	conn := &fakeConn{}
	if _, err := SendFile(conn, path); err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	first, _ := dgram.Decode(conn.frames[0])
	if string(first.Payload()) != "nested.bin" {
		t.Fatalf("payload = %q, want base name only", first.Payload())
	}
}

func TestSendFileExactMultipleFlagsLastFullChunkAsLast(t *testing.T) {
	content := make([]byte, dgram.MaxDataSize*2)
	path := writeTempFile(t, "exact.bin", content)
	conn := &fakeConn{}
	n, err := SendFile(conn, path)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if n != int64(len(content)) {
		t.Fatalf("bytes sent = %d, want %d", n, len(content))
	}
	// filename + 2 full data frames; the second carries FlagLast, no
	// trailing empty frame is needed.
	if len(conn.frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(conn.frames))
	}
	last, _ := dgram.Decode(conn.frames[2])
	if !last.IsLast() || len(last.Payload()) != dgram.MaxDataSize {
		t.Fatalf("last frame: IsLast=%v payloadLen=%d", last.IsLast(), len(last.Payload()))
	}
}

func TestSendFileEmptyBodyEmitsZeroLengthLastFrame(t *testing.T) {
	path := writeTempFile(t, "empty.bin", nil)
	conn := &fakeConn{}
	n, err := SendFile(conn, path)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if n != 0 {
		t.Fatalf("bytes sent = %d, want 0", n)
	}
	// filename frame + a single zero-length terminal frame.
	if len(conn.frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(conn.frames))
	}
	last, _ := dgram.Decode(conn.frames[1])
	if !last.IsLast() || len(last.Payload()) != 0 {
		t.Fatalf("last frame: IsLast=%v payloadLen=%d", last.IsLast(), len(last.Payload()))
	}
}

func TestSendFileMultiFrameLargeBody(t *testing.T) {
	content := make([]byte, dgram.MaxDataSize+4)
	for i := range content {
		content[i] = byte(i)
	}
	path := writeTempFile(t, "big.bin", content)
	conn := &fakeConn{}
	n, err := SendFile(conn, path)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if n != int64(len(content)) {
		t.Fatalf("bytes sent = %d, want %d", n, len(content))
	}
	if len(conn.frames) != 3 { // filename + 2 data frames
		t.Fatalf("frames = %d, want 3", len(conn.frames))
	}
	var reconstructed []byte
	for _, raw := range conn.frames[1:] {
		d, _ := dgram.Decode(raw)
		reconstructed = append(reconstructed, d.Payload()...)
	}
	if string(reconstructed) != string(content) {
		t.Fatal("reconstructed payload mismatch")
	}
}

func TestSendFileRejectsMissingFile(t *testing.T) {
	conn := &fakeConn{}
	if _, err := SendFile(conn, filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
