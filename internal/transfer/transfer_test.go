package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"erevent/internal/apperr"
)

func writeTempFile(t *testing.T, size int) (string, []byte) {
	t.Helper()
	content := make([]byte, size)
	rand.Read(content)
	path := filepath.Join(t.TempDir(), "x.txt")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path, content
}

func TestSendReceive(t *testing.T) {
	path, content := writeTempFile(t, 100)

	session, err := OpenSendSession(path, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	if session.Filename() != "x.txt" || session.Size() != 100 {
		t.Fatalf("staged metadata wrong: %s/%d", session.Filename(), session.Size())
	}
	if session.State() != StateListening {
		t.Fatalf("fresh session should be listening, got %s", session.State())
	}

	sendErr := make(chan error, 1)
	go func() { sendErr <- session.Send(context.Background()) }()

	destDir := t.TempDir()
	got, err := Receive(context.Background(), "127.0.0.1", session.Port(),
		"x.txt", 100, destDir, ReceiveOptions{})
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if err := <-sendErr; err != nil {
		t.Fatalf("send failed: %v", err)
	}

	received, err := os.ReadFile(got)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(received, content) {
		t.Error("received bytes differ from source")
	}
	if session.State() != StateClosed {
		t.Errorf("expected closed session, got %s", session.State())
	}
}

func TestSendSessionChunking(t *testing.T) {
	// A payload spanning several chunks arrives intact.
	path, content := writeTempFile(t, 3*ChunkSize+17)

	session, err := OpenSendSession(path, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	go session.Send(context.Background())

	got, err := Receive(context.Background(), "127.0.0.1", session.Port(),
		"x.txt", int64(len(content)), t.TempDir(), ReceiveOptions{})
	if err != nil {
		t.Fatal(err)
	}
	received, _ := os.ReadFile(got)
	if !bytes.Equal(received, content) {
		t.Error("multi-chunk payload corrupted")
	}
}

func TestAcceptTimeoutReleasesResources(t *testing.T) {
	path, _ := writeTempFile(t, 100)

	session, err := OpenSendSession(path, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	port := session.Port()

	err = session.Send(context.Background())
	if !apperr.IsKind(err, apperr.Timeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if session.State() != StateFailed {
		t.Errorf("expected failed state after accept timeout, got %s", session.State())
	}

	// The listening socket must be released: binding the same port works again.
	ln, lerr := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if lerr != nil {
		t.Errorf("port %d still held after timeout: %v", port, lerr)
	} else {
		ln.Close()
	}

	// And a fresh session in the same process starts cleanly.
	again, err := OpenSendSession(path, time.Second)
	if err != nil {
		t.Fatalf("second session blocked by the first: %v", err)
	}
	again.Close()
}

func TestSendCancelledContext(t *testing.T) {
	path, _ := writeTempFile(t, 100)

	session, err := OpenSendSession(path, 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if err := session.Send(ctx); !apperr.IsKind(err, apperr.Timeout) {
		t.Errorf("expected timeout kind on cancellation, got %v", err)
	}
}

func TestReceiveShortRead(t *testing.T) {
	// A sender that closes after 40 of 100 declared bytes.
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write(make([]byte, 40))
		conn.Close()
	}()

	destDir := t.TempDir()
	_, err = Receive(context.Background(), "127.0.0.1", ln.Addr().(*net.TCPAddr).Port,
		"x.txt", 100, destDir, ReceiveOptions{})
	if !apperr.IsKind(err, apperr.TransferIncomplete) {
		t.Fatalf("expected transfer_incomplete, got %v", err)
	}

	// The partial file must not be left behind.
	entries, err := os.ReadDir(destDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("partial file left in destination: %v", entries)
	}
}

func TestReceiveDialFailure(t *testing.T) {
	// Grab and release a port so nothing is listening on it.
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = Receive(context.Background(), "127.0.0.1", port, "x.txt", 100,
		t.TempDir(), ReceiveOptions{DialTimeout: 500 * time.Millisecond})
	if !apperr.IsKind(err, apperr.Connectivity) {
		t.Errorf("expected connectivity error, got %v", err)
	}
}

func TestCreateFileCollision(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.txt"), []byte("taken"), 0o644); err != nil {
		t.Fatal(err)
	}

	file, path, err := createFile(dir, "x.txt")
	if err != nil {
		t.Fatal(err)
	}
	file.Close()

	if filepath.Base(path) == "x.txt" {
		t.Error("collision should have produced a renamed file")
	}
	if filepath.Ext(path) != ".txt" {
		t.Errorf("rename lost the extension: %s", path)
	}
}

func TestCloseIdempotent(t *testing.T) {
	path, _ := writeTempFile(t, 10)
	session, err := OpenSendSession(path, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
