package transfer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"erevent/internal/apperr"
)

// ReceiveOptions tunes a receive. Zero value means no progress display and the
// package default dial timeout.
type ReceiveOptions struct {
	DialTimeout  time.Duration
	ShowProgress bool
}

// Receive dials the sender's rendezvous point, drains the byte stream into
// destDir and returns the final path. The stream carries no framing: the peer
// closing the connection is the only end marker, so the declared size is
// cross-checked and a short read is a failure, never a silent completion.
func Receive(ctx context.Context, address string, port int, filename string, size int64, destDir string, opts ReceiveOptions) (string, error) {
	const op = "transfer.Receive"

	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return "", apperr.Wrap(apperr.Connectivity, op, err, "cannot reach sender at %s:%d", address, port)
	}
	defer conn.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", apperr.Wrap(apperr.Connectivity, op, err, "cannot create %q", destDir)
	}
	file, path, err := createFile(destDir, filename)
	if err != nil {
		return "", apperr.Wrap(apperr.Connectivity, op, err, "cannot create destination file")
	}

	var dst io.Writer = file
	if opts.ShowProgress {
		bar := progressbar.DefaultBytes(size, filename)
		dst = io.MultiWriter(file, bar)
	}

	buf := make([]byte, ChunkSize)
	received, copyErr := io.CopyBuffer(dst, conn, buf)
	closeErr := file.Close()

	if copyErr != nil {
		os.Remove(path)
		return "", apperr.Wrap(apperr.Connectivity, op, copyErr, "stream broke after %d bytes", received)
	}
	if closeErr != nil {
		os.Remove(path)
		return "", apperr.Wrap(apperr.Connectivity, op, closeErr, "flush destination file")
	}
	if received != size {
		os.Remove(path)
		return "", apperr.New(apperr.TransferIncomplete, op,
			"received %d of %d declared bytes", received, size)
	}

	log.Info().Str("file", path).Int64("bytes", received).Msg("file received")
	return path, nil
}

// createFile opens a new file under dir, renaming with a random suffix when
// the name is already taken.
func createFile(dir, filename string) (*os.File, string, error) {
	base := filepath.Base(filename)
	path := filepath.Join(dir, base)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err == nil {
		return file, path, nil
	}

	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	for attempt := 0; attempt < 5; attempt++ {
		path = filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, randSuffix(), ext))
		file, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			log.Debug().Str("file", path).Msg("destination existed, renamed")
			return file, path, nil
		}
	}
	return nil, "", fmt.Errorf("could not create %q after renaming attempts: %w", base, err)
}

func randSuffix() string {
	b := make([]byte, 3)
	rand.Read(b)
	return hex.EncodeToString(b)
}
