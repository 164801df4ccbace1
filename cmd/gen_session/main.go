// gen_session lays out the files a scripted backup run expects: random
// payloads to save, a backup.info naming them and a server.info.
//
// Usage:
//
//	go run ./cmd/gen_session [-dir local/session] [-server 127.0.0.1:1234] <size>[:ext] ...
//
// Size accepts suffixes: B, KB, MB, GB (e.g., "4KB", "1MB", "65536"). The
// optional extension names the payload, so "64KB:png" becomes file_1.png.
// Existing payloads of the requested size are reused.
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/danmuck/dps_backup/cmd/internal/logcfg"
	"github.com/danmuck/dps_backup/src/session"
	logs "github.com/danmuck/smplog"
	"github.com/pkg/errors"
)

const DefaultSessionDir = "local/session"

type payload struct {
	name string
	size int64
}

func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1 << 30
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1 << 20
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1 << 10
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %q", s)
	}
	if n < 0 {
		return 0, errors.Errorf("invalid size %q: negative", s)
	}
	return n * multiplier, nil
}

// parsePayloads turns "<size>[:ext]" arguments into numbered file names.
func parsePayloads(args []string) ([]payload, error) {
	out := make([]payload, 0, len(args))
	for i, arg := range args {
		sizeText, ext, _ := strings.Cut(arg, ":")
		size, err := parseSize(sizeText)
		if err != nil {
			return nil, err
		}
		if ext == "" {
			ext = "dat"
		}
		if strings.ContainsAny(ext, `/\`) {
			return nil, errors.Errorf("invalid extension %q", ext)
		}
		out = append(out, payload{name: fmt.Sprintf("file_%d.%s", i+1, ext), size: size})
	}
	return out, nil
}

func writePayload(path string, size int64) error {
	if info, err := os.Stat(path); err == nil && info.Size() == size {
		logs.Printf("Reusing existing file: %s (%d bytes)\n", path, size)
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create payload")
	}
	defer f.Close()

	// Write in 4MB chunks
	const chunkSize = 4 * 1024 * 1024
	buf := make([]byte, min(size, chunkSize))
	remaining := size

	for remaining > 0 {
		n := min(remaining, int64(chunkSize))
		if _, err := rand.Read(buf[:n]); err != nil {
			return errors.Wrap(err, "generate random data")
		}
		if _, err := f.Write(buf[:n]); err != nil {
			return errors.Wrapf(err, "write %s", path)
		}
		remaining -= n
	}
	logs.Printf("Generated: %s (%d bytes)\n", path, size)
	return nil
}

// generate writes every payload plus backup.info and server.info into dir.
func generate(dir, server string, payloads []payload) error {
	if _, _, err := session.ParseServerInfo(server); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	var list strings.Builder
	for _, p := range payloads {
		if err := writePayload(filepath.Join(dir, p.name), p.size); err != nil {
			return err
		}
		list.WriteString(p.name + "\n")
	}

	if err := os.WriteFile(filepath.Join(dir, session.DefaultBackupInfo), []byte(list.String()), 0644); err != nil {
		return errors.Wrap(err, "write backup list")
	}
	if err := os.WriteFile(filepath.Join(dir, session.DefaultServerInfo), []byte(server+"\n"), 0644); err != nil {
		return errors.Wrap(err, "write server info")
	}
	return nil
}

func main() {
	dir := flag.String("dir", DefaultSessionDir, "output directory")
	server := flag.String("server", "127.0.0.1:1234", "host:port written to server.info")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: gen_session [-dir DIR] [-server HOST:PORT] <size>[:ext] ...\n")
		fmt.Fprintf(os.Stderr, "  size: number with optional suffix (B, KB, MB, GB)\n")
		fmt.Fprintf(os.Stderr, "  Examples: 4KB:txt 1MB:png\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logs.Configure(logcfg.Load(""))

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"4KB:txt", "64KB:png"}
	}
	payloads, err := parsePayloads(args)
	if err != nil {
		logs.Fatalf(err, "bad payload list")
	}
	if err := generate(*dir, *server, payloads); err != nil {
		logs.Fatalf(err, "generate session in %s", *dir)
	}
	logs.Infof("session ready: run `backup --input-dir %s --backup-info %s --server-info %s`",
		*dir, filepath.Join(*dir, session.DefaultBackupInfo), filepath.Join(*dir, session.DefaultServerInfo))
}
