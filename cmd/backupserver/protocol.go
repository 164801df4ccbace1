package main

import (
	"io"
	"strings"

	"github.com/danmuck/dps_backup/src/protocol"
	"github.com/google/uuid"
)

// writeStatus writes a header-only reply (1002, 1003).
func writeStatus(w io.Writer, version uint8, status protocol.Status) error {
	return writeReply(w, &protocol.Response{Version: version, Status: status})
}

// writeName writes a reply carrying only a file name (212, 1001).
func writeName(w io.Writer, version uint8, status protocol.Status, name string) error {
	return writeReply(w, &protocol.Response{Version: version, Status: status, FileName: name})
}

// writeFile writes a reply carrying a name and content (210, 211).
func writeFile(w io.Writer, version uint8, status protocol.Status, name string, content []byte) error {
	return writeReply(w, &protocol.Response{Version: version, Status: status, FileName: name, Content: content})
}

func writeReply(w io.Writer, resp *protocol.Response) error {
	frame, err := resp.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// scratchName names the listing attached to a 211 reply: 32 hex characters.
func scratchName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
