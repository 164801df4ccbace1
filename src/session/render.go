package session

import (
	"fmt"
	"io"

	"github.com/danmuck/dps_backup/src/protocol"
	"github.com/danmuck/dps_backup/src/storage"
	logs "github.com/danmuck/smplog"
	"github.com/pkg/errors"
)

// Renderer turns decoded replies into the messages shown to the user.
// Restored content is handed to Store.
type Renderer struct {
	Out   io.Writer
	Store *storage.Local
}

// required lists the fields each message template reads.
var required = map[protocol.Status]protocol.Field{
	protocol.StatusRestored: protocol.FieldName | protocol.FieldContent,
	protocol.StatusListing:  protocol.FieldContent,
	protocol.StatusOK:       protocol.FieldName,
	protocol.StatusNotFound: protocol.FieldName,
}

// Render prints the message for resp's status. A restore reply is written
// to local storage before its message is printed.
func (r *Renderer) Render(clientID uint32, resp *protocol.Response) error {
	if need := required[resp.Status]; !resp.Has(need) {
		return protocol.ProtocolError(fmt.Sprintf("render status %d", resp.Status),
			errors.Errorf("reply carries %s, message needs %s", resp.Fields, need))
	}

	prefix := fmt.Sprintf("Message from server, version %d. For user %d. Status- %d.", resp.Version, clientID, resp.Status)

	switch resp.Status {
	case protocol.StatusRestored:
		path, err := r.Store.WriteRestored(resp.FileName, resp.Content)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.Out, "%s The file %s was restored. The file is %d bytes long. It is now stored in %s.\n",
			prefix, resp.FileName, len(resp.Content), path)
	case protocol.StatusListing:
		fmt.Fprintf(r.Out, "%s The list of files in backup server has been generated. The following files are available by the server:\n%s",
			prefix, resp.Content)
	case protocol.StatusOK:
		fmt.Fprintf(r.Out, "%s The operation on file %s was successful.\n", prefix, resp.FileName)
	case protocol.StatusNotFound:
		fmt.Fprintf(r.Out, "%s The operation on file %s was unsuccessful, because file %s does not exist.\n",
			prefix, resp.FileName, resp.FileName)
	case protocol.StatusNoFiles:
		fmt.Fprintf(r.Out, "%s This user does not have any files on the server.\n", prefix)
	case protocol.StatusServerError:
		fmt.Fprintf(r.Out, "%s There was a problem with the server, and your request could not be processed.\n", prefix)
	default:
		logs.Warnf("no message for status %d (fields: %s)", uint16(resp.Status), resp.Fields)
	}
	return nil
}

// Error reports a failed step to the user.
func (r *Renderer) Error(step Step, addr string, err error) {
	if errors.Is(err, protocol.ErrConnection) {
		fmt.Fprintf(r.Out, "Error: Could not complete %s with %s - %v\n", step.Op, addr, err)
		return
	}
	fmt.Fprintf(r.Out, "Error: %s failed - %v\n", step.Op, err)
}
