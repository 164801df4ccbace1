package session

import (
	"context"
	"time"

	"github.com/danmuck/dps_backup/src/protocol"
	"github.com/danmuck/dps_backup/src/storage"
	"github.com/danmuck/dps_backup/src/transport"
	logs "github.com/danmuck/smplog"
	"github.com/pkg/errors"
)

// Result is the outcome of one step.
type Result struct {
	Step     Step
	Response *protocol.Response
	Err      error
	Took     time.Duration
}

// Runner executes steps one after another over independent exchanges.
type Runner struct {
	Session  *Session
	Exchange transport.Exchanger
	Store    *storage.Local
	Render   *Renderer
	Metrics  *Metrics // optional
}

// Run executes every step in order. A failed step is reported and the run
// moves on to the next one.
func (r *Runner) Run(ctx context.Context, steps []Step) []Result {
	results := make([]Result, 0, len(steps))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			logs.Warnf("run stopped before step %d (%s): %v", i+1, step, err)
			break
		}

		start := time.Now()
		resp, err := r.Execute(ctx, step)
		took := time.Since(start)

		if err != nil {
			r.Render.Error(step, r.Session.Addr(), err)
			logs.Warnf("step %d (%s) failed: %v", i+1, step, err)
		} else {
			logs.Debugf("step %d (%s): status %d in %v", i+1, step, resp.Status, took)
		}
		r.Metrics.Observe(step.Op, resp, err, took)
		results = append(results, Result{Step: step, Response: resp, Err: err, Took: took})
	}
	r.Metrics.Finish(time.Now())
	return results
}

// Execute encodes step, exchanges it with the server and renders the reply.
// The reply is returned even when rendering fails.
func (r *Runner) Execute(ctx context.Context, step Step) (*protocol.Response, error) {
	request, err := r.encode(step)
	if err != nil {
		return nil, err
	}

	resp, err := r.Exchange.Send(ctx, request)
	if err != nil {
		return nil, err
	}

	if err := r.Render.Render(r.Session.ClientID, resp); err != nil {
		return resp, err
	}
	return resp, nil
}

func (r *Runner) encode(step Step) ([]byte, error) {
	s := r.Session
	name := s.FileName(step)

	switch step.Op {
	case protocol.OpList:
		return protocol.EncodeList(s.ClientID, s.Version), nil
	case protocol.OpSave:
		if name == "" {
			return nil, protocol.EncodingError("encode save", errors.Errorf("step %s has no file", step))
		}
		content, err := r.Store.Read(name)
		if err != nil {
			return nil, err
		}
		return protocol.EncodeSave(s.ClientID, s.Version, name, content)
	case protocol.OpRestore, protocol.OpDelete:
		if name == "" {
			return nil, protocol.EncodingError("encode "+step.Op.String(), errors.Errorf("step %s has no file", step))
		}
		return protocol.EncodeRestoreOrDelete(s.ClientID, s.Version, step.Op, name)
	default:
		return nil, protocol.EncodingError("encode step", errors.Errorf("unsupported opcode %d", uint8(step.Op)))
	}
}

// Failed counts the results that carry an error.
func Failed(results []Result) int {
	n := 0
	for _, res := range results {
		if res.Err != nil {
			n++
		}
	}
	return n
}
