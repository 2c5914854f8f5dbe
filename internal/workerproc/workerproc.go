package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"contract-backend/internal/bootstrap"
	"contract-backend/internal/pipeline"
	"contract-backend/internal/queue"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrBadMessage indicates a decoded message missing required fields. These are
// unrecoverable and should be deleted from the queue.
type ErrBadMessage struct {
	Meta      MessageMeta
	RequestID string
	Reason    string
}

func (e ErrBadMessage) Error() string { return "bad message: " + e.Reason }

// ErrDispatch indicates report delivery failed after successful parsing. These
// are retryable; the message stays on the queue.
type ErrDispatch struct {
	RunID     string
	RequestID string
	Err       error
}

func (e ErrDispatch) Error() string {
	if e.Err == nil {
		return "dispatch report"
	}
	return "dispatch report: " + e.Err.Error()
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.RunID) == "" {
		return msg, meta, ErrBadMessage{Meta: meta, RequestID: msg.RequestID, Reason: "missing run id"}
	}
	if strings.TrimSpace(msg.Destination) == "" {
		return msg, meta, ErrBadMessage{Meta: meta, RequestID: msg.RequestID, Reason: "missing destination"}
	}
	return msg, meta, nil
}

// HandleMessage loads the finished run named by the message and delivers its
// report. Runs that are gone or never finished are unrecoverable; delivery
// failures are retryable.
func HandleMessage(ctx context.Context, app *bootstrap.App, msg queue.Message) error {
	if app == nil || app.PipelineService == nil {
		return errors.New("pipeline service not configured")
	}
	dispatcher := app.Dispatcher
	if dispatcher == nil {
		return errors.New("report dispatcher not configured")
	}

	run, err := app.PipelineService.GetRun(ctx, msg.RunID)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			return ErrBadMessage{RequestID: msg.RequestID, Reason: "run not found: " + msg.RunID}
		}
		return ErrDispatch{RunID: msg.RunID, RequestID: msg.RequestID, Err: err}
	}
	if run.Result == nil || (run.Status != pipeline.StatusCompleted && run.Status != pipeline.StatusRejected) {
		return ErrBadMessage{RequestID: msg.RequestID, Reason: "run has no dispatchable result: " + msg.RunID}
	}

	if _, err := dispatcher.Send(ctx, *run.Result, msg.Destination); err != nil {
		return ErrDispatch{RunID: msg.RunID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}
