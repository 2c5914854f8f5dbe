package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"contract-backend/internal/bootstrap"
	"contract-backend/internal/pipeline"
	"contract-backend/internal/queue"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	_ = ctx
	_ = params
	_ = optFns
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	_ = ctx
	_ = optFns
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeDispatcher struct {
	calls int
	err   error
}

func (d *fakeDispatcher) Send(ctx context.Context, result pipeline.Result, destination string) (pipeline.DispatchStatus, error) {
	_ = ctx
	_ = result
	_ = destination
	d.calls++
	if d.err != nil {
		return pipeline.DispatchFailed, d.err
	}
	return pipeline.DispatchSent, nil
}

func testApp(t *testing.T, dispatcher pipeline.ReportDispatcher) *bootstrap.App {
	t.Helper()
	repo := pipeline.NewMemoryRepo()
	now := time.Now().UTC()
	run := pipeline.Run{
		ID:         "run-1",
		DocumentID: "doc-1",
		FileName:   "msa.pdf",
		Status:     pipeline.StatusCompleted,
		Result: &pipeline.Result{
			DocumentID:     "doc-1",
			FileName:       "msa.pdf",
			RiskScore:      40,
			Recommendation: "negotiate",
		},
		CreatedAt:   now,
		CompletedAt: &now,
	}
	if err := repo.Insert(context.Background(), run); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	return &bootstrap.App{
		Dispatcher:      dispatcher,
		PipelineService: &pipeline.Service{Repo: repo},
	}
}

func reportMessage(t *testing.T, runID string) sqstypes.Message {
	t.Helper()
	body, err := queue.EncodeMessage(queue.Message{
		RunID:       runID,
		Destination: "legal@example.com",
		RequestID:   "req-1",
		Version:     1,
	})
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	return sqstypes.Message{
		MessageId:     aws.String("m1"),
		ReceiptHandle: aws.String("r1"),
		Body:          aws.String(string(body)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	dispatcher := &fakeDispatcher{}
	app := testApp(t, dispatcher)

	handleMessage(context.Background(), app, client, "queue", reportMessage(t, "run-1"))

	if dispatcher.calls != 1 {
		t.Fatalf("dispatcher called %d times", dispatcher.calls)
	}
	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerDoesNotDeleteOnDispatchFailure(t *testing.T) {
	client := &fakeSQS{}
	dispatcher := &fakeDispatcher{err: errors.New("smtp down")}
	app := testApp(t, dispatcher)

	handleMessage(context.Background(), app, client, "queue", reportMessage(t, "run-1"))

	if len(client.deleted) != 0 {
		t.Fatalf("retryable failure must keep the message, got %d deletes", len(client.deleted))
	}
}

func TestWorkerDropsUnknownRun(t *testing.T) {
	client := &fakeSQS{}
	dispatcher := &fakeDispatcher{}
	app := testApp(t, dispatcher)

	handleMessage(context.Background(), app, client, "queue", reportMessage(t, "run-gone"))

	if dispatcher.calls != 0 {
		t.Fatalf("dispatcher should not run for missing runs")
	}
	if len(client.deleted) != 1 {
		t.Fatalf("unrecoverable message should be dropped, got %d deletes", len(client.deleted))
	}
}

func TestWorkerDeletesOnInvalidJSON(t *testing.T) {
	client := &fakeSQS{}
	app := testApp(t, &fakeDispatcher{})
	msg := sqstypes.Message{
		MessageId:     aws.String("m3"),
		ReceiptHandle: aws.String("r3"),
		Body:          aws.String("{bad-json"),
	}

	handleMessage(context.Background(), app, client, "queue", msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestReceiveCount(t *testing.T) {
	msg := sqstypes.Message{Attributes: map[string]string{"ApproximateReceiveCount": "3"}}
	if got := receiveCount(msg); got != 3 {
		t.Errorf("receiveCount = %d", got)
	}
	if got := receiveCount(sqstypes.Message{}); got != 0 {
		t.Errorf("receiveCount on empty message = %d", got)
	}
}
