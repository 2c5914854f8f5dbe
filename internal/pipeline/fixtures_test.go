package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"contract-backend/internal/detect"
	"contract-backend/internal/knowledge"
	"contract-backend/internal/llm"
	"contract-backend/internal/queue"
	"contract-backend/internal/risk"
	"contract-backend/internal/suggest"
)

const contractFixture = `SERVICE AGREEMENT

This Agreement is made by and between Acme Corp and the Contractor
(together the parties).

WHEREAS the parties wish to set out their obligations;

1. Liability. The Contractor accepts unlimited liability for any breach of this Agreement.
2. Indemnity. The Contractor agrees to indemnify Acme against all claims and remedies.
3. Term. This Agreement shall automatically renew each year until either party elects to terminate with notice.
4. Payment. Invoices are payable net 90 from receipt.
5. Warranty. Services carry a limited warranty; confidential information remains protected.
6. Governing Law. Delaware law governs; jurisdiction lies with its courts.

IN WITNESS WHEREOF, the parties execute this Agreement.`

const cleanNDAFixture = `MUTUAL NON-DISCLOSURE AGREEMENT

This Agreement is made by and between Acme Corp and Beta LLC (each a
"party" and together the "parties").

WHEREAS the parties wish to exchange Confidential Information while evaluating
a business relationship;

1. Definitions. Confidential Information means non-public information received
from the other party, whether in writing or by oral disclosure.
2. Obligations. Each party shall protect the other's Confidential Information
with reasonable care.
3. Term. These obligations expire two years after disclosure.
4. Return of Materials. On request, each party shall return or destroy all
Confidential Information.
5. Indemnity. Each party shall indemnify the other against losses caused by its
own breach of this Agreement.
6. Limitation of Liability. Each party's liability is limited to direct damages.
7. Governing Law. This Agreement is governed by Delaware law.
8. Severability. If any provision is unenforceable, the remainder stands.

IN WITNESS WHEREOF, the parties execute this Agreement as of the date below.

Signature: ____________________`

const manifestFixture = `requests==2.31.0
numpy==1.26.4
pandas==2.2.0
flask==3.0.2
pytest==8.0.1`

const knowledgeFixture = `## KB-001: Liability caps
Risk: high
Category: liability
Keywords: liability, unlimited, cap

Unlimited liability is dangerous. You should negotiate a cap tied to fees paid.

## KB-002: Renewal windows
Risk: medium
Category: term
Keywords: renew, automatic, notice

Auto-renewal needs an opt-out window. We recommend at least 60 days of notice.
`

type stubLLM struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "Suggested replacement clause.", nil
}

type stubDispatcher struct {
	mu     sync.Mutex
	calls  int
	lastTo string
	err    error
}

func (d *stubDispatcher) Send(ctx context.Context, result Result, destination string) (DispatchStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.lastTo = destination
	if d.err != nil {
		return DispatchFailed, d.err
	}
	return DispatchSent, nil
}

type stubQueue struct {
	mu   sync.Mutex
	sent []queue.Message
	err  error
}

func (q *stubQueue) Send(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, msg)
	return nil
}

func testOrchestrator(t *testing.T, client llm.Client) *Orchestrator {
	t.Helper()
	scorer, err := risk.NewScorer(risk.DefaultWeights())
	if err != nil {
		t.Fatalf("scorer: %v", err)
	}
	base, err := knowledge.ParseBase(knowledgeFixture)
	if err != nil {
		t.Fatalf("knowledge: %v", err)
	}
	if client == nil {
		client = &stubLLM{}
	}
	return &Orchestrator{
		Detector:             detect.New(detect.DefaultConfig()),
		Retriever:            knowledge.NewRetriever(knowledge.NewKeywordSearcher(base), 5),
		Scorer:               scorer,
		Suggester:            suggest.NewGenerator(client, 2, time.Second),
		RetrievalConcurrency: 2,
	}
}

func testService(t *testing.T, client llm.Client) (*Service, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	svc := &Service{
		Repo:         repo,
		Orchestrator: testOrchestrator(t, client),
		TopKDefault:  5,
	}
	return svc, repo
}

var errProviderDown = errors.New("provider down")
