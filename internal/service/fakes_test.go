package service

import (
	"context"
	"errors"
	"sync"

	"chat-relay-go/internal/model"
	"chat-relay-go/internal/repository"
	"chat-relay-go/pkg/llm"
)

// memRepo 是内存版的 ConversationRepository。
type memRepo struct {
	mu      sync.Mutex
	records map[string][]model.Turn
	getErrs []error // 依次返回的 Get 错误
	putErr  error
	listErr error
	gets    int
	puts    int
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[string][]model.Turn{}}
}

func (r *memRepo) Get(ctx context.Context, id string) ([]model.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if len(r.getErrs) > 0 {
		err := r.getErrs[0]
		r.getErrs = r.getErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	turns, ok := r.records[id]
	if !ok {
		return nil, repository.ErrConversationNotFound
	}
	return turns, nil
}

func (r *memRepo) Put(ctx context.Context, id string, turns []model.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.puts++
	if r.putErr != nil {
		return r.putErr
	}
	r.records[id] = turns
	return nil
}

func (r *memRepo) List(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *memRepo) saved(id string) ([]model.Turn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	turns, ok := r.records[id]
	return turns, ok
}

var errExpired = errors.New("ExpiredTokenException: the security token included in the request is expired")

// fakeClient 模拟推理后端。openErr 非空时打开调用失败；
// failAfter > 0 时在发送 failAfter 个分块后返回错误。
type fakeClient struct {
	generation int
	text       string
	chunks     []string
	openErr    error
	failAfter  int
	requests   []llm.Request
}

func (c *fakeClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	c.requests = append(c.requests, req)
	if c.openErr != nil {
		return "", c.openErr
	}
	return c.text, nil
}

func (c *fakeClient) Stream(ctx context.Context, req llm.Request) (<-chan llm.Delta, error) {
	c.requests = append(c.requests, req)
	if c.openErr != nil {
		return nil, c.openErr
	}
	ch := make(chan llm.Delta)
	go func() {
		defer close(ch)
		for i, chunk := range c.chunks {
			if c.failAfter > 0 && i == c.failAfter {
				select {
				case ch <- llm.Delta{Err: errors.New("ThrottlingException")}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case ch <- llm.Delta{Text: chunk}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.ConversationEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, e model.ConversationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type recordingSink struct {
	writes     []string
	completed  *string
	failed     error
	onWrite    func(n int)
	onComplete func()
}

func (s *recordingSink) Write(chunk string) error {
	s.writes = append(s.writes, chunk)
	if s.onWrite != nil {
		s.onWrite(len(s.writes))
	}
	return nil
}

func (s *recordingSink) Complete(text string) error {
	s.completed = &text
	if s.onComplete != nil {
		s.onComplete()
	}
	return nil
}

func (s *recordingSink) Fail(err error) { s.failed = err }
