package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/rag"
)

// fakeChat records the messages it receives and returns a canned reply.
type fakeChat struct {
	reply string
	err   error
	calls int
	got   []*schema.Message
}

func (f *fakeChat) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.calls++
	f.got = msgs
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChat) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not used")
}

type fakeResolver struct {
	chat *fakeChat
	err  error
}

func (f *fakeResolver) Resolve(context.Context, provider.Choice) (model.BaseChatModel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chat, nil
}

type fakeRetriever struct {
	chunks []rag.Chunk
	err    error
	calls  int
	gotK   int
}

func (f *fakeRetriever) Query(_ context.Context, _ string, k int) ([]rag.Chunk, error) {
	f.calls++
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	if len(f.chunks) > k {
		return f.chunks[:k], nil
	}
	return f.chunks, nil
}

func newTestService(t *testing.T, res *fakeResolver, ret *fakeRetriever, maxTokens int) *Service {
	t.Helper()
	s, err := New(&Config{Resolver: res, Retriever: ret, MaxContextTokens: maxTokens})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := New(&Config{Retriever: &fakeRetriever{}}); err == nil {
		t.Error("expected error for nil Resolver")
	}
	if _, err := New(&Config{Resolver: &fakeResolver{}}); err == nil {
		t.Error("expected error for nil Retriever")
	}
}

func TestAnswer_PromptAndSources(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "The fee is 42 dollars."}
	ret := &fakeRetriever{chunks: []rag.Chunk{
		{Content: "Fees are 42 dollars.", Source: "prices.pdf"},
		{Content: "Payment is due monthly.", Source: "prices.pdf"},
		{Content: "Contact support.", Source: ""},
		{Content: "Never retrieved.", Source: "other.txt"},
	}}
	s := newTestService(t, &fakeResolver{chat: chat}, ret, 0)

	res, err := s.Answer(context.Background(), "What is the fee?", provider.Cloud{})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if res.Answer != "The fee is 42 dollars." {
		t.Errorf("Answer = %q", res.Answer)
	}
	want := []string{"prices.pdf", "prices.pdf", "unknown"}
	if strings.Join(res.Sources, ",") != strings.Join(want, ",") {
		t.Errorf("Sources = %v, want %v", res.Sources, want)
	}
	if ret.gotK != DefaultTopK {
		t.Errorf("k = %d, want %d", ret.gotK, DefaultTopK)
	}

	if chat.calls != 1 {
		t.Fatalf("Generate calls = %d, want 1", chat.calls)
	}
	if len(chat.got) != 2 {
		t.Fatalf("messages = %d, want 2", len(chat.got))
	}
	sys, user := chat.got[0], chat.got[1]
	if sys.Role != schema.System || user.Role != schema.User {
		t.Errorf("roles = %s, %s", sys.Role, user.Role)
	}
	wantSys := instruction + "\n\n" + "Fees are 42 dollars.\n\nPayment is due monthly.\n\nContact support."
	if sys.Content != wantSys {
		t.Errorf("system prompt = %q, want %q", sys.Content, wantSys)
	}
	if user.Content != "What is the fee?" {
		t.Errorf("user message = %q", user.Content)
	}
}

func TestAnswer_EmptyQuestion(t *testing.T) {
	t.Parallel()

	ret := &fakeRetriever{}
	s := newTestService(t, &fakeResolver{chat: &fakeChat{}}, ret, 0)
	if _, err := s.Answer(context.Background(), "   ", provider.Cloud{}); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
	if ret.calls != 0 {
		t.Error("retriever must not be called for an empty question")
	}
}

func TestAnswer_MissingCredentialBeforeRetrieval(t *testing.T) {
	t.Parallel()

	ret := &fakeRetriever{chunks: []rag.Chunk{{Content: "x", Source: "a.txt"}}}
	res := &fakeResolver{err: provider.ErrMissingCredential}
	s := newTestService(t, res, ret, 0)

	_, err := s.Answer(context.Background(), "q", provider.Custom{})
	if !errors.Is(err, provider.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if ret.calls != 0 {
		t.Error("retrieval (an embedding call) must not happen when a credential is missing")
	}
}

func TestAnswer_EmptyStorePropagates(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{}
	s := newTestService(t, &fakeResolver{chat: chat}, &fakeRetriever{err: rag.ErrEmptyStore}, 0)

	_, err := s.Answer(context.Background(), "q", provider.Local{})
	if !errors.Is(err, rag.ErrEmptyStore) {
		t.Fatalf("expected ErrEmptyStore, got %v", err)
	}
	if chat.calls != 0 {
		t.Error("model must not be called on an empty store")
	}
}

func TestAnswer_GenerateFailureWrapsProvider(t *testing.T) {
	t.Parallel()

	upstream := errors.New("rate limited")
	chat := &fakeChat{err: upstream}
	ret := &fakeRetriever{chunks: []rag.Chunk{{Content: "x", Source: "a.txt"}}}
	s := newTestService(t, &fakeResolver{chat: chat}, ret, 0)

	_, err := s.Answer(context.Background(), "q", provider.Cloud{})
	if !errors.Is(err, rag.ErrProvider) || !errors.Is(err, upstream) {
		t.Fatalf("expected ErrProvider wrapping upstream, got %v", err)
	}
}

func TestAnswer_BudgetDropsLowestRanked(t *testing.T) {
	t.Parallel()

	big := strings.Repeat("a", 400) // ~100 tokens
	chat := &fakeChat{reply: "ok"}
	ret := &fakeRetriever{chunks: []rag.Chunk{
		{Content: big, Source: "first.txt"},
		{Content: big, Source: "second.txt"},
		{Content: big, Source: "third.txt"},
	}}
	// Fixed prompt is ~70 tokens, so 200 leaves room for one chunk only.
	s := newTestService(t, &fakeResolver{chat: chat}, ret, 200)

	res, err := s.Answer(context.Background(), "q", provider.Cloud{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Sources) != 1 || res.Sources[0] != "first.txt" {
		t.Errorf("Sources = %v, want [first.txt]", res.Sources)
	}
	if strings.Count(chat.got[0].Content, big) != 1 {
		t.Error("system prompt should contain exactly one chunk")
	}
}
