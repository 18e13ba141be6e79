package runner_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/petasbytes/memchat/internal/docstore"
	"github.com/petasbytes/memchat/internal/history"
	"github.com/petasbytes/memchat/internal/provider"
	"github.com/petasbytes/memchat/internal/runner"
	"github.com/petasbytes/memchat/internal/telemetry"
	"github.com/petasbytes/memchat/memory"
)

type capture struct {
	body []byte
}

type fakeTransport struct {
	respStatus int
	respBody   []byte
	captured   *capture
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	b, _ := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if f.captured != nil {
		f.captured.body = b
	}
	resp := &http.Response{
		StatusCode: f.respStatus,
		Body:       io.NopCloser(bytes.NewReader(f.respBody)),
		Header:     make(http.Header),
		Request:    req,
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

type fakeSender struct {
	reply string
	err   error
	got   []string
	ctxID string
}

func (s *fakeSender) Send(ctx context.Context, text string) (string, error) {
	s.got = append(s.got, text)
	s.ctxID, _ = telemetry.TurnIDFromContext(ctx)
	return s.reply, s.err
}

type fakeRecorder struct {
	calls   [][2]string
	outcome history.Outcome
	err     error
}

func (r *fakeRecorder) RecordTurn(_ context.Context, u, a string) (history.Outcome, error) {
	r.calls = append(r.calls, [2]string{u, a})
	return r.outcome, r.err
}

func TestRunTurn_RecordsAnsweredTurn(t *testing.T) {
	s := &fakeSender{reply: "Hi there"}
	rec := &fakeRecorder{outcome: history.Created}
	r := runner.New(s, rec, zerolog.Nop(), nil)

	res, err := r.RunTurn(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Reply != "Hi there" || res.Outcome != history.Created || res.PersistErr != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(rec.calls) != 1 || rec.calls[0] != [2]string{"Hello", "Hi there"} {
		t.Fatalf("unexpected record calls: %v", rec.calls)
	}
	if res.TurnID == "" || s.ctxID != res.TurnID {
		t.Fatalf("turn id not propagated: result=%q sender=%q", res.TurnID, s.ctxID)
	}
}

func TestRunTurn_KeepsCallerTurnID(t *testing.T) {
	s := &fakeSender{reply: "ok"}
	r := runner.New(s, &fakeRecorder{}, zerolog.Nop(), nil)

	res, err := r.RunTurn(telemetry.WithTurnID(context.Background(), "turn-7"), "x")
	if err != nil {
		t.Fatal(err)
	}
	if res.TurnID != "turn-7" || s.ctxID != "turn-7" {
		t.Fatalf("caller turn id replaced: %+v", res)
	}
}

func TestRunTurn_ModelFailureRecordsNothing(t *testing.T) {
	cause := errors.New("quota")
	rec := &fakeRecorder{}
	r := runner.New(&fakeSender{err: cause}, rec, zerolog.Nop(), nil)

	_, err := r.RunTurn(context.Background(), "Hello")
	var me *runner.ModelError
	if !errors.As(err, &me) || !errors.Is(err, cause) {
		t.Fatalf("expected ModelError wrapping cause, got %v", err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("nothing should be recorded, got %v", rec.calls)
	}
}

func TestRunTurn_PersistFailureDoesNotFailTurn(t *testing.T) {
	perr := &history.PersistError{Err: errors.New("503")}
	r := runner.New(&fakeSender{reply: "Hi"}, &fakeRecorder{err: perr}, zerolog.Nop(), nil)

	res, err := r.RunTurn(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("turn must succeed, got %v", err)
	}
	if res.Reply != "Hi" || !errors.Is(res.PersistErr, perr) {
		t.Fatalf("unexpected result: %+v", res)
	}
}

// End to end through the Anthropic SDK and an in-memory store: the resumed
// history reaches the model and the reply lands in the document.
func TestRunTurn_ResumedSessionThroughSDK(t *testing.T) {
	ctx := context.Background()
	backend := docstore.NewMemory()
	if _, err := backend.Create(ctx, "historia_czatu_drive.txt", []byte("Ty: A\n\nGemini: B\n\n\n")); err != nil {
		t.Fatal(err)
	}
	client := docstore.NewClient(backend, docstore.DefaultOptions(), zerolog.Nop())
	rec := history.New(client, "historia_czatu_drive.txt", zerolog.Nop(), nil)
	_, seed, err := rec.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}

	capReq := &capture{}
	gen := provider.NewAnthropic(provider.Config{
		Model:     "claude-test",
		APIKey:    "test-key",
		MaxTokens: 16,
		HTTPClient: &http.Client{Transport: &fakeTransport{
			respStatus: 200,
			respBody:   []byte(`{"id":"m","type":"message","role":"assistant","content":[{"type":"text","text":"D"}]}`),
			captured:   capReq,
		}},
	})
	conv := provider.NewConversation(gen, seed, provider.ConversationOptions{})
	r := runner.New(conv, rec, zerolog.Nop(), nil)

	res, err := r.RunTurn(ctx, "C")
	if err != nil {
		t.Fatal(err)
	}
	if res.Reply != "D" || res.Outcome != history.Replaced || res.PersistErr != nil {
		t.Fatalf("unexpected result: %+v", res)
	}

	var rb struct {
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(capReq.body, &rb); err != nil {
		t.Fatal(err)
	}
	if len(rb.Messages) != 3 || rb.Messages[0].Role != "user" || rb.Messages[1].Role != "assistant" {
		t.Fatalf("resumed context not sent: %+v", rb.Messages)
	}

	id, _ := backend.FindByName(ctx, "historia_czatu_drive.txt")
	got, _ := backend.Fetch(ctx, id)
	if string(got) != "Ty: A\n\nGemini: B\n\n\nTy: C\n\nGemini: D\n\n\n" {
		t.Fatalf("unexpected document %q", got)
	}
}

type contextRecorder struct {
	seen []memory.ModelContext
}

func (g *contextRecorder) Name() string { return "test/recorder" }

func (g *contextRecorder) Generate(_ context.Context, msgs memory.ModelContext) (string, error) {
	g.seen = append(g.seen, msgs.Clone())
	return "ok", nil
}

// failFirstFetch makes the document unreadable at Load only.
type failFirstFetch struct {
	history.Store
	failed bool
}

func (s *failFirstFetch) Fetch(ctx context.Context, id docstore.DocumentID) docstore.FetchResult {
	if !s.failed {
		s.failed = true
		return docstore.FetchResult{Failure: errors.New("permission denied")}
	}
	return s.Store.Fetch(ctx, id)
}

// History that could only be read after startup still reaches the model on
// the following turns.
func TestRunTurn_RecoveredHistoryReachesModel(t *testing.T) {
	ctx := context.Background()
	backend := docstore.NewMemory()
	if _, err := backend.Create(ctx, "h.txt", []byte("Ty: A\n\nGemini: B\n\n\n")); err != nil {
		t.Fatal(err)
	}
	store := &failFirstFetch{Store: docstore.NewClient(backend, docstore.DefaultOptions(), zerolog.Nop())}
	rec := history.New(store, "h.txt", zerolog.Nop(), nil)
	_, seed, err := rec.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(seed) != 0 {
		t.Fatalf("unreadable document should seed nothing, got %v", seed)
	}

	gen := &contextRecorder{}
	conv := provider.NewConversation(gen, seed, provider.ConversationOptions{})
	r := runner.New(conv, rec, zerolog.Nop(), nil)

	for _, text := range []string{"C", "E"} {
		res, err := r.RunTurn(ctx, text)
		if err != nil || res.PersistErr != nil {
			t.Fatalf("RunTurn(%q): err=%v persist=%v", text, err, res.PersistErr)
		}
	}

	want := memory.ModelContext{
		{Role: memory.ContextUser, Text: "A"},
		{Role: memory.ContextModel, Text: "B"},
		{Role: memory.ContextUser, Text: "C"},
		{Role: memory.ContextModel, Text: "ok"},
		{Role: memory.ContextUser, Text: "E"},
	}
	if len(gen.seen) != 2 || !reflect.DeepEqual(gen.seen[1], want) {
		t.Fatalf("second model call got %v, want %v", gen.seen, want)
	}
	if got := len(rec.Transcript()); got != 6 {
		t.Fatalf("transcript has %d turns, want 6", got)
	}
}
