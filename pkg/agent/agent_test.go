package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/matryer/is"

	"github.com/calmcall/finassist/pkg/ai"
	"github.com/calmcall/finassist/pkg/ai/llm"
	llmfake "github.com/calmcall/finassist/pkg/ai/llm/fake"
	sttfake "github.com/calmcall/finassist/pkg/ai/stt/fake"
	ttsfake "github.com/calmcall/finassist/pkg/ai/tts/fake"
	"github.com/calmcall/finassist/pkg/job"
	"github.com/calmcall/finassist/pkg/session"
)

func TestNew_RequiresLLM(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatal("expected error without LLM")
	}
}

func TestAssistant_Turn(t *testing.T) {
	is := is.New(t)
	model := llmfake.NewFakeLLM("Let's start with your monthly take-home pay.")
	a, err := New(Config{
		LLM:          model,
		Instructions: session.Prompt(session.ModeBudgeting),
		Now:          fixedClock,
	})
	is.NoErr(err)

	reply, err := a.Turn(context.Background(), "  I want to make a budget  ")
	is.NoErr(err)
	is.Equal(reply.Text, "Let's start with your monthly take-home pay.")
	is.Equal(reply.Rounds, 0)
	is.Equal(a.State(), StateIdle)

	req := model.Requests()[0]
	is.Equal(req.Messages[0], llm.SystemMessage(session.BudgetingPrompt))
	is.Equal(req.Messages[1], llm.UserMessage("I want to make a budget"))

	is.Equal(a.Transcript(), []session.TranscriptItem{
		{Timestamp: 1_700_000_000_000, Message: "I want to make a budget", Origin: session.OriginLocal},
		{Timestamp: 1_700_000_000_000, Message: "Let's start with your monthly take-home pay.", Origin: session.OriginRemote},
	})
}

func TestAssistant_TurnWithTools(t *testing.T) {
	is := is.New(t)
	pub := job.NewMemoryPublisher()
	obs := &recordingObserver{}
	model := llmfake.NewScriptedLLM(
		llmfake.CallTool("call_1", SankeyToolName, budgetArgs),
		llmfake.Reply("Here is your budget. Want me to outline next steps?"),
	)

	a, err := New(Config{
		LLM:      model,
		Tools:    ToolsForMode(session.ModeBudgeting, Deps{Publisher: pub, Observer: obs}),
		Observer: obs,
	})
	is.NoErr(err)

	reply, err := a.Turn(context.Background(), "I make 3500, rent is 1500, groceries 600")
	is.NoErr(err)
	is.Equal(reply.Text, "Here is your budget. Want me to outline next steps?")
	is.Equal(reply.Rounds, 1)
	is.Equal(reply.ToolCalls, []ToolOutcome{{Name: SankeyToolName, Result: MsgSankeyShown}})
	is.Equal(len(pub.Graphs()), 1)

	// second request carries the call and its result
	second := model.Requests()[1]
	is.Equal(len(second.Functions), 2)
	n := len(second.Messages)
	is.Equal(second.Messages[n-2].ToolCalls[0].ID, "call_1")
	is.Equal(second.Messages[n-1], llm.Message{Role: llm.RoleTool, Content: MsgSankeyShown, ToolCallID: "call_1", Name: SankeyToolName})

	is.Equal(obs.transitions, []string{"Idle->Thinking", "Thinking->Idle"})
	is.Equal(len(a.History()), 4) // user, tool request, tool result, reply
}

func TestAssistant_ToolRoundLimit(t *testing.T) {
	is := is.New(t)
	search := `{"query":"rent help","maxResults":1}`
	script := make([]llm.ChatResponse, 0, 6)
	for i := 0; i < 6; i++ {
		script = append(script, llmfake.CallTool("c", SearchToolName, search))
	}
	model := llmfake.NewScriptedLLM(script...)

	a, err := New(Config{
		LLM:           model,
		Tools:         ToolsForMode(session.ModeHotline, Deps{}),
		MaxToolRounds: 2,
	})
	is.NoErr(err)

	reply, err := a.Turn(context.Background(), "find rent help")
	is.NoErr(err)
	is.Equal(reply.Rounds, 2)
	is.Equal(len(reply.ToolCalls), 2)
	is.Equal(len(model.Requests()), 3)
	is.Equal(reply.Text, fallbackReply) // last response had no text
}

func TestAssistant_TurnErrors(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	a, err := New(Config{LLM: llmfake.NewFakeLLM()})
	is.NoErr(err)
	_, err = a.Turn(ctx, "   ")
	is.True(errors.Is(err, ErrEmptyInput))

	boom := ai.NewFatalError("fake", "chat", errors.New("invalid key"))
	a, err = New(Config{LLM: llmfake.NewFailingLLM(boom)})
	is.NoErr(err)
	_, err = a.Turn(ctx, "hello")
	is.True(ai.IsFatal(err))
	is.Equal(a.State(), StateIdle)
}

func TestAssistant_Respond(t *testing.T) {
	is := is.New(t)
	obs := &recordingObserver{}
	voice := ttsfake.NewFakeTTS()

	a, err := New(Config{
		LLM:      llmfake.NewFakeLLM("Take a slow breath with me."),
		STT:      sttfake.NewFakeSTT("I'm overwhelmed"),
		TTS:      voice,
		Voice:    "calm-voice",
		Observer: obs,
	})
	is.NoErr(err)

	out, err := a.Respond(context.Background(), []byte{1, 2, 3, 4}, "audio/webm")
	is.NoErr(err)
	is.Equal(out.Transcript, "I'm overwhelmed")
	is.Equal(out.Reply.Text, "Take a slow breath with me.")
	is.Equal(out.Audio.ContentType, "audio/wav")
	is.True(len(out.Audio.Audio) > 44)
	is.Equal(voice.Requests()[0].Voice, "calm-voice")

	is.Equal(obs.transitions, []string{
		"Idle->Listening",
		"Listening->Thinking",
		"Thinking->Speaking",
		"Speaking->Idle",
	})
}

func TestAssistant_RespondErrors(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	a, err := New(Config{LLM: llmfake.NewFakeLLM()})
	is.NoErr(err)
	_, err = a.Respond(ctx, []byte{1}, "audio/webm")
	is.True(errors.Is(err, ErrNoSpeech))

	a, err = New(Config{
		LLM: llmfake.NewFakeLLM(),
		STT: sttfake.NewFakeSTT("hi"),
		TTS: ttsfake.NewFakeTTS(),
	})
	is.NoErr(err)
	_, err = a.Respond(ctx, nil, "audio/webm")
	is.True(ai.IsFatal(err)) // empty clip
	is.Equal(a.State(), StateIdle)
}

func TestState_String(t *testing.T) {
	is := is.New(t)
	is.Equal(StateThinking.String(), "Thinking")
	is.Equal(State(42).String(), "Unknown(42)")
}

// flakyLLM fails its first fails calls, then delegates.
type flakyLLM struct {
	fails int
	next  *llmfake.FakeLLM
}

func (f *flakyLLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if f.fails > 0 {
		f.fails--
		return llm.ChatResponse{}, errors.New("upstream reset")
	}
	return f.next.Chat(ctx, req)
}

func (f *flakyLLM) Capabilities() llm.LLMCapabilities { return f.next.Capabilities() }

func TestAssistant_FailedTurnLeavesNoTrace(t *testing.T) {
	is := is.New(t)
	model := &flakyLLM{fails: 1, next: llmfake.NewFakeLLM("Your income is 3000.")}
	a, err := New(Config{LLM: model})
	is.NoErr(err)

	_, err = a.Turn(context.Background(), "I make 3000 a month")
	is.True(err != nil)
	is.Equal(len(a.History()), 0)
	is.Equal(len(a.Transcript()), 0)

	_, err = a.Turn(context.Background(), "What is my income?")
	is.NoErr(err)

	msgs := model.next.Requests()[0].Messages
	is.Equal(len(msgs), 2) // system prompt and the new question only
	is.Equal(msgs[1].Role, llm.RoleUser)
	is.Equal(msgs[1].Content, "What is my income?")
}

func TestNew_ResumesTranscript(t *testing.T) {
	is := is.New(t)
	model := llmfake.NewFakeLLM("You said 3000.")
	earlier := []session.TranscriptItem{
		{Timestamp: 1, Message: "I make 3000 a month", Origin: session.OriginLocal},
		{Timestamp: 2, Message: "Thanks, what about rent?", Origin: session.OriginRemote},
		{Timestamp: 3, Message: "ignored", Origin: "narrator"},
		{Timestamp: 4, Message: "   ", Origin: session.OriginLocal},
	}

	a, err := New(Config{LLM: model, Transcript: earlier})
	is.NoErr(err)
	is.Equal(a.Transcript(), earlier[:2])

	_, err = a.Turn(context.Background(), "What did I say my income was?")
	is.NoErr(err)

	msgs := model.Requests()[0].Messages
	is.Equal(len(msgs), 4)
	is.Equal(msgs[1], llm.UserMessage("I make 3000 a month"))
	is.Equal(msgs[2].Role, llm.RoleAssistant)
	is.Equal(msgs[2].Content, "Thanks, what about rent?")
	is.Equal(msgs[3].Content, "What did I say my income was?")
	is.Equal(len(a.Transcript()), 4)
}

func TestNew_ResumeKeepsRecentItems(t *testing.T) {
	is := is.New(t)
	items := make([]session.TranscriptItem, MaxResumeItems+10)
	for i := range items {
		items[i] = session.TranscriptItem{Timestamp: int64(i), Message: "hi", Origin: session.OriginLocal}
	}

	a, err := New(Config{LLM: llmfake.NewFakeLLM(), Transcript: items})
	is.NoErr(err)
	got := a.Transcript()
	is.Equal(len(got), MaxResumeItems)
	is.Equal(got[0].Timestamp, int64(10))
}
