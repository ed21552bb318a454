package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/matryer/is"

	"github.com/calmcall/finassist/internal/providers"
	llmfake "github.com/calmcall/finassist/pkg/ai/llm/fake"
	"github.com/calmcall/finassist/pkg/agent"
	"github.com/calmcall/finassist/pkg/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionSankey(t *testing.T) {
	is := is.New(t)
	srv := newTestServer(t, Options{})
	const path = "/api/sessions/s1/sankey"

	rec := doJSON(srv, http.MethodGet, path, "")
	is.Equal(rec.Code, http.StatusNotFound)

	rec = doJSON(srv, http.MethodPut, path+"?balance=1", `{"nodes":[{"id":"Income"}],"links":[{"source":"Income","target":"Rent","value":1500}]}`)
	is.Equal(rec.Code, http.StatusOK)

	rec = doJSON(srv, http.MethodGet, path, "")
	is.Equal(rec.Code, http.StatusOK)
	var p session.SankeyPayload
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &p))
	is.Equal(len(p.Links), 1)
	is.True(p.SavedAt > 0)

	// other sessions are isolated
	rec = doJSON(srv, http.MethodGet, "/api/sessions/s2/sankey", "")
	is.Equal(rec.Code, http.StatusNotFound)

	rec = doJSON(srv, http.MethodDelete, path, "")
	is.Equal(rec.Code, http.StatusNoContent)
	rec = doJSON(srv, http.MethodGet, path, "")
	is.Equal(rec.Code, http.StatusNotFound)
}

func TestSessionTranscript(t *testing.T) {
	is := is.New(t)
	srv := newTestServer(t, Options{})
	const path = "/api/sessions/s1/transcript"

	rec := doJSON(srv, http.MethodPut, path, `{"items":[{"timestamp":1,"message":"hi","origin":"local"},{"timestamp":2,"message":"hello","origin":"remote"}]}`)
	is.Equal(rec.Code, http.StatusOK)

	rec = doJSON(srv, http.MethodGet, path, "")
	is.Equal(rec.Code, http.StatusOK)
	var p session.TranscriptPayload
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &p))
	is.Equal(len(p.Items), 2)
	is.True(p.EndedAt > 0)

	rec = doJSON(srv, http.MethodPut, path, `{"items":[{"timestamp":1,"message":"hi","origin":"narrator"}]}`)
	is.Equal(rec.Code, http.StatusUnprocessableEntity)

	rec = doJSON(srv, http.MethodDelete, path, "")
	is.Equal(rec.Code, http.StatusNoContent)
	rec = doJSON(srv, http.MethodGet, path, "")
	is.Equal(rec.Code, http.StatusNotFound)
}

func TestSessionOnboarding(t *testing.T) {
	is := is.New(t)
	srv := newTestServer(t, Options{})
	const path = "/api/sessions/s1/onboarding"

	rec := doJSON(srv, http.MethodPut, path, `{"age":"34"}`)
	is.Equal(rec.Code, http.StatusUnprocessableEntity) // name is required

	rec = doJSON(srv, http.MethodPut, path, `{"name":"Sam","age":"34"}`)
	is.Equal(rec.Code, http.StatusOK)

	rec = doJSON(srv, http.MethodGet, path, "")
	is.Equal(rec.Code, http.StatusOK)
	var d session.OnboardingData
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &d))
	is.Equal(d, session.OnboardingData{Name: "Sam", Age: "34"})

	rec = doJSON(srv, http.MethodDelete, "/api/sessions/s1/", "")
	is.Equal(rec.Code, http.StatusNoContent)
	rec = doJSON(srv, http.MethodGet, path, "")
	is.Equal(rec.Code, http.StatusNotFound)
}

func TestSessionID_Rules(t *testing.T) {
	srv := newTestServer(t, Options{})

	tests := []struct {
		name string
		id   string
		want int
	}{
		{name: "room name", id: "calmcall_4f2a9b1c_budgeting", want: http.StatusNotFound},
		{name: "separator", id: "a:b", want: http.StatusBadRequest},
		{name: "space", id: "a%20b", want: http.StatusBadRequest},
		{name: "non ascii", id: "caf%C3%A9", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(srv, http.MethodGet, "/api/sessions/"+tt.id+"/sankey", "")
			if rec.Code != tt.want {
				t.Errorf("GET %s: status %d, want %d", tt.id, rec.Code, tt.want)
			}
		})
	}
}

func TestChat_DrawsBudget(t *testing.T) {
	is := is.New(t)

	model := llmfake.NewScriptedLLM(
		llmfake.CallTool("call_1", agent.SankeyToolName,
			`{"nodes":[{"id":"Income"},{"id":"Needs"}],"links":[{"source":"Income","target":"Needs","value":2500},{"source":"Needs","target":"Rent","value":1500}],"balance":true}`),
		llmfake.Reply("Here is your budget."),
	)
	srv := newTestServer(t, Options{Providers: providers.Set{LLM: model}})

	rec := doJSON(srv, http.MethodPost, "/api/sessions/s1/chat", `{"text":"I make 2500 and rent is 1500","mode":"budgeting"}`)
	is.Equal(rec.Code, http.StatusOK)

	var resp chatResponse
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &resp))
	is.Equal(resp.Reply, "Here is your budget.")
	is.Equal(len(resp.ToolCalls), 1)
	is.Equal(resp.ToolCalls[0].Result, agent.MsgSankeyShown)
	is.True(resp.Sankey != nil)

	// the tool cached the graph for the session
	rec = doJSON(srv, http.MethodGet, "/api/sessions/s1/sankey", "")
	is.Equal(rec.Code, http.StatusOK)

	// the budgeting persona was used
	is.Equal(model.Requests()[0].Messages[0].Content, session.BudgetingPrompt)
}

func TestChat_HotlineHasNoChartTool(t *testing.T) {
	is := is.New(t)
	model := llmfake.NewFakeLLM("I'm here with you.")
	srv := newTestServer(t, Options{Providers: providers.Set{LLM: model}})

	rec := doJSON(srv, http.MethodPost, "/api/sessions/s1/chat", `{"text":"I can't pay rent","mode":"hotline"}`)
	is.Equal(rec.Code, http.StatusOK)

	for _, fn := range model.Requests()[0].Functions {
		is.True(fn.Name != agent.SankeyToolName)
	}
}

func TestChat_ResumesSessionTranscript(t *testing.T) {
	is := is.New(t)
	model := llmfake.NewFakeLLM("Got it, 3000 a month.", "You said 3000.")
	srv := newTestServer(t, Options{Providers: providers.Set{LLM: model}})
	const path = "/api/sessions/s1/chat"

	rec := doJSON(srv, http.MethodPost, path, `{"text":"I make 3000 a month","mode":"budgeting"}`)
	is.Equal(rec.Code, http.StatusOK)
	rec = doJSON(srv, http.MethodPost, path, `{"text":"What did I say my income was?","mode":"budgeting"}`)
	is.Equal(rec.Code, http.StatusOK)

	msgs := model.Requests()[1].Messages
	is.Equal(len(msgs), 4) // system, first exchange, new question
	is.Equal(msgs[1].Content, "I make 3000 a month")
	is.Equal(msgs[2].Content, "Got it, 3000 a month.")
	is.Equal(msgs[3].Content, "What did I say my income was?")

	rec = doJSON(srv, http.MethodGet, "/api/sessions/s1/transcript", "")
	is.Equal(rec.Code, http.StatusOK)
	var p session.TranscriptPayload
	is.NoErr(json.Unmarshal(rec.Body.Bytes(), &p))
	is.Equal(len(p.Items), 4)
	is.Equal(p.Items[3].Origin, session.OriginRemote)
	is.Equal(p.Items[3].Message, "You said 3000.")

	// other sessions start fresh
	rec = doJSON(srv, http.MethodPost, "/api/sessions/s2/chat", `{"text":"hello"}`)
	is.Equal(rec.Code, http.StatusOK)
	is.Equal(len(model.Requests()[2].Messages), 2)
}

func TestChat_Invalid(t *testing.T) {
	is := is.New(t)
	srv := newTestServer(t, Options{})

	rec := doJSON(srv, http.MethodPost, "/api/sessions/s1/chat", `{"text":"   "}`)
	is.Equal(rec.Code, http.StatusUnprocessableEntity)

	rec = doJSON(srv, http.MethodPost, "/api/sessions/s1/chat", `{"text":"hi","mode":"karaoke"}`)
	is.Equal(rec.Code, http.StatusUnprocessableEntity)
}
