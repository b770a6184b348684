package llm

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// ErrScriptExhausted is returned when a ScriptedLLM has no replies left.
var ErrScriptExhausted = errors.New("scripted llm: no more replies")

// ScriptedLLM replays canned replies. It backs the offline mode of the
// command line tool and deterministic agent tests.
//
// When Respond is set it is called for every request and Replies is
// ignored.
type ScriptedLLM struct {
	Replies []string
	Respond func(messages []*agenkit.Message) (string, error)

	mu    sync.Mutex
	next  int
	calls [][]*agenkit.Message
}

// NewScriptedLLM returns a ScriptedLLM replaying replies in order.
func NewScriptedLLM(replies ...string) *ScriptedLLM {
	return &ScriptedLLM{Replies: replies}
}

// Complete returns the next scripted reply.
func (s *ScriptedLLM) Complete(ctx context.Context, messages []*agenkit.Message, opts ...CallOption) (*agenkit.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.calls = append(s.calls, messages)
	respond := s.Respond
	var reply string
	var err error
	if respond == nil {
		if s.next >= len(s.Replies) {
			err = ErrScriptExhausted
		} else {
			reply = s.Replies[s.next]
			s.next++
		}
	}
	s.mu.Unlock()

	if respond != nil {
		reply, err = respond(messages)
	}
	if err != nil {
		return nil, err
	}

	response := agenkit.NewMessage(agenkit.RoleAgent, reply)
	response.Metadata["model"] = s.Model()
	return response, nil
}

// Stream emits the next reply split on whitespace.
func (s *ScriptedLLM) Stream(ctx context.Context, messages []*agenkit.Message, opts ...CallOption) (<-chan *agenkit.Message, error) {
	response, err := s.Complete(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}

	words := strings.SplitAfter(response.Content, " ")
	ch := make(chan *agenkit.Message)
	go func() {
		defer close(ch)
		for _, w := range words {
			chunk := agenkit.NewMessage(agenkit.RoleAgent, w)
			chunk.Metadata["streaming"] = true
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Calls returns the message lists received so far.
func (s *ScriptedLLM) Calls() [][]*agenkit.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]*agenkit.Message(nil), s.calls...)
}

// Model returns "scripted".
func (s *ScriptedLLM) Model() string { return "scripted" }

// Unwrap returns the ScriptedLLM itself.
func (s *ScriptedLLM) Unwrap() interface{} { return s }

const offlineAnswer = "Final Answer: No language model is configured, so I can only route your request. " +
	"Set CATERING_LLM_PROVIDER to openai, azure, gemini or bedrock."

func offlineReply([]*agenkit.Message) (string, error) {
	return offlineAnswer, nil
}
