package agent

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"outreach/pkg/llm"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// transcriptCodec returns the shared token codec. Claude tokenization is
// approximated with the GPT-4 encoding; close enough for size introspection.
func transcriptCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.ForModel(tokenizer.GPT4)
		if err == nil {
			codec = c
		}
	})
	return codec
}

// Transcript is the ordered conversation sent to the model. It grows by
// appending turns; a reset replaces it with a fresh value via NewTranscript.
type Transcript struct {
	messages []llm.Message
}

// NewTranscript starts a conversation with a single user turn.
func NewTranscript(initialTask string) *Transcript {
	return &Transcript{messages: []llm.Message{llm.UserText(initialTask)}}
}

// Append adds one turn to the end of the transcript.
func (t *Transcript) Append(msg llm.Message) {
	t.messages = append(t.messages, msg)
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the turns, safe to hand to a client.
func (t *Transcript) Messages() []llm.Message {
	out := make([]llm.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// EstimateTokens approximates the token size of the transcript text. Falls
// back to the 4-chars-per-token heuristic when the codec is unavailable.
func (t *Transcript) EstimateTokens() int {
	var total int
	c := transcriptCodec()
	for i := range t.messages {
		msg := &t.messages[i]
		for j := range msg.Blocks {
			total += countTokens(c, msg.Blocks[j].Text)
		}
		for j := range msg.ToolResults {
			total += countTokens(c, msg.ToolResults[j].Content)
		}
	}
	return total
}

func countTokens(c tokenizer.Codec, text string) int {
	if text == "" {
		return 0
	}
	if c == nil {
		return len(text) / 4
	}
	n, err := c.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}
