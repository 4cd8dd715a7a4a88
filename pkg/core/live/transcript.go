package live

import (
	"strings"
	"sync"
)

// channelState is one direction of the transcript. finalized marks that the
// current logical turn already emitted an utterance on this channel; last
// holds that utterance so a redelivered delta plus boundary can be told apart
// from a genuinely new turn.
type channelState struct {
	buf       strings.Builder
	finalized bool
	last      string
}

func (c *channelState) append(delta string) string {
	c.buf.WriteString(delta)
	return c.buf.String()
}

// finalize closes the channel's turn. It returns the text to emit, or ""
// when the channel was empty or the accumulated text is a duplicate delivery
// of what was already finalized this turn. The finalized flag resets at every
// boundary, so the next turn starts clean.
func (c *channelState) finalize() string {
	text := c.buf.String()
	c.buf.Reset()
	if text == "" {
		c.finalized = false
		c.last = ""
		return ""
	}
	if c.finalized && text == c.last {
		c.finalized = false
		return ""
	}
	c.finalized = true
	c.last = text
	return text
}

func (c *channelState) reset() {
	c.buf.Reset()
	c.finalized = false
	c.last = ""
}

// Accumulator collects transcript deltas for both directions of a turn.
// The upstream sends word fragments; the accumulator keeps the running text
// until a turn boundary finalizes it or an interruption discards it. Each
// channel finalizes at most once per turn, so out-of-order redelivery of a
// delta and its boundary cannot emit the same utterance twice.
type Accumulator struct {
	mu     sync.Mutex
	input  channelState
	output channelState
}

// NewAccumulator returns an empty transcript accumulator.
func NewAccumulator() *Accumulator { return &Accumulator{} }

// AppendInput adds a user transcription delta and returns the running text.
func (a *Accumulator) AppendInput(delta string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.input.append(delta)
}

// AppendOutput adds a model transcription delta and returns the running text.
func (a *Accumulator) AppendOutput(delta string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.output.append(delta)
}

// TurnComplete finalizes the turn. It returns the accumulated user and model
// texts and clears both channels; an empty return value means that channel
// had nothing new to finalize, either because it was empty or because the
// boundary arrived a second time for text already emitted this turn.
func (a *Accumulator) TurnComplete() (userText, modelText string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.input.finalize(), a.output.finalize()
}

// DiscardOutput drops the partial model text without finalizing it, returning
// what was discarded. User input is kept; the user kept talking, the model
// did not get to finish.
func (a *Accumulator) DiscardOutput() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	partial := a.output.buf.String()
	a.output.buf.Reset()
	return partial
}

// Reset clears both channels without finalizing anything.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.input.reset()
	a.output.reset()
}
