package live

// Handler receives session events. Implementations must not block; callbacks
// run on the session's receive goroutine.
type Handler interface {
	// OnReady fires once the upstream stream is open.
	OnReady()
	// OnInputTranscript reports the running user transcript for the turn.
	OnInputTranscript(text string)
	// OnOutputTranscript reports the running model transcript for the turn.
	OnOutputTranscript(text string)
	// OnUserUtterance delivers a finalized user turn.
	OnUserUtterance(text string)
	// OnModelUtterance delivers a finalized model turn.
	OnModelUtterance(text string)
	// OnInterrupted fires when the user barges in. discarded is the partial
	// model text that will never be finalized.
	OnInterrupted(discarded string)
	// OnAgentSwitch fires when the model hands the conversation to another
	// persona. The stream stays up.
	OnAgentSwitch(agentID string)
	// OnUsage reports upstream token accounting.
	OnUsage(u Usage)
	// OnError fires when the session enters the Errored state.
	OnError(err error)
	// OnClosed fires after a clean close.
	OnClosed(reason string)
}

// NopHandler implements Handler with no-ops. Embed it to implement only the
// callbacks you care about.
type NopHandler struct{}

func (NopHandler) OnReady()                    {}
func (NopHandler) OnInputTranscript(string)    {}
func (NopHandler) OnOutputTranscript(string)   {}
func (NopHandler) OnUserUtterance(string)      {}
func (NopHandler) OnModelUtterance(string)     {}
func (NopHandler) OnInterrupted(string)        {}
func (NopHandler) OnAgentSwitch(string)        {}
func (NopHandler) OnUsage(Usage)               {}
func (NopHandler) OnError(error)               {}
func (NopHandler) OnClosed(string)             {}
