package harness

// Trace entry types.
const (
	EntryInvocation = "invocation"
	EntryCompletion = "completion"
	EntryEvent      = "event"
)

// TraceEvent is one entry of a scenario trace: a step invocation, its
// completion, or a notification published in between.
type TraceEvent struct {
	Type       string         `json:"type"`
	ActionURI  string         `json:"action_uri,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	OutputCase string         `json:"output_case,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	Topic      string         `json:"topic,omitempty"`
	Source     string         `json:"source,omitempty"`
	Message    string         `json:"message,omitempty"`
	Seq        int64          `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains invocations, notifications and completions in order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`

	// State holds the final rows of each table, keyed by table name.
	State map[string][]map[string]any `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string][]map[string]any),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Events returns the notification entries of the trace.
func (r *Result) Events() []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EntryEvent {
			out = append(out, e)
		}
	}
	return out
}
