package ai

// Outcome classifies a generator call.
type Outcome string

const (
	// OutcomeOK means the provider returned usable text.
	OutcomeOK Outcome = "ok"
	// OutcomeFallback means the provider answered without usable text and
	// FallbackText was substituted.
	OutcomeFallback Outcome = "fallback"
	// OutcomeFailed means the provider rejected the call; nothing should be written.
	OutcomeFailed Outcome = "failed"
)

// FallbackText is written when the provider is reachable but returns no usable text.
const FallbackText = "すみません、うまく回答をまとめられませんでした。言い方を少し変えて、もう一度送ってもらえますか？"

// Reply is the result of one generator call.
type Reply struct {
	Text    string
	Outcome Outcome
}

// Failed reports whether the call ended without anything to write.
func (r Reply) Failed() bool {
	return r.Outcome == OutcomeFailed
}

func fallbackReply() Reply {
	return Reply{Text: FallbackText, Outcome: OutcomeFallback}
}
