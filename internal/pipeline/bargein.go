package pipeline

import (
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
)

// BargeInController cuts bot playback when the caller starts speaking
// over it. It only reacts while the active turn is synthesizing or
// playing; speech during recognize or reason simply queues as usual.
type BargeInController struct {
	orch   *Orchestrator
	logger *Logger.Logger
}

func NewBargeInController(orch *Orchestrator, logger *Logger.Logger) *BargeInController {
	return &BargeInController{orch: orch, logger: logger}
}

// OnSpeechStart is called by the segmenter pump when a session's caller
// begins speaking. Reports whether a turn was interrupted.
func (b *BargeInController) OnSpeechStart(sessionID string) bool {
	switch b.orch.TurnState(sessionID) {
	case TurnSynthesizing, TurnPlaying:
	default:
		return false
	}
	if !b.orch.CancelActive(sessionID) {
		return false
	}
	b.logger.Infof("barge-in: interrupted playback for session %s", sessionID)
	return true
}
