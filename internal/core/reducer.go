package core

import (
	"strings"

	"go.uber.org/zap"

	"previewchat/internal/models"
	"previewchat/internal/protocol"
	"previewchat/internal/publish"
)

// applyEnvelope folds one inbound event into session state. Unknown types
// are logged and ignored; nothing here may panic or escape the loop.
func (s *Session) applyEnvelope(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeStreamChunk:
		s.state.AppendChunk(protocol.ChunkText(env.Message))

	case protocol.TypeStreamEnd:
		s.finishStream()
		s.finalStatusTransition(env.Status)

	case protocol.TypeProgressUpdate:
		if env.Message != "" && !strings.Contains(env.Message, "Stream started") {
			s.state.AddProgress("⚙️ " + env.Message)
		}
		if env.IsFinal {
			s.finishStream()
			s.finalStatusTransition(env.Status)
		}

	case protocol.TypeStateUpdated:
		s.state.AddProgress("📢 State updated on backend")

	case protocol.TypeActionProgress:
		if env.Message != "" {
			s.state.AddProgress("⚙️ Action: " + env.Message)
		}
		switch env.Status {
		case protocol.ActionStarted:
			s.state.SetPhase(models.Chatting)
		case protocol.ActionAllCompleted:
			if env.IsFinal {
				s.finishStream()
				s.schedulePublish()
			}
		}

	case protocol.TypeActionConfirmation:
		s.state.SetPendingToken(env.ConfirmationID)
		s.state.SetBotTyping(false)
		if env.PreviewMessage != "" {
			s.state.AddProgress("⏸️ " + env.PreviewMessage)
		}
		s.state.AddProgress("⏸️ Waiting for your confirmation...")

	case protocol.TypeConfirmationResult:
		s.state.SetPendingToken("")
		switch env.Status {
		case "confirmed":
			s.state.AddProgress("✅ Action confirmed - executing changes...")
		case "cancelled":
			s.state.AddProgress("❌ Action cancelled")
		case "modified":
			s.state.AddProgress("✏️ Action modified - executing selected changes...")
		default:
			s.state.AddProgress("Confirmation resolved: " + env.Status)
		}

	case protocol.TypePreviewInitiated:
		s.handlePreviewInitiated(env)

	default:
		s.log.Info("ignoring unknown event type", zap.String("type", env.Type))
	}
}

// finishStream freezes the in-progress bot message and captures any
// confirmation code embedded in the finalized text.
func (s *Session) finishStream() {
	text := s.state.FinishStream()
	if text == "" {
		return
	}
	if token := FindToken(text); token != "" {
		s.state.SetPendingToken(token)
		s.state.AddProgress("⏸️ Confirmation code " + token + " pending")
	}
}

// finalStatusTransition is the single exit from Chatting: completed moves
// on to the publish sequence, every other status returns the phase to Idle.
func (s *Session) finalStatusTransition(status string) {
	s.state.SetBotTyping(false)

	switch status {
	case protocol.StatusCompleted:
		s.schedulePublish()
	case protocol.StatusNoActions:
		s.state.SetPhase(models.Idle)
	case protocol.StatusAwaitingConfirmation, protocol.StatusAwaitingSelection:
		s.state.SetPhase(models.Idle)
	default:
		s.log.Info("final status without actions", zap.String("status", status))
		s.state.SetPhase(models.Idle)
	}
}

// schedulePublish queues the publish sequence after a short settle delay,
// correlated to the live connection.
func (s *Session) schedulePublish() {
	gen := s.gen
	s.after(publishSettleDelay, func() {
		if gen != s.gen {
			return
		}
		s.startPublish()
		s.pushState()
	})
}

// startPublish issues the publish-create request. A missing preview id is a
// terminal local error: no request is sent and the phase resets.
func (s *Session) startPublish() {
	previewID := s.state.PreviewID()
	if previewID == "" {
		s.log.Error("publish requested without preview id")
		s.state.AddProgress("❌ Error: Preview ID is missing. Cannot publish.")
		s.state.SetBotTyping(false)
		s.state.SetPhase(models.Idle)
		return
	}

	s.state.SetPhase(models.Updating)
	s.state.AddProgress("🚀 Initiating site update with Preview ID: " + previewID + "...")
	s.pushState()

	res, err := s.publisher.Create(s.ctx, previewID)
	if err != nil {
		s.log.Error("publish create failed", zap.Error(err))
		s.state.AddProgress("❌ Error: " + err.Error())
		s.state.SetPhase(models.Idle)
		return
	}

	if res.Sync {
		// Legacy synchronous shape: already complete, no polling.
		s.finishPublishSuccess(res.Result)
		return
	}

	status := res.Status
	if status == "" {
		status = publish.StatusQueued
	}
	s.state.AddProgress("✅ Update task queued: " + res.TaskID)
	s.state.AddProgress("📍 Status: " + status)
	if res.Message != "" {
		s.state.AddProgress("💬 " + res.Message)
	}

	s.poller = publish.NewPoller(s.publisher, res.TaskID, s.log)
	s.schedulePollTick(s.poller)
}

func (s *Session) schedulePollTick(p *publish.Poller) {
	s.after(publish.PollInterval, func() {
		if p != s.poller {
			return
		}
		s.pollTick(p)
		s.pushState()
	})
}

// pollTick runs one poll transition and folds the outcome into state.
func (s *Session) pollTick(p *publish.Poller) {
	res := p.Tick(s.ctx)

	for _, msg := range res.NewMessages {
		s.state.AddProgress(publish.Decorate(msg))
	}

	switch res.Outcome {
	case publish.OutcomeNone:
		s.schedulePollTick(p)

	case publish.OutcomeCompleted:
		s.finishPublishSuccess(res.Result)

	case publish.OutcomeFailed, publish.OutcomeExpired:
		s.poller = nil
		s.state.AddProgress("❌ Error: " + res.FailureText)
		s.state.SetPhase(models.Idle)

	case publish.OutcomeTimeout:
		s.poller = nil
		s.state.AddProgress("⏱️ Update timed out after 5 minutes")
		// The update may still have landed server-side, so the destination is
		// surfaced optimistically.
		if s.cfg.GetSiteURL() != "" {
			s.state.SetPreviewURL(s.cfg.GetSiteURL())
		}
		s.state.SetPhase(models.Idle)
	}
}

// finishPublishSuccess is the shared terminal-success branch for both the
// polled and the legacy synchronous publish paths.
func (s *Session) finishPublishSuccess(result *publish.Result) {
	s.poller = nil
	s.state.AddProgress("✅ Update completed successfully!")

	url := s.cfg.GetSiteURL()
	if result != nil {
		if result.Message != "" {
			s.state.AddProgress("💬 " + result.Message)
		}
		if result.UpdatedPageURL != "" {
			url = result.UpdatedPageURL
		}
	}
	if url != "" {
		s.state.SetPreviewURL(url)
	}
	s.state.SetBotTyping(false)
	s.state.SetPhase(models.Idle)
}

// handlePreviewInitiated resolves the session-initiation handshake. A late
// response after timeout or reconnect is ignored.
func (s *Session) handlePreviewInitiated(env protocol.Envelope) {
	if s.state.Phase() != models.Initiating {
		s.log.Info("ignoring previewInitiated outside initiation", zap.String("preview_id", env.PreviewID))
		return
	}

	if env.Status == "success" && env.PreviewID != "" {
		s.state.SetPreviewID(env.PreviewID)
		s.state.AddProgress("✅ Preview session created: " + env.PreviewID)
	} else {
		msg := env.Message
		if msg == "" {
			msg = "Failed to initiate preview"
		}
		s.state.AddProgress("❌ " + msg)
	}
	s.state.SetPhase(models.Idle)
}
