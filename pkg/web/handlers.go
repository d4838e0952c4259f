package web

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/candidly/pkg/hub"
	"github.com/teslashibe/candidly/pkg/interview"
	"github.com/teslashibe/candidly/pkg/media"
	"github.com/teslashibe/candidly/pkg/reporter"
	"github.com/teslashibe/candidly/pkg/session"
)

// TranscriptResponse is the conversation so far.
type TranscriptResponse struct {
	Turns []session.Turn `json:"turns"`
}

// handleStatus returns the interview snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctl.Snapshot())
}

func (s *Server) handleTranscript(c *fiber.Ctx) error {
	turns := s.ctl.History()
	if turns == nil {
		turns = []session.Turn{}
	}
	return c.JSON(TranscriptResponse{Turns: turns})
}

func (s *Server) handleFlags(c *fiber.Ctx) error {
	return c.JSON(s.ctl.Flags())
}

// handleEnd asks the interview to stop and submit. Repeated calls are
// harmless.
func (s *Server) handleEnd(c *fiber.Ctx) error {
	s.ctl.End()
	return c.Status(fiber.StatusAccepted).JSON(s.ctl.Snapshot())
}

// handleListen resumes listening after the microphone was paused.
func (s *Server) handleListen(c *fiber.Ctx) error {
	if err := s.ctl.RequestListen(); err != nil {
		if errors.Is(err, interview.ErrNotListening) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(s.ctl.Snapshot())
}

// handleRetrySubmit re-sends a failed submission.
func (s *Server) handleRetrySubmit(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.RequestTimeout)
	defer cancel()

	err := s.ctl.RetrySubmit(ctx)
	switch {
	case err == nil:
		return c.JSON(s.ctl.Snapshot())
	case errors.Is(err, interview.ErrNoPendingSubmit),
		errors.Is(err, reporter.ErrSubmitInFlight),
		errors.Is(err, reporter.ErrAlreadySubmitted):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
}

// handleOffer answers the candidate page's SDP offer.
func (s *Server) handleOffer(c *fiber.Ctx) error {
	var offer media.SessionDescription
	if err := json.Unmarshal(c.Body(), &offer); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid offer body")
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.config.RequestTimeout)
	defer cancel()

	answer, err := s.offers.HandleOffer(ctx, offer)
	switch {
	case err == nil:
		return c.JSON(answer)
	case errors.Is(err, media.ErrInvalidOffer):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, media.ErrReleased):
		return fiber.NewError(fiber.StatusGone, err.Error())
	default:
		return err
	}
}

// handleStatusWS streams interview events, starting from the current
// snapshot.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	initial, err := json.Marshal(statusGreeting{
		Type:     "snapshot",
		Snapshot: s.ctl.Snapshot(),
	})
	if err != nil {
		s.logger.Error("snapshot encode failed", "error", err)
		return
	}

	client, err := hub.NewClient(s.ctx, s.statusHub, c, initial)
	if err != nil {
		return
	}
	client.Run()
}

// statusGreeting is the first message on /ws/status.
type statusGreeting struct {
	Type     string             `json:"type"`
	Snapshot interview.Snapshot `json:"snapshot"`
}
