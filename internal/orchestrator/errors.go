package orchestrator

import (
	"context"
	"errors"

	"github.com/park285/puzzle-duel/internal/duelerr"
	"github.com/park285/puzzle-duel/internal/event"
	"github.com/park285/puzzle-duel/internal/obslog"
	"go.uber.org/zap"
)

// notice attaches a specific message key to an error.
type notice struct {
	err  error
	key  string
	data map[string]any
}

func (n *notice) Error() string { return n.err.Error() }
func (n *notice) Unwrap() error { return n.err }

func withNotice(err error, key string, data map[string]any) error {
	return &notice{err: err, key: key, data: data}
}

var kindKeys = map[error]struct{ key, fallback string }{
	duelerr.NotFound:            {"errors.not_found", "Not found."},
	duelerr.InvalidParticipant:  {"errors.invalid_participant", "You are not in this duel."},
	duelerr.IllegalState:        {"errors.illegal_state", "Not allowed right now."},
	duelerr.CollaboratorFailure: {"errors.collaborator", "Service unavailable."},
}

// MessageKeys lists every catalog key the orchestrator renders. The server refuses to start
// when a message catalog lacks one of them.
var MessageKeys = []string{
	"errors.not_found",
	"errors.invalid_participant",
	"errors.illegal_state",
	"errors.collaborator",
	"errors.generic",
	"errors.bad_request",
	"lobby.no_opponent",
	"challenge.rejected",
	"duel.submitted",
	"duel.round_in_progress",
	"duel.round_closed",
}

// reportError sends the user a terse message for err; internals stay in the log.
func (o *Orchestrator) reportError(ctx context.Context, userID string, ev event.Inbound, err error) {
	kind := duelerr.KindOf(err)
	fields := []zap.Field{zap.String("user_id", userID), zap.Error(err)}
	if ev != nil {
		fields = append(fields, zap.String("event", string(ev.Kind())))
	}
	if kind == nil || kind == duelerr.CollaboratorFailure {
		obslog.L().Error("duel_request_failed", fields...)
	} else {
		obslog.L().Info("duel_request_rejected", fields...)
	}

	msg := o.text("errors.generic", nil, "Something went wrong.")
	if k, ok := kindKeys[kind]; ok {
		msg = o.text(k.key, nil, k.fallback)
	}
	var n *notice
	if errors.As(err, &n) {
		msg = o.text(n.key, n.data, msg)
	}
	o.send(ctx, userID, event.Error{Message: msg})
}
