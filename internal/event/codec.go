package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the wire frame: {"type": "...", "payload": {...}}.
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var (
	ErrUnknownKind = errors.New("unknown event type")
	ErrBadPayload  = errors.New("malformed event payload")
)

// DecodeInbound parses a raw frame into its inbound event.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return env.Inbound()
}

// Inbound resolves the envelope's payload by its type tag.
func (env Envelope) Inbound() (Inbound, error) {
	switch env.Type {
	case KindJoinLobby:
		return decodeAs[JoinLobby](env.Payload)
	case KindLeaveLobby:
		return decodeAs[LeaveLobby](env.Payload)
	case KindFindOpponent:
		return decodeAs[FindOpponent](env.Payload)
	case KindChallenge:
		return decodeAs[Challenge](env.Payload)
	case KindAcceptChallenge:
		return decodeAs[AcceptChallenge](env.Payload)
	case KindRejectChallenge:
		return decodeAs[RejectChallenge](env.Payload)
	case KindSubmitSolution:
		return decodeAs[SubmitSolution](env.Payload)
	case KindRequestNextRound:
		return decodeAs[RequestNextRound](env.Payload)
	case KindForfeit:
		return decodeAs[Forfeit](env.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}

func decodeAs[T Inbound](payload json.RawMessage) (Inbound, error) {
	var v T
	if len(bytes.TrimSpace(payload)) == 0 || bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return v, nil
}

// Wrap builds the envelope for an outbound event.
func Wrap(ev Outbound) (Envelope, error) {
	if ev == nil {
		return Envelope{}, errors.New("nil event")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", ev.Kind(), err)
	}
	return Envelope{Type: ev.Kind(), Payload: payload}, nil
}

// EncodeOutbound renders the wire bytes for an outbound event.
func EncodeOutbound(ev Outbound) ([]byte, error) {
	env, err := Wrap(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// EncodeInbound is the client-side counterpart used by duelclient and tests.
func EncodeInbound(ev Inbound) ([]byte, error) {
	if ev == nil {
		return nil, errors.New("nil event")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.Kind(), err)
	}
	return json.Marshal(Envelope{Type: ev.Kind(), Payload: payload})
}

// DecodeOutbound parses a server frame; clients use it to consume notifications.
func DecodeOutbound(raw []byte) (Outbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	var (
		out Outbound
		err error
	)
	switch env.Type {
	case KindLobbyUpdate:
		out, err = decodeOut[LobbyUpdate](env.Payload)
	case KindNoOpponentFound:
		out, err = decodeOut[NoOpponentFound](env.Payload)
	case KindChallengeReceived:
		out, err = decodeOut[ChallengeReceived](env.Payload)
	case KindChallengeSent:
		out, err = decodeOut[ChallengeSent](env.Payload)
	case KindChallengeRejected:
		out, err = decodeOut[ChallengeRejected](env.Payload)
	case KindGameStarted:
		out, err = decodeOut[GameStarted](env.Payload)
	case KindSolutionSubmitted:
		out, err = decodeOut[SolutionSubmitted](env.Payload)
	case KindRoundComplete:
		out, err = decodeOut[RoundComplete](env.Payload)
	case KindGameOver:
		out, err = decodeOut[GameOver](env.Payload)
	case KindError:
		out, err = decodeOut[Error](env.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
	return out, err
}

func decodeOut[T Outbound](payload json.RawMessage) (Outbound, error) {
	var v T
	if len(bytes.TrimSpace(payload)) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return v, nil
}
