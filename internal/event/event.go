// Package event defines the messages exchanged between players and the duel server.
//
// Inbound and Outbound are closed unions: only types in this package implement them,
// and the codec switches over every kind.
package event

import "github.com/park285/puzzle-duel/internal/rating"

type Kind string

const (
	KindJoinLobby        Kind = "JOIN_LOBBY"
	KindLeaveLobby       Kind = "LEAVE_LOBBY"
	KindFindOpponent     Kind = "FIND_OPPONENT"
	KindChallenge        Kind = "CHALLENGE"
	KindAcceptChallenge  Kind = "ACCEPT_CHALLENGE"
	KindRejectChallenge  Kind = "REJECT_CHALLENGE"
	KindSubmitSolution   Kind = "SUBMIT_SOLUTION"
	KindRequestNextRound Kind = "REQUEST_NEXT_ROUND"
	KindForfeit          Kind = "FORFEIT"

	KindLobbyUpdate       Kind = "LOBBY_UPDATE"
	KindNoOpponentFound   Kind = "NO_OPPONENT"
	KindChallengeReceived Kind = "CHALLENGE_RECEIVED"
	KindChallengeSent     Kind = "CHALLENGE_SENT"
	KindChallengeRejected Kind = "CHALLENGE_REJECTED"
	KindGameStarted       Kind = "GAME_STARTED"
	KindSolutionSubmitted Kind = "SOLUTION_SUBMITTED"
	KindRoundComplete     Kind = "ROUND_COMPLETE"
	KindGameOver          Kind = "GAME_OVER"
	KindError             Kind = "ERROR"
)

// Inbound is a player request. The sender's identity travels beside the event, never inside it.
type Inbound interface {
	Kind() Kind
	isInbound()
}

// Outbound is a server notification addressed to one player.
type Outbound interface {
	Kind() Kind
	isOutbound()
}

// Inbound events

type JoinLobby struct {
	DisplayName string `json:"displayName,omitempty"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

type LeaveLobby struct{}

type FindOpponent struct {
	EloRange int  `json:"eloRange,omitempty"`
	Strict   bool `json:"strict,omitempty"`
}

type Challenge struct {
	TargetID string `json:"targetId"`
}

type AcceptChallenge struct {
	ChallengerID string `json:"challengerId"`
}

type RejectChallenge struct {
	ChallengerID string `json:"challengerId"`
}

type SubmitSolution struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
}

type RequestNextRound struct {
	SessionID string `json:"sessionId"`
}

type Forfeit struct {
	SessionID string `json:"sessionId"`
}

func (JoinLobby) Kind() Kind        { return KindJoinLobby }
func (LeaveLobby) Kind() Kind       { return KindLeaveLobby }
func (FindOpponent) Kind() Kind     { return KindFindOpponent }
func (Challenge) Kind() Kind        { return KindChallenge }
func (AcceptChallenge) Kind() Kind  { return KindAcceptChallenge }
func (RejectChallenge) Kind() Kind  { return KindRejectChallenge }
func (SubmitSolution) Kind() Kind   { return KindSubmitSolution }
func (RequestNextRound) Kind() Kind { return KindRequestNextRound }
func (Forfeit) Kind() Kind          { return KindForfeit }

func (JoinLobby) isInbound()        {}
func (LeaveLobby) isInbound()       {}
func (FindOpponent) isInbound()     {}
func (Challenge) isInbound()        {}
func (AcceptChallenge) isInbound()  {}
func (RejectChallenge) isInbound()  {}
func (SubmitSolution) isInbound()   {}
func (RequestNextRound) isInbound() {}
func (Forfeit) isInbound()          {}

// PlayerInfo is the public view of a lobby member.
type PlayerInfo struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
	Rating      int    `json:"rating"`
}

// Outbound events

type LobbyUpdate struct {
	Players []PlayerInfo `json:"players"`
}

type NoOpponentFound struct {
	Message string `json:"message"`
}

type ChallengeReceived struct {
	Challenger PlayerInfo `json:"challenger"`
}

type ChallengeSent struct {
	Target PlayerInfo `json:"target"`
}

type ChallengeRejected struct {
	Rejecter PlayerInfo `json:"rejecter"`
	Message  string     `json:"message"`
}

type GameStarted struct {
	SessionID       string     `json:"sessionId"`
	Opponent        PlayerInfo `json:"opponent"`
	TotalRounds     int        `json:"totalRounds"`
	CurrentRound    int        `json:"currentRound"`
	CurrentPuzzleID int        `json:"currentPuzzleId"`
	PerRoundSeconds int        `json:"perRoundSeconds"`
}

type SolutionSubmitted struct {
	SessionID string `json:"sessionId"`
	Round     int    `json:"round"`
	Score     int    `json:"score"`
	Message   string `json:"message,omitempty"`
}

type RoundComplete struct {
	SessionID     string `json:"sessionId"`
	CurrentRound  int    `json:"currentRound"`
	YourTotal     int    `json:"yourTotal"`
	OpponentTotal int    `json:"opponentTotal"`
	NextPuzzleID  int    `json:"nextPuzzleId"`
}

type GameOver struct {
	SessionID     string        `json:"sessionId"`
	YourTotal     int           `json:"yourTotal"`
	OpponentTotal int           `json:"opponentTotal"`
	Result        rating.Result `json:"result"`
	RatingDelta   int           `json:"ratingDelta"`
	Forfeit       bool          `json:"forfeit,omitempty"`
}

type Error struct {
	Message string `json:"message"`
}

func (LobbyUpdate) Kind() Kind       { return KindLobbyUpdate }
func (NoOpponentFound) Kind() Kind   { return KindNoOpponentFound }
func (ChallengeReceived) Kind() Kind { return KindChallengeReceived }
func (ChallengeSent) Kind() Kind     { return KindChallengeSent }
func (ChallengeRejected) Kind() Kind { return KindChallengeRejected }
func (GameStarted) Kind() Kind       { return KindGameStarted }
func (SolutionSubmitted) Kind() Kind { return KindSolutionSubmitted }
func (RoundComplete) Kind() Kind     { return KindRoundComplete }
func (GameOver) Kind() Kind          { return KindGameOver }
func (Error) Kind() Kind             { return KindError }

func (LobbyUpdate) isOutbound()       {}
func (NoOpponentFound) isOutbound()   {}
func (ChallengeReceived) isOutbound() {}
func (ChallengeSent) isOutbound()     {}
func (ChallengeRejected) isOutbound() {}
func (GameStarted) isOutbound()       {}
func (SolutionSubmitted) isOutbound() {}
func (RoundComplete) isOutbound()     {}
func (GameOver) isOutbound()          {}
func (Error) isOutbound()             {}
