// Package protocol defines the fixed-layout wire messages exchanged between
// the coordinator and vote controllers, and the codec that packs them into
// transport frames.
package protocol

// Kind identifies one wire message layout.
type Kind uint8

const (
	// KindUnknown is the decode result for message kinds this build does
	// not understand. Unknown frames are dropped by the caller, never a
	// decode error, so newer controllers cannot crash an older coordinator.
	KindUnknown Kind = 0x00

	KindPrompt Kind = 0x01
	KindVote   Kind = 0x02
	KindAck    Kind = 0x03
	KindClose  Kind = 0x04
)

func (k Kind) String() string {
	switch k {
	case KindPrompt:
		return "prompt"
	case KindVote:
		return "vote"
	case KindAck:
		return "ack"
	case KindClose:
		return "close"
	default:
		return "unknown"
	}
}

const (
	// HeaderLen is kind (1 byte) plus round id (4 bytes, big-endian).
	HeaderLen = 5

	voteBodyLen = 5
	ackBodyLen  = 4

	// MaxBallotLen is bounded by the 1-byte length prefix on Prompt bodies.
	MaxBallotLen = 255
)

// Message is one decoded protocol message. Field use depends on Kind:
// Sequence is set for Vote and Ack, Choice for Vote, Ballot for Prompt.
type Message struct {
	Kind     Kind
	RoundID  uint32
	Sequence uint32
	Choice   uint8
	Ballot   []byte
}

// Prompt builds a ballot-prompt message for one round.
func Prompt(roundID uint32, ballot []byte) Message {
	return Message{Kind: KindPrompt, RoundID: roundID, Ballot: ballot}
}

// Vote builds a vote message carrying one choice under a per-controller
// sequence number.
func Vote(roundID, sequence uint32, choice uint8) Message {
	return Message{Kind: KindVote, RoundID: roundID, Sequence: sequence, Choice: choice}
}

// Ack builds the coordinator's receipt for an accepted vote.
func Ack(roundID, sequence uint32) Message {
	return Message{Kind: KindAck, RoundID: roundID, Sequence: sequence}
}

// Close builds the end-of-round broadcast message.
func Close(roundID uint32) Message {
	return Message{Kind: KindClose, RoundID: roundID}
}
