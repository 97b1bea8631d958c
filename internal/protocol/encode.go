package protocol

import (
	"encoding/binary"
	"fmt"
)

// Encode packs m into a single transport frame of at most maxFrame bytes.
// The layout is fixed per kind so controllers can decode with constant cost.
func Encode(m Message, maxFrame int) ([]byte, error) {
	var bodyLen int
	switch m.Kind {
	case KindPrompt:
		if len(m.Ballot) > MaxBallotLen {
			return nil, fmt.Errorf("%w: %d bytes", ErrBallotTooLarge, len(m.Ballot))
		}
		bodyLen = 1 + len(m.Ballot)
	case KindVote:
		bodyLen = voteBodyLen
	case KindAck:
		bodyLen = ackBodyLen
	case KindClose:
		bodyLen = 0
	default:
		return nil, fmt.Errorf("%w: kind=0x%02x", ErrUnknownKind, uint8(m.Kind))
	}

	total := HeaderLen + bodyLen
	if maxFrame > 0 && total > maxFrame {
		return nil, fmt.Errorf("%w: %d > %d", ErrOversize, total, maxFrame)
	}

	buf := make([]byte, total)
	buf[0] = byte(m.Kind)
	binary.BigEndian.PutUint32(buf[1:5], m.RoundID)

	switch m.Kind {
	case KindPrompt:
		buf[5] = byte(len(m.Ballot))
		copy(buf[6:], m.Ballot)
	case KindVote:
		binary.BigEndian.PutUint32(buf[5:9], m.Sequence)
		buf[9] = m.Choice
	case KindAck:
		binary.BigEndian.PutUint32(buf[5:9], m.Sequence)
	}
	return buf, nil
}
