package protocol

import (
	"encoding/binary"
	"fmt"
)

// Decode parses one transport frame. Unknown kinds decode to a Message with
// KindUnknown rather than failing; every structural defect is an error and
// the frame must be dropped.
func Decode(b []byte) (Message, error) {
	if len(b) < HeaderLen {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(b))
	}

	m := Message{
		Kind:    Kind(b[0]),
		RoundID: binary.BigEndian.Uint32(b[1:5]),
	}
	body := b[HeaderLen:]

	switch m.Kind {
	case KindPrompt:
		if len(body) < 1 {
			return Message{}, fmt.Errorf("%w: missing ballot length", ErrTruncated)
		}
		ballotLen := int(body[0])
		if len(body)-1 < ballotLen {
			return Message{}, fmt.Errorf("%w: ballot wants %d bytes, have %d", ErrTruncated, ballotLen, len(body)-1)
		}
		if len(body)-1 > ballotLen {
			return Message{}, fmt.Errorf("%w: %d trailing bytes", ErrInvalidLength, len(body)-1-ballotLen)
		}
		m.Ballot = make([]byte, ballotLen)
		copy(m.Ballot, body[1:])
	case KindVote:
		if len(body) < voteBodyLen {
			return Message{}, fmt.Errorf("%w: vote body %d bytes", ErrTruncated, len(body))
		}
		if len(body) > voteBodyLen {
			return Message{}, fmt.Errorf("%w: %d trailing bytes", ErrInvalidLength, len(body)-voteBodyLen)
		}
		m.Sequence = binary.BigEndian.Uint32(body[0:4])
		m.Choice = body[4]
	case KindAck:
		if len(body) < ackBodyLen {
			return Message{}, fmt.Errorf("%w: ack body %d bytes", ErrTruncated, len(body))
		}
		if len(body) > ackBodyLen {
			return Message{}, fmt.Errorf("%w: %d trailing bytes", ErrInvalidLength, len(body)-ackBodyLen)
		}
		m.Sequence = binary.BigEndian.Uint32(body[0:4])
	case KindClose:
		if len(body) != 0 {
			return Message{}, fmt.Errorf("%w: %d trailing bytes", ErrInvalidLength, len(body))
		}
	default:
		// Body is ignored for forward compatibility.
		m.Kind = KindUnknown
	}
	return m, nil
}
