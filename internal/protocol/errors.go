package protocol

import "errors"

var (
	ErrOversize       = errors.New("protocol: encoded frame exceeds max frame size")
	ErrBallotTooLarge = errors.New("protocol: ballot payload exceeds length prefix")
	ErrUnknownKind    = errors.New("protocol: cannot encode unknown message kind")
	ErrShortFrame     = errors.New("protocol: frame shorter than fixed header")
	ErrTruncated      = errors.New("protocol: truncated message body")
	ErrInvalidLength  = errors.New("protocol: frame length does not match body")
)
