package asn1stream

import (
	"errors"

	"github.com/ansel1/merry"
	"github.com/gemalto/asn1stream/tlv"
)

func Is(err error, originals ...error) bool {
	return merry.Is(err, originals...)
}

func Details(err error) string {
	return merry.Details(err)
}

// ErrWaitCancelled is returned by ReadEventTimeout when its context is cancelled
// before an event arrives.  A timeout is not an error: ReadEventTimeout returns
// no event and no error.
var ErrWaitCancelled = errors.New("wait cancelled")

// ErrClosed is returned when reading from a closed Reader, or writing to a closed
// PushSource or QueueStream.
var ErrClosed = errors.New("closed")

// ErrCallbackMode is returned by the polling methods of a Reader which delivers
// events to an OnEvent callback.
var ErrCallbackMode = errors.New("not supported in callback mode")

// ErrAlreadyAttached is returned when a second Reader is created on a PushSource.
var ErrAlreadyAttached = errors.New("push source already has a reader")

// ErrPushOnly is returned by PushSource.Read.  A PushSource is written to, never read.
var ErrPushOnly = errors.New("push source cannot be read")

// Errors of the tlv package, for convenience.
var (
	ErrMalformedLength = tlv.ErrMalformedLength
	ErrUnexpectedEOD   = tlv.ErrUnexpectedEOD
	ErrDecodeFailure   = tlv.ErrDecodeFailure
)
