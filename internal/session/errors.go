package session

import "errors"

var (
	// ErrConnectionFailed reports a transport that could not be opened.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrAuthRejected reports credentials refused by the server.
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrAuthTimeout reports a login that got no reply in time.
	ErrAuthTimeout = errors.New("authentication timed out")
	// ErrRetriesExhausted fails pending requests once reconnecting gives up.
	ErrRetriesExhausted = errors.New("reconnect retries exhausted")
	// ErrNotConnected is returned by requests made outside the ready state.
	ErrNotConnected = errors.New("not connected")
	// ErrRequestTimeout reports a request whose reply never arrived.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrSendFailed reports a command the transport could not write.
	ErrSendFailed = errors.New("send failed")
	// ErrAlreadyConnected is returned by Login on an active session.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrCancelled reports work abandoned by Disconnect.
	ErrCancelled = errors.New("cancelled")
)
