package core

import "errors"

var (
	// ErrInvalidReorder means a reorder's id list was not a permutation of
	// the current layer order. The store is left unchanged.
	ErrInvalidReorder = errors.New("reorder is not a permutation of current element ids")

	// ErrDesignNotFound is returned by stores when no design has the
	// requested id.
	ErrDesignNotFound = errors.New("design not found")

	// ErrTransportClosed is returned when sending on a transport that has
	// been closed.
	ErrTransportClosed = errors.New("transport closed")

	// ErrSessionClosed is returned by session operations after Close.
	ErrSessionClosed = errors.New("editor session closed")

	// ErrNotJoined is returned when broadcasting before any design has been
	// joined on the channel.
	ErrNotJoined = errors.New("no design joined")
)
