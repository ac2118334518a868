/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Fri Jan  5 11:14:11 2018 mstenber
 * Last modified: Mon Mar 11 10:02:31 2019 mstenber
 * Edit time:     19 min
 *
 */

// storage package provides the persistence of log files and small
// named values (e.g. metadata) behind a single Backend
// interface. Concrete implementations live in the subpackages;
// factory subpackage maps names to them.
package storage

import (
	"github.com/fingon/go-logtrie/codec"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("storage: not found")

type BackendConfiguration struct {
	// Directory is where the backend should keep its data (if it
	// keeps it on disk at all).
	Directory string

	// Codec, if set, is applied to everything on its way to and
	// from the backend.
	Codec codec.Codec
}

// Backend is the shadow behind the throne; it actually handles the
// low-level storage of files and names. It provides an API that
// returns results that are consistent with the previous calls. How
// it does this in practise is left as an exercise to the
// implementor.
//
// Files are identified by their number; their content is opaque to
// the backend and always written as a whole.
type Backend interface {
	// Init makes the backend usable.
	Init(config BackendConfiguration) error

	// Close the backend
	Close() error

	// Getters

	// GetFile returns content of the file n, or ErrNotFound.
	GetFile(n uint64) ([]byte, error)

	// ListFiles returns the file numbers in increasing order.
	ListFiles() ([]uint64, error)

	// GetName returns the value stored for name, or nil if there
	// is none.
	GetName(name string) ([]byte, error)

	// GetBytesAvailable returns number of bytes available.
	GetBytesAvailable() uint64

	// GetBytesUsed returns number of bytes used.
	GetBytesUsed() uint64

	// Setters

	// SetFile (over)writes the file n.
	SetFile(n uint64, data []byte) error

	// DeleteFile removes the file n; it MUST exist.
	DeleteFile(n uint64) error

	// SetName sets the value for name; nil value removes it.
	SetName(name string, value []byte) error
}
