package store

import "io"

//A Cache is a key/value store for serialized cache entries.
// A cache may delete an entry at any point, for example because of a
// capacity driven replacement policy. Callers must treat every lookup as
// potentially missing.
//
// Implementations are not required to be safe for concurrent use, the
// documentation of each implementation states which guarantees it makes.
type Cache interface {

	//Get returns the stored bytes for the given key.
	// The boolean is false if no entry exists for the key.
	// An error is only returned for storage failures, a missing key is not an error.
	Get(key string) ([]byte, bool, error)

	//Set stores the given bytes under the key, replacing any existing entry.
	Set(key string, value []byte) error

	//Delete removes the entry with the given key.
	// Deleting a key which doesn't exist is a no-op, not an error.
	Delete(key string) error
}

//A SeparateBodyCache stores response bodies separately from entry metadata.
// Get and Set address the metadata only, GetBody and SetBody address the
// body under the same key. Delete removes both.
//
// Storing the body separately keeps large bodies out of memory on reads
// since GetBody returns a stream instead of a buffer.
type SeparateBodyCache interface {
	Cache

	//GetBody returns a reader for the stored body of the given key.
	// The boolean is false if no body is stored for the key.
	// The caller is responsible for closing the returned reader.
	GetBody(key string) (io.ReadCloser, bool, error)

	//SetBody stores the body bytes under the key, replacing any existing body.
	SetBody(key string, body []byte) error
}
