package rag

import "errors"

var (
	// ErrEmptyStore is returned by Query when no document has been indexed.
	ErrEmptyStore = errors.New("no documents indexed yet, upload a document first")

	// ErrStorage marks failures reading or writing the persisted index.
	ErrStorage = errors.New("index storage failure")

	// ErrProvider marks failures of the embedding or chat model provider.
	ErrProvider = errors.New("model provider failure")
)
