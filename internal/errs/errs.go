// Package errs holds the sentinel errors shared by the ingestion and query
// paths. Callers wrap them with fmt.Errorf("...: %w") and test with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrExtraction means the uploaded bytes are not a readable PDF.
	ErrExtraction = errors.New("pdf extraction failed")

	// ErrGeneration is any failure of a text-generation call.
	ErrGeneration = errors.New("generation failed")

	// ErrParse means the model answered but the facts payload was unusable.
	// It is a generation failure for retry purposes.
	ErrParse = fmt.Errorf("%w: unparseable facts payload", ErrGeneration)

	// ErrEmbedding is any failure of an embedding call or its response.
	ErrEmbedding = errors.New("embedding failed")

	// ErrDimensionMismatch means the embedding length differs from the
	// configured dimension.
	ErrDimensionMismatch = fmt.Errorf("%w: dimension mismatch", ErrEmbedding)

	// ErrEmptyInput rejects blank text before it reaches the embedding service.
	ErrEmptyInput = errors.New("empty input")

	// ErrDuplicateName means a document with the same name already exists.
	ErrDuplicateName = errors.New("document name already exists")

	// ErrRetrieval is a store failure during nearest-neighbour search.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrNoResponse means every response-generation attempt failed.
	ErrNoResponse = errors.New("no response generated")

	ErrInvalidChunkLength  = errors.New("chunk length must be positive")
	ErrInvalidDocumentName = errors.New("document name must not be empty")
)
