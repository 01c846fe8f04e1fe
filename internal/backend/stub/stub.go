// Package stub provides fast, deterministic fetch/transform/store backends
// for local development and tests, wired in when NODE_ENV=dev and either the
// Gemini or the Cloudinary credentials are missing.
package stub

import (
	"context"
	"fmt"

	"github.com/swifty/pixpro-worker/internal/domain"
)

// Fetcher returns a fixed byte buffer regardless of the requested URL.
type Fetcher struct{}

func NewFetcher() *Fetcher { return &Fetcher{} }

func (f *Fetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	return []byte("stub-original-image-bytes"), nil
}

// Transformer appends a style marker to the input buffer instead of calling
// a real AI backend.
type Transformer struct{}

func NewTransformer() *Transformer { return &Transformer{} }

func (t *Transformer) Transform(_ context.Context, image []byte, style string) ([]byte, error) {
	return append(append([]byte{}, image...), []byte("-transformed-"+style)...), nil
}

// Store keeps uploaded objects in memory, keyed by public id.
type Store struct {
	objects map[string][]byte
}

func NewStore() *Store {
	return &Store{objects: make(map[string][]byte)}
}

func (s *Store) Store(_ context.Context, image []byte, obj domain.StoreObject) (domain.StoreResult, error) {
	s.objects[obj.PublicID] = image
	return domain.StoreResult{
		PublicID:  obj.PublicID,
		SecureURL: fmt.Sprintf("https://stub.local/%s/%s.%s", obj.Folder, obj.PublicID, obj.Format),
	}, nil
}

// Get returns a previously stored object, for test assertions.
func (s *Store) Get(publicID string) ([]byte, bool) {
	b, ok := s.objects[publicID]
	return b, ok
}
