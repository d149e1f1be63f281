package extractor

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/ternarybob/stayreel/internal/interfaces"
)

// Sources is the per-job fetch cache. Each clip is fetched and probed at most once,
// even when several slots reuse it concurrently.
type Sources struct {
	store      interfaces.ObjectStore
	transcoder interfaces.Transcoder
	dir        string

	mu      sync.Mutex
	entries map[string]*sourceEntry
}

type sourceEntry struct {
	once sync.Once
	path string
	info *interfaces.MediaInfo
	err  error
}

// NewSources creates a cache that fetches into dir
func NewSources(store interfaces.ObjectStore, transcoder interfaces.Transcoder, dir string) *Sources {
	return &Sources{
		store:      store,
		transcoder: transcoder,
		dir:        dir,
		entries:    make(map[string]*sourceEntry),
	}
}

// Get returns the local path and probe of a clip, fetching it on first use.
// A failed fetch is cached too: every slot using that clip fails the same way.
func (s *Sources) Get(ctx context.Context, clipID, sourceRef string) (string, *interfaces.MediaInfo, error) {
	s.mu.Lock()
	entry, ok := s.entries[clipID]
	if !ok {
		entry = &sourceEntry{}
		s.entries[clipID] = entry
	}
	s.mu.Unlock()

	entry.once.Do(func() {
		entry.path, entry.err = s.store.Fetch(ctx, sourceRef, filepath.Join(s.dir, safeName(clipID)))
		if entry.err != nil {
			return
		}
		entry.info, entry.err = s.transcoder.Probe(ctx, entry.path)
	})
	return entry.path, entry.info, entry.err
}

// Len reports how many distinct clips were requested
func (s *Sources) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// safeName maps a clip id onto a single path element
func safeName(id string) string {
	out := []rune(id)
	for i, r := range out {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			out[i] = '_'
		}
	}
	name := string(out)
	if name == "" || name == "." || name == ".." {
		return "clip"
	}
	return name
}
