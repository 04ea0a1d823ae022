package pipeline

import "sync"

type artifactKind int

const (
	kindIntermediate artifactKind = iota // trimmed, music, mixed
	kindSegment                          // pre-thumbnail cut
	kindThumbnail
	kindFinal
	kindNamedMusic // music written under an explicit name, never removed
)

// tracker records every file a run may have written, in creation order.
// Segment workers add to it concurrently.
type tracker struct {
	mu    sync.Mutex
	kinds map[artifactKind][]string
}

func newTracker() *tracker {
	return &tracker{kinds: make(map[artifactKind][]string)}
}

func (t *tracker) add(kind artifactKind, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kinds[kind] = append(t.kinds[kind], path)
}

func (t *tracker) paths(kinds ...artifactKind) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	for _, k := range kinds {
		out = append(out, t.kinds[k]...)
	}
	return out
}
