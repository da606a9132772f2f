package render

import (
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/zeebo/blake3"
)

// Fingerprint digests everything that determines what would be deployed for
// an application: the rendered fragment contents, the resolved environment,
// the resolved replacement mapping, and the enabled flag. Replacements are
// folded in on their own, not just through the rendered content, so changing
// a replacement value restarts the app even when no fragment references it.
// The application name salts the digest so two apps that happen to render
// identically never read as "unchanged" across names.
//
// Mapping entries are folded in sorted key order, so insertion order never
// affects the result. Every field is length-prefixed to keep the encoding
// unambiguous.
func Fingerprint(name string, artifact *Artifact, enabled bool) string {
	h := blake3.New()

	writeField(h, []byte(name))

	writeLen(h, len(artifact.Files))
	for _, f := range artifact.Files {
		writeField(h, []byte(f.Source))
		writeField(h, []byte(f.Content))
	}

	writeMap(h, artifact.Environment)
	writeMap(h, artifact.Replacements)

	if enabled {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeMap(h *blake3.Hasher, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeLen(h, len(keys))
	for _, k := range keys {
		writeField(h, []byte(k))
		writeField(h, []byte(m[k]))
	}
}

func writeField(h *blake3.Hasher, b []byte) {
	writeLen(h, len(b))
	h.Write(b)
}

func writeLen(h *blake3.Hasher, n int) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	h.Write(buf[:])
}
