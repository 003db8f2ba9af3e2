package schedule

import (
	"strconv"
	"strings"
	"unicode/utf16"

	"kmdcal/internal/model"
)

// FingerprintKey is the private extended property that carries the
// fingerprint on remote events.
const FingerprintKey = "elearning_fp"

// Fingerprint hashes title|start|end|location with djb2 over UTF-16 code
// units, truncated to 32 bits and rendered as unpadded lowercase hex. An
// empty end falls back to start. Remote events are only ever found again
// through this value, so it must never change for the same input.
func Fingerprint(title, start, end, location string) string {
	if end == "" {
		end = start
	}
	canonical := strings.Join([]string{title, start, end, location}, "|")
	return strconv.FormatUint(uint64(djb2(canonical)), 16)
}

// FingerprintEvent computes the fingerprint of ev's canonical tuple.
func FingerprintEvent(ev model.ResolvedEvent) string {
	return Fingerprint(ev.Title, ev.Start.String(), ev.End.String(), ev.Location)
}

func djb2(s string) uint32 {
	h := uint32(5381)
	for _, u := range utf16.Encode([]rune(s)) {
		h = h*33 + uint32(u)
	}
	return h
}
