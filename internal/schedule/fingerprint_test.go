package schedule

import (
	"testing"

	"kmdcal/internal/model"
)

func TestFingerprintKnownValues(t *testing.T) {
	tests := []struct {
		title, start, end, location string
		want                        string
	}{
		{"Systems 101 - Lecture 1", "2025-04-07T09:00:00", "2025-04-07T10:30:00", "", "8192c7ce"},
		{"システム論 - 第1回", "2025-04-07T09:00:00", "2025-04-07T10:30:00", "協生館 C3S01", "ea8e34eb"},
		// No zero padding on short hashes.
		{"", "", "", "", "b88d2d9"},
		// Characters outside the BMP hash as surrogate pairs.
		{"😀", "", "", "", "cab9ecd6"},
	}
	for _, tt := range tests {
		if got := Fingerprint(tt.title, tt.start, tt.end, tt.location); got != tt.want {
			t.Errorf("Fingerprint(%q, %q, %q, %q) = %s, want %s", tt.title, tt.start, tt.end, tt.location, got, tt.want)
		}
	}
}

func TestFingerprintEndFallsBackToStart(t *testing.T) {
	if got, want := Fingerprint("a", "s", "", ""), Fingerprint("a", "s", "s", ""); got != want {
		t.Fatalf("missing end should hash like end=start: %s != %s", got, want)
	}
	if got := Fingerprint("a", "s", "", ""); got != "f32876a0" {
		t.Fatalf("unexpected fingerprint %s", got)
	}
}

func TestFingerprintDeterministicAndSensitive(t *testing.T) {
	start, _ := model.ParseLocalDateTime("2025-04-07T09:00:00")
	end, _ := model.ParseLocalDateTime("2025-04-07T10:30:00")
	base := model.ResolvedEvent{Title: "Systems 101 - Lecture 1", Start: start, End: end, Location: "Room 3"}

	fp := FingerprintEvent(base)
	if again := FingerprintEvent(base); again != fp {
		t.Fatalf("fingerprint not deterministic: %s vs %s", fp, again)
	}

	later, _ := model.ParseLocalDateTime("2025-04-07T10:45:00")
	variants := map[string]model.ResolvedEvent{
		"title":    {Title: "Systems 101 - Lecture 2", Start: start, End: end, Location: "Room 3"},
		"start":    {Title: base.Title, Start: later, End: later, Location: "Room 3"},
		"end":      {Title: base.Title, Start: start, End: later, Location: "Room 3"},
		"location": {Title: base.Title, Start: start, End: end, Location: "Room 4"},
	}
	for field, v := range variants {
		if FingerprintEvent(v) == fp {
			t.Errorf("changing %s did not change the fingerprint", field)
		}
	}

	// Description is not part of the identity.
	withDesc := base
	withDesc.Description = "bring a laptop"
	if FingerprintEvent(withDesc) != fp {
		t.Error("description must not affect the fingerprint")
	}
}
