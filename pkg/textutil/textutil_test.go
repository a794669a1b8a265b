package textutil

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "lowercase and strip punctuation",
			input: "Hello, World!",
			want:  "hello world",
		},
		{
			name:  "collapse whitespace",
			input: "too   many\t spaces\n here",
			want:  "too many spaces here",
		},
		{
			name:  "punctuation only",
			input: "?!...",
			want:  "",
		},
		{
			name:  "keeps digits",
			input: "Top 10 cats of 2024",
			want:  "top 10 cats of 2024",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{
			name: "identical",
			a:    "funny cat video",
			b:    "funny cat video",
			want: 1.0,
		},
		{
			name: "differs only by punctuation and case",
			a:    "Funny cat video!!!",
			b:    "funny, cat. video",
			want: 1.0,
		},
		{
			name: "disjoint",
			a:    "funny cat video",
			b:    "serious dog article",
			want: 0,
		},
		{
			name: "half overlap dice",
			a:    "funny cat video",
			b:    "funny dog video",
			want: 2.0 * 2 / 6,
		},
		{
			name: "empty input",
			a:    "",
			b:    "anything",
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSimilaritySubsumption(t *testing.T) {
	// Containment scores as the length ratio, always at or above 1.0, so a
	// subsumed string reads as a near-duplicate at any sane threshold.
	got := Similarity("funny cat video", "funny cat video compilation 2024")
	if got < 1.0 {
		t.Fatalf("expected subsumption score >= 1.0, got %v", got)
	}
}
