package domain

import "testing"

func TestFormatTime(t *testing.T) {
	cases := []struct {
		secs int
		want string
	}{
		{0, "00:00:00"},
		{59, "00:00:59"},
		{90, "00:01:30"},
		{3661, "01:01:01"},
		{36000, "10:00:00"},
	}
	for _, c := range cases {
		if got := FormatTime(c.secs); got != c.want {
			t.Errorf("FormatTime(%d) = %q, want %q", c.secs, got, c.want)
		}
	}
}

func TestChunk_DocumentName(t *testing.T) {
	ch := Chunk{LectureID: "calc1-week2", Start: 30, End: 60}
	if got, want := ch.DocumentName(), "calc1-week2_00-00-30_to_00-01-00.txt"; got != want {
		t.Errorf("DocumentName() = %q, want %q", got, want)
	}
}

func TestChunk_TimeRange(t *testing.T) {
	ch := Chunk{Start: 30, End: 60}
	if got, want := ch.TimeRange(), "00:00:30 - 00:01:00"; got != want {
		t.Errorf("TimeRange() = %q, want %q", got, want)
	}
}

func TestAnswer_IsGrounded(t *testing.T) {
	if (Answer{Text: "a"}).IsGrounded() {
		t.Error("answer without refs should not be grounded")
	}
	if !(Answer{Text: "a", Grounding: []GroundingRef{{Title: "t"}}}).IsGrounded() {
		t.Error("answer with refs should be grounded")
	}
}
