package store

import "testing"

func TestValidateID(t *testing.T) {
	cases := []struct {
		id      string
		wantErr bool
	}{
		{"abc123", false},
		{"my-note_1", false},
		{"", true},
		{"has space", true},
		{"has/slash", true},
	}
	for _, c := range cases {
		err := ValidateID(c.id)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateID(%q) error = %v, wantErr %v", c.id, err, c.wantErr)
		}
	}
}

func TestValidateTitle(t *testing.T) {
	if err := ValidateTitle(""); err == nil {
		t.Error("expected error for empty title")
	}
	if err := ValidateTitle("My Note"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateMarkdownBoundary(t *testing.T) {
	max := 16
	ok := make([]byte, max)
	for i := range ok {
		ok[i] = 'a'
	}
	if err := ValidateMarkdown(string(ok), max); err != nil {
		t.Errorf("markdown at max size should be accepted: %v", err)
	}

	tooBig := make([]byte, max+1)
	for i := range tooBig {
		tooBig[i] = 'a'
	}
	if err := ValidateMarkdown(string(tooBig), max); err == nil {
		t.Error("expected payload-too-large error for markdown over max")
	}
}
