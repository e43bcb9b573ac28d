package reddit

import "testing"

func TestParsePostIdentifier_BareID(t *testing.T) {
	id, err := ParsePostIdentifier("abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "abc123" {
		t.Errorf("expected abc123, got %s", id)
	}
}

func TestParsePostIdentifier_PermalinkURL(t *testing.T) {
	url := "https://www.reddit.com/r/golf/comments/abc123/my_great_round/"
	id, err := ParsePostIdentifier(url)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "abc123" {
		t.Errorf("expected abc123, got %s", id)
	}
}

func TestParsePostIdentifier_RejectsEmpty(t *testing.T) {
	if _, err := ParsePostIdentifier("   "); err == nil {
		t.Fatal("expected error for empty identifier")
	}
}

func TestParsePostIdentifier_RejectsUnrecognizedURL(t *testing.T) {
	if _, err := ParsePostIdentifier("https://example.com/nothing-here"); err == nil {
		t.Fatal("expected error for a url with no post id")
	}
}
