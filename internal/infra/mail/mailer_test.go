package mail

import (
	"strings"
	"testing"
)

func TestVerificationBodyEscapesName(t *testing.T) {
	body := verificationBody(`<script>alert("x")</script> O'Brien`, "482913")

	if strings.Contains(body, "<script>") {
		t.Fatal("applicant name rendered as markup")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Fatalf("expected escaped name in body: %s", body)
	}
	if !strings.Contains(body, "<strong>482913</strong>") {
		t.Fatalf("code missing from body: %s", body)
	}
}
