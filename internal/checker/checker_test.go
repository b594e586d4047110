package checker_test

import (
	"testing"

	"github.com/hazz-dev/checkhttp/internal/checker"
	"github.com/hazz-dev/checkhttp/internal/config"
)

func TestNew_InvalidMatcher(t *testing.T) {
	chk := config.Check{
		Name:         "test",
		URL:          "https://example.com",
		BodyMatchers: []config.Matcher{{Regex: "("}},
	}
	_, err := checker.New(chk, nil)
	if err == nil {
		t.Fatal("expected error for invalid regex, got nil")
	}
}

func TestNew_InvalidRedirectPolicy(t *testing.T) {
	chk := config.Check{
		Name:       "test",
		URL:        "https://example.com",
		OnRedirect: "bounce",
	}
	if _, err := checker.New(chk, nil); err == nil {
		t.Fatal("expected error for invalid onredirect, got nil")
	}
}
