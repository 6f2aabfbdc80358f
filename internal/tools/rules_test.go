package tools

import (
	"regexp"
	"testing"
)

func TestParseRules(t *testing.T) {
	content := `
# allow basic listing
ls
/^echo .*/
!/sed .*-i /
sed
! rm

`
	rules, err := ParseRules(content)
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if len(rules) != 5 {
		t.Fatalf("got %d rules, want 5", len(rules))
	}
	if rules[0].Prefix != "ls" || rules[0].Negate {
		t.Errorf("rule 0 = %+v", rules[0])
	}
	if rules[1].Regex == nil || rules[1].Negate {
		t.Errorf("rule 1 = %+v", rules[1])
	}
	if rules[2].Regex == nil || !rules[2].Negate {
		t.Errorf("rule 2 = %+v", rules[2])
	}
	if rules[4].Prefix != "rm" || !rules[4].Negate {
		t.Errorf("rule 4 = %+v", rules[4])
	}
}

func TestParseRulesBadRegex(t *testing.T) {
	if _, err := ParseRules("/[unclosed/"); err == nil {
		t.Error("invalid regex accepted")
	}
}

func mustRegex(t *testing.T, s string) *regexp.Regexp {
	t.Helper()
	re, err := regexp.Compile(s)
	if err != nil {
		t.Fatal(err)
	}
	return re
}

func TestIsCommandAllowed(t *testing.T) {
	rules := []Rule{
		{Regex: mustRegex(t, `^echo .*`)},
		{Prefix: "ls"},
		{Prefix: "sed"},
		{Negate: true, Regex: mustRegex(t, `sed .*-i `)},
	}
	tests := []struct {
		command string
		want    bool
	}{
		{"echo hello", true},
		{"ls", true},
		{"ls -la", true},
		{"sed 's/a/b/' file", true},
		{"sed -i 's/a/b/' file", false}, // deny rule wins
		{"rm -rf /", false},
		{"lss", false}, // prefix requires a space boundary
	}
	for _, tt := range tests {
		if got := IsCommandAllowed(tt.command, rules); got != tt.want {
			t.Errorf("IsCommandAllowed(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestIsCommandAllowedEmptyRules(t *testing.T) {
	if IsCommandAllowed("echo hello", nil) {
		t.Error("empty rule set allowed a command")
	}
}

// Adding a matching deny rule flips true to false, never the reverse.
func TestDenyRulesTakePrecedence(t *testing.T) {
	base := []Rule{{Prefix: "git"}}
	if !IsCommandAllowed("git push", base) {
		t.Fatal("precondition: git push allowed")
	}
	withDeny := append([]Rule{{Negate: true, Prefix: "git push"}}, base...)
	if IsCommandAllowed("git push", withDeny) {
		t.Error("deny rule did not override allow")
	}
	// A deny that does not match changes nothing.
	withOtherDeny := append([]Rule{{Negate: true, Prefix: "rm"}}, base...)
	if !IsCommandAllowed("git push", withOtherDeny) {
		t.Error("non-matching deny flipped an allow")
	}
}
