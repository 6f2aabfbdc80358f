package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveDirsPrecedence(t *testing.T) {
	t.Setenv("AISH_HOME", "/custom/aish")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")
	t.Setenv("HOME", "/home/u")

	d, err := ResolveDirs()
	if err != nil {
		t.Fatal(err)
	}
	if d.Home != "/custom/aish" {
		t.Errorf("home = %q", d.Home)
	}
	if d.State != filepath.Join("/xdg/state", "aish") {
		t.Errorf("state = %q", d.State)
	}

	t.Setenv("AISH_HOME", "")
	d, err = ResolveDirs()
	if err != nil {
		t.Fatal(err)
	}
	if d.Home != filepath.Join("/xdg/config", "aish") {
		t.Errorf("xdg home = %q", d.Home)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	d, err = ResolveDirs()
	if err != nil {
		t.Fatal(err)
	}
	if d.Home != filepath.Join("/home/u", ".config", "aish") {
		t.Errorf("fallback home = %q", d.Home)
	}
	if d.State != filepath.Join("/home/u", ".local", "state", "aish") {
		t.Errorf("fallback state = %q", d.State)
	}
}

func TestResolveDirsNoEnv(t *testing.T) {
	t.Setenv("AISH_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "")
	if _, err := ResolveDirs(); err == nil {
		t.Error("expected error with no environment")
	}
}

func TestPromptMarkerPrecedence(t *testing.T) {
	home := t.TempDir()
	d := Dirs{Home: home}
	t.Setenv("AISH_PROMPT_MARKER", "")

	if got := PromptMarker("FLAG>", d); got != "FLAG>" {
		t.Errorf("flag: %q", got)
	}
	t.Setenv("AISH_PROMPT_MARKER", "ENV>")
	if got := PromptMarker("", d); got != "ENV>" {
		t.Errorf("env: %q", got)
	}
	t.Setenv("AISH_PROMPT_MARKER", "")
	os.MkdirAll(filepath.Join(home, "config"), 0o755)
	os.WriteFile(filepath.Join(home, "config", "prompt_marker"), []byte("FILE> \n"), 0o644)
	if got := PromptMarker("", d); got != "FILE> " {
		t.Errorf("file: %q", got)
	}
	os.Remove(filepath.Join(home, "config", "prompt_marker"))
	if got := PromptMarker("", d); got != "$ " {
		t.Errorf("default: %q", got)
	}
}

func TestLoadCommandRulesGlobalPlusProject(t *testing.T) {
	home := t.TempDir()
	os.MkdirAll(filepath.Join(home, "config"), 0o755)
	os.WriteFile(filepath.Join(home, "config", "command_rules"), []byte("ls\n"), 0o644)

	project := t.TempDir()
	os.MkdirAll(filepath.Join(project, ".aish"), 0o755)
	os.WriteFile(filepath.Join(project, ".aish", "command_rules"), []byte("git status\n!git push\n"), 0o644)

	cwd, _ := os.Getwd()
	defer os.Chdir(cwd)
	sub := filepath.Join(project, "deep", "inside")
	os.MkdirAll(sub, 0o755)
	if err := os.Chdir(sub); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadCommandRules(Dirs{Home: home})
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 3 {
		t.Fatalf("rules = %+v", rules)
	}
	if rules[0].Prefix != "ls" {
		t.Errorf("global rule first: %+v", rules[0])
	}
	if !rules[2].Negate || rules[2].Prefix != "git push" {
		t.Errorf("project deny rule: %+v", rules[2])
	}
}

func TestLoadDotenv(t *testing.T) {
	home := t.TempDir()
	os.MkdirAll(filepath.Join(home, "config"), 0o755)
	os.WriteFile(filepath.Join(home, "config", ".env"), []byte("AISH_TEST_ENV_KEY=from_dotenv\n"), 0o644)
	t.Setenv("AISH_TEST_ENV_KEY", "")
	os.Unsetenv("AISH_TEST_ENV_KEY")

	Dirs{Home: home}.LoadDotenv()
	if got := os.Getenv("AISH_TEST_ENV_KEY"); got != "from_dotenv" {
		t.Errorf("env = %q", got)
	}
}
