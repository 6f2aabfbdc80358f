// Package config resolves the aish directories and loads the pieces of
// configuration shared by the supervisor and the agent: command allow rules,
// provider profiles path, the prompt-ready marker, and the .env file for
// API keys.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/nextlevelbuilder/aish/internal/errs"
	"github.com/nextlevelbuilder/aish/internal/tools"
)

// Dirs are the resolved aish directories.
type Dirs struct {
	Home  string // $AISH_HOME, else $XDG_CONFIG_HOME/aish, else ~/.config/aish
	State string // $XDG_STATE_HOME/aish, else ~/.local/state/aish
}

// ResolveDirs applies the environment fallback chain. The home directory is
// not required to exist here; callers that need it validated go through
// session.OpenHome.
func ResolveDirs() (Dirs, error) {
	var d Dirs
	if home := os.Getenv("AISH_HOME"); home != "" {
		d.Home = home
	} else if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		d.Home = filepath.Join(xdg, "aish")
	} else if userHome := os.Getenv("HOME"); userHome != "" {
		d.Home = filepath.Join(userHome, ".config", "aish")
	} else {
		return Dirs{}, errs.New(errs.KindEnv, "cannot resolve aish home: none of AISH_HOME, XDG_CONFIG_HOME, HOME is set")
	}

	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		d.State = filepath.Join(xdg, "aish")
	} else if userHome := os.Getenv("HOME"); userHome != "" {
		d.State = filepath.Join(userHome, ".local", "state", "aish")
	} else {
		d.State = filepath.Join(d.Home, "state")
	}
	return d, nil
}

// ProfilesPath is where provider profiles live under the home dir.
func (d Dirs) ProfilesPath() string {
	return filepath.Join(d.Home, "config", "profiles.json")
}

// CommandRulesPath is the global allowlist file.
func (d Dirs) CommandRulesPath() string {
	return filepath.Join(d.Home, "config", "command_rules")
}

// LeakscanRulesPath is the scanner rule file.
func (d Dirs) LeakscanRulesPath() string {
	return filepath.Join(d.Home, "config", "leakscan_rules")
}

// MemoryDir is the global memory store location.
func (d Dirs) MemoryDir() string {
	return filepath.Join(d.Home, "memory")
}

// LoadDotenv loads <home>/config/.env into the process environment so
// profile api_key_env names resolve. Missing files are fine; existing
// variables are never overridden.
func (d Dirs) LoadDotenv() {
	path := filepath.Join(d.Home, "config", ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("failed to load .env", "path", path, "error", err)
	}
}

// PromptMarker resolves the prompt-ready marker: explicit flag value, then
// AISH_PROMPT_MARKER, then <home>/config/prompt_marker, then the "$ "
// suffix heuristic.
func PromptMarker(flagValue string, d Dirs) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("AISH_PROMPT_MARKER"); env != "" {
		return env
	}
	if data, err := os.ReadFile(filepath.Join(d.Home, "config", "prompt_marker")); err == nil {
		if marker := string(data); marker != "" {
			// The marker file is used verbatim minus one trailing newline.
			if marker[len(marker)-1] == '\n' {
				marker = marker[:len(marker)-1]
			}
			if marker != "" {
				return marker
			}
		}
	}
	return "$ "
}

// LoadCommandRules reads the global command_rules file plus the nearest
// project-level .aish/command_rules discovered by walking up from cwd.
// Project rules append after global ones; deny rules short-circuit either
// way, so order between the two files does not weaken denials.
func LoadCommandRules(d Dirs) ([]tools.Rule, error) {
	var rules []tools.Rule
	if data, err := os.ReadFile(d.CommandRulesPath()); err == nil {
		parsed, err := tools.ParseRules(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.CommandRulesPath(), err)
		}
		rules = append(rules, parsed...)
	}
	if projectPath := findProjectFile("command_rules"); projectPath != "" {
		data, err := os.ReadFile(projectPath)
		if err == nil {
			parsed, err := tools.ParseRules(string(data))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", projectPath, err)
			}
			rules = append(rules, parsed...)
		}
	}
	return rules, nil
}

// ProjectMemoryDir finds the nearest .aish/memory above cwd, or "".
func ProjectMemoryDir() string {
	if dir := findProjectDir("memory"); dir != "" {
		return dir
	}
	return ""
}

// findProjectFile walks up from cwd looking for .aish/<name> as a file.
func findProjectFile(name string) string {
	cur, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(cur, ".aish", name)
		if st, err := os.Stat(candidate); err == nil && st.Mode().IsRegular() {
			return candidate
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return ""
		}
		cur = parent
	}
}

// findProjectDir walks up from cwd looking for .aish/<name> as a directory.
func findProjectDir(name string) string {
	cur, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(cur, ".aish", name)
		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			return candidate
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return ""
		}
		cur = parent
	}
}
