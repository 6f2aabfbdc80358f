package providers

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/aish/internal/errs"
)

// Profile kinds understood by the factory.
const (
	TypeGemini       = "gemini"
	TypeOpenai       = "openai"
	TypeOpenaiCompat = "openai_compat"
	TypeEcho         = "echo"
)

// Profile configures one named provider in profiles.json.
type Profile struct {
	Type         string  `json:"type"`
	BaseURL      string  `json:"base_url"`
	Model        string  `json:"model"`
	APIKeyEnv    string  `json:"api_key_env"`
	Temperature  float64 `json:"temperature"`
	RateLimitRPM int     `json:"rate_limit_rpm"`
}

// Profiles is the root of profiles.json (JSON5 accepted, per the config
// loader convention).
type Profiles struct {
	DefaultProvider string             `json:"default_provider"`
	Providers       map[string]Profile `json:"providers"`
}

// ParseProfiles parses a profiles.json document. Type aliases: "gpt" means
// openai, "ollama" means openai_compat.
func ParseProfiles(data []byte) (*Profiles, error) {
	var p Profiles
	if err := json5.Unmarshal(data, &p); err != nil {
		return nil, errs.Wrap(errs.KindJson, "parse profiles", err)
	}
	for name, prof := range p.Providers {
		switch prof.Type {
		case "gpt":
			prof.Type = TypeOpenai
		case "ollama":
			prof.Type = TypeOpenaiCompat
		case TypeGemini, TypeOpenai, TypeOpenaiCompat, TypeEcho:
		default:
			return nil, errs.Newf(errs.KindJson, "profile %q: unknown provider type %q", name, prof.Type)
		}
		p.Providers[name] = prof
	}
	return &p, nil
}

// LoadProfiles reads profiles.json from path. A missing file yields nil
// profiles (builtins only), not an error.
func LoadProfiles(path string) (*Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindIo, fmt.Sprintf("read %s", path), err)
	}
	p, err := ParseProfiles(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func builtinNames() []string {
	return []string{"echo", "gemini", "gpt", "openai", "openai_compat"}
}

// Resolve picks a profile: an explicit name wins, then default_provider,
// then the builtin "gemini". Unknown names are a usage error listing the
// available profiles.
func Resolve(requested string, cfg *Profiles) (string, Profile, error) {
	name := requested
	if name == "" {
		if cfg != nil && cfg.DefaultProvider != "" {
			name = cfg.DefaultProvider
		} else {
			name = TypeGemini
		}
	}

	if cfg != nil {
		if prof, ok := cfg.Providers[name]; ok {
			return name, prof, nil
		}
	}

	switch name {
	case TypeGemini, TypeEcho, TypeOpenaiCompat:
		return name, Profile{Type: name}, nil
	case TypeOpenai, "gpt":
		return name, Profile{Type: TypeOpenai}, nil
	}

	available := builtinNames()
	if cfg != nil {
		for k := range cfg.Providers {
			available = append(available, k)
		}
	}
	sort.Strings(available)
	return "", Profile{}, errs.Newf(errs.KindInvalidArgument,
		"unknown provider %q, available: %s", name, strings.Join(dedup(available), ", "))
}

func dedup(ss []string) []string {
	out := ss[:0]
	for i, s := range ss {
		if i == 0 || s != ss[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// New builds the EventStream for a resolved profile.
func New(name string, prof Profile) (EventStream, error) {
	switch prof.Type {
	case TypeEcho:
		return NewEcho(), nil
	case TypeGemini:
		return NewGemini(prof), nil
	case TypeOpenai:
		return NewOpenAI(name, prof), nil
	case TypeOpenaiCompat:
		return NewOpenAICompat(name, prof), nil
	default:
		return nil, errs.Newf(errs.KindInvalidArgument, "profile %q: unknown provider type %q", name, prof.Type)
	}
}
