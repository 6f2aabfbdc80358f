package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/aish/internal/config"
)

const sampleProfiles = `{
	// Provider profiles. The default_provider is used when -p is not given.
	"default_provider": "gemini",
	"providers": {
		"gemini": { "type": "gemini", "api_key_env": "GEMINI_API_KEY" },
		"gpt": { "type": "openai", "api_key_env": "OPENAI_API_KEY" },
		"local": { "type": "ollama", "base_url": "http://localhost:11434/v1", "model": "llama3.1" },
		"echo": { "type": "echo" }
	}
}
`

const sampleCommandRules = `# One rule per line. Prefix rules match the literal prefix followed by a
# space or end of line; /re/ is a regex; a leading ! denies.
ls
git status
git diff
git log
!/rm .*-r/
`

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the aish home directory skeleton",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			dirs, err := config.ResolveDirs()
			if err != nil {
				return err
			}
			for _, sub := range []string{"config", "memory"} {
				if err := os.MkdirAll(filepath.Join(dirs.Home, sub), 0o755); err != nil {
					return fmt.Errorf("create %s: %w", sub, err)
				}
			}
			seeds := map[string]string{
				dirs.ProfilesPath():     sampleProfiles,
				dirs.CommandRulesPath(): sampleCommandRules,
			}
			for path, content := range seeds {
				if _, err := os.Stat(path); err == nil {
					continue // never overwrite user config
				}
				if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
					return fmt.Errorf("seed %s: %w", path, err)
				}
			}
			fmt.Printf("initialized %s\n", dirs.Home)
			return nil
		},
	}
}
