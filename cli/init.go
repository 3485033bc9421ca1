// ABOUTME: init command writing a starter config file and rule file
// ABOUTME: Existing files are left alone unless --force is given
package cli

import (
	_ "embed"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/harperreed/engage/config"
)

//go:embed starter_rules.toml
var starterRules []byte

// InitCommand writes the config and starter rules to their configured paths. The
// database itself is created by opening it.
func InitCommand(cfg *config.Config, configPath string, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite existing files")
	_ = fs.Parse(args)

	if configPath == "" {
		configPath = config.DefaultPath()
	}

	wrote, err := writeIfMissing(configPath, *force, func(f *os.File) error {
		return toml.NewEncoder(f).Encode(cfg)
	})
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	report("Config", configPath, wrote)

	wrote, err = writeIfMissing(cfg.Engine.RulesFile, *force, func(f *os.File) error {
		_, err := f.Write(starterRules)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write rules: %w", err)
	}
	report("Rules", cfg.Engine.RulesFile, wrote)

	fmt.Printf("%s Database ready: %s\n", okStyle.Render("✓"), cfg.DSN())
	return nil
}

func writeIfMissing(path string, force bool, write func(*os.File) error) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	f, err := os.Create(path)
	if err != nil {
		return false, err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}

func report(what, path string, wrote bool) {
	if wrote {
		fmt.Printf("%s %s written: %s\n", okStyle.Render("✓"), what, path)
		return
	}
	fmt.Printf("%s %s exists, kept: %s\n", mutedStyle.Render("-"), what, path)
}
