package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/triagewatch/internal/config"
)

var (
	initPath  string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initPath, "path", "", "Where to write the config (default ~/.triagewatch/config.yaml)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a commented default configuration file",
	Long: `Creates the config directory and a default config.yaml with every
setting and its default value. Existing files are left alone unless
--force is given.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := initPath
	if path == "" {
		path = config.DefaultPath()
	}
	if path == "" {
		return fmt.Errorf("cannot determine home directory; use --path")
	}

	wrote, err := writeIfMissing(path, config.DefaultConfigYAML())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if wrote {
		fmt.Fprintf(out, "Created %s\n", path)
	} else {
		fmt.Fprintf(out, "%s already exists (use --force to overwrite).\n", path)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Try it:")
	fmt.Fprintln(out, `  echo '{"type":"cv","detection_name":"Person Brandishing Firearm","severity":"SEV0"}' | triagewatch triage`)
	return nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
