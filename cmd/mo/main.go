package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daviddao/mailorders/internal/config"
	"github.com/daviddao/mailorders/internal/db"
	"github.com/daviddao/mailorders/internal/pipeline"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	dbPath     string
	jsonOutput bool
	quietFlag  bool
	cfg        *config.Config
	store      *db.DB
)

var rootCmd = &cobra.Command{
	Use:   "mo",
	Short: "mo - Marketplace order tracking from Gmail",
	Long:  "Mailorders: sync marketplace order emails, consolidate their lifecycle, reconcile deliveries.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		if !needsStore(cmd) {
			return nil
		}

		path := resolveDBPath()
		if path == "" {
			return eris.New("no mailorders database found, run 'mo init' first")
		}
		store, err = db.Open(path)
		if err != nil {
			return eris.Wrap(err, "open database")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// needsStore reports whether cmd reads or writes the local database.
func needsStore(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "init", "help", "version", "gmail":
		return false
	}
	if p := cmd.Parent(); p != nil && p.Name() == "gmail" {
		return false
	}
	return true
}

func resolveDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if cfg != nil && cfg.Store.Path != "" {
		return cfg.Store.Path
	}
	return db.DiscoverDB()
}

// credentialsRoot is the directory holding one sub-directory per account.
func credentialsRoot() (string, error) {
	if cfg != nil && cfg.Gmail.Root != "" {
		return cfg.Gmail.Root, nil
	}
	root := db.FindProjectRoot()
	if root == "" {
		return "", eris.New("could not find project root (no .git directory), set gmail.root")
	}
	return root, nil
}

func newPipeline() (*pipeline.Pipeline, error) {
	opts, err := cfg.PipelineOptions()
	if err != nil {
		return nil, err
	}
	return pipeline.New(opts), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mo version %s\n", Version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize .mailorders/ in the project root",
	RunE: func(cmd *cobra.Command, args []string) error {
		root := db.FindProjectRoot()
		if root == "" {
			return eris.New("could not find project root (no .git directory found)")
		}

		path := filepath.Join(root, db.Dir, db.File)
		s, err := db.Open(path)
		if err != nil {
			return err
		}
		s.Close()

		if err := ensureGitignore(root); err != nil {
			zap.L().Warn("init: could not update .gitignore", zap.Error(err))
		}

		if !quietFlag {
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized mailorders at %s\n", path)
		}
		return nil
	},
}

// ensureGitignore adds .mailorders/ to .gitignore if not already present.
func ensureGitignore(root string) error {
	gitignorePath := filepath.Join(root, ".gitignore")
	entry := db.Dir + "/"

	data, err := os.ReadFile(gitignorePath)
	if err != nil && !os.IsNotExist(err) {
		return eris.Wrap(err, "read .gitignore")
	}
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == entry || line == db.Dir {
			return nil
		}
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrap(err, "open .gitignore")
	}
	defer f.Close()

	prefix := ""
	if len(data) > 0 && data[len(data)-1] != '\n' {
		prefix = "\n"
	}
	if _, err := fmt.Fprintf(f, "%s\n# Mailorders database (local order tracking)\n%s\n", prefix, entry); err != nil {
		return eris.Wrap(err, "write .gitignore")
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: store.path or auto-discover .mailorders/orders.db)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
