// Command curriculumctl drives the curriculum generator from a terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/curriculum-backend/internal/app"
	"github.com/yungbote/curriculum-backend/internal/inference/config"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
	"github.com/yungbote/curriculum-backend/internal/platform/shutdown"
)

type cli struct {
	out io.Writer
	// log is built from the config mode unless a test injects one.
	log *logger.Logger
	cfg *config.Config

	configPath string
	envFile    string
	verbose    bool
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "curriculumctl",
		Short:         "Generate K-12 curricula from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}
	root.SetOut(c.out)
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Config file (default: $CURRICULUM_CONFIG_PATH or ./config/curriculum.yaml)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log at debug level to stderr")

	root.AddCommand(newModelsCmd(c))
	root.AddCommand(newPromptCmd(c))
	root.AddCommand(newGenerateCmd(c))
	return root
}

func (c *cli) setup() error {
	if c.envFile != "" {
		app.LoadDotEnv(c.envFile)
	}
	if c.configPath != "" {
		if err := os.Setenv("CURRICULUM_CONFIG_PATH", c.configPath); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	c.cfg = cfg
	if c.log == nil {
		mode := "production"
		if c.verbose {
			mode = "development"
		}
		if c.log, err = logger.New(mode); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
	}
	return nil
}

func main() {
	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	c := &cli{out: os.Stdout}
	err := newRootCmd(c).ExecuteContext(ctx)
	if c.log != nil {
		c.log.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
