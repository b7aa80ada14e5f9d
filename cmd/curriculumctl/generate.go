package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/curriculum-backend/internal/app"
	"github.com/yungbote/curriculum-backend/internal/curriculum"
)

func newGenerateCmd(c *cli) *cobra.Command {
	var (
		req    curriculum.Request
		out    string
		events bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a curriculum and print it as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if out != "" {
				c.cfg.Output.Dir = out
			}
			core, err := app.NewCore(ctx, c.log, c.cfg, app.CoreOptions{NoRender: out == ""})
			if err != nil {
				return err
			}
			norm, err := curriculum.Normalize(req, core.Prompts, core.Registry)
			if err != nil {
				return err
			}

			var outcome *curriculum.Outcome
			for ev := range core.Generator.GenerateStream(ctx, norm) {
				switch ev.Type {
				case curriculum.EventProgress:
					if events {
						printEvent(cmd, ev)
					}
				case curriculum.EventError:
					return errors.New(ev.Message)
				case curriculum.EventResult:
					outcome = ev.Outcome()
				}
			}
			if outcome == nil {
				if err := ctx.Err(); err != nil {
					return err
				}
				return errors.New("generation ended without a result")
			}
			for _, w := range outcome.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			if outcome.Document != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "document: %s\n", outcome.Document)
			}
			enc := json.NewEncoder(c.out)
			enc.SetIndent("", "  ")
			return enc.Encode(outcome.Result)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&req.Grade, "grade", "g", 0, "Grade level (0 = kindergarten)")
	f.StringVarP(&req.Subject, "subject", "s", "", "Math, ELA, Science or History")
	f.StringVar(&req.Topic, "topic", "", "Lesson topic")
	f.IntVar(&req.SessionLengthMinutes, "minutes", 0, "Session length in minutes (default 45)")
	f.IntVar(&req.NumDays, "days", 0, "Number of days, 1 to 3 (default 1)")
	f.StringVar(&req.LearningGoalType, "goal", "", "introduce, practice, assess or remediate")
	f.StringVar(&req.GroupFormat, "group", "", "individual, small_group or whole_class")
	f.StringVar(&req.PedagogicalApproach, "approach", "", "Pedagogical approach id")
	f.BoolVar(&req.IncludeUDLDocs, "udl", false, "Include UDL documentation")
	f.StringVarP(&req.Model, "model", "m", "", "Model key (default from config)")
	f.StringVar(&req.Strategy, "strategy", "", "single or parallel")
	f.StringVarP(&out, "out", "o", "", "Write the rendered document into this directory")
	f.BoolVar(&events, "events", false, "Print progress events to stderr")
	_ = cmd.MarkFlagRequired("grade")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func printEvent(cmd *cobra.Command, ev curriculum.Event) {
	prefix := string(ev.Stage)
	if ev.Level != "" {
		prefix += "/" + ev.Level
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", prefix, ev.Message)
}
