package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/curriculum-backend/internal/curriculum/prompts"
)

func newPromptCmd(c *cli) *cobra.Command {
	var (
		template string
		grade    int
		subject  string
	)
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print a rendered system prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := prompts.ParseTemplate(template)
			if err != nil {
				return err
			}
			loader, err := prompts.NewLoader(cmd.Context(), c.log, prompts.Options{
				Dir:       c.cfg.Prompts.Dir,
				CacheSize: c.cfg.Prompts.CacheSize,
			})
			if err != nil {
				return err
			}
			text, err := loader.RenderSystemPrompt(t, grade, subject)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.out, text)
			return err
		},
	}
	cmd.Flags().StringVarP(&template, "template", "t", "curriculum", "curriculum, teacher_guide or student_materials")
	cmd.Flags().IntVarP(&grade, "grade", "g", 6, "Grade level (0 = kindergarten)")
	cmd.Flags().StringVarP(&subject, "subject", "s", "Math", "Math, ELA, Science or History")
	return cmd
}
