package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/ichi0g0y/twitch-fanscore/internal/quiz"
	"github.com/ichi0g0y/twitch-fanscore/internal/roulette"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type templateFile struct {
	Templates []templateDoc `yaml:"templates"`
}

type templateDoc struct {
	ID       string    `yaml:"id,omitempty"`
	Name     string    `yaml:"name"`
	Mode     string    `yaml:"mode,omitempty"`
	Division int       `yaml:"division,omitempty"`
	AutoRun  bool      `yaml:"auto_run,omitempty"`
	Enabled  *bool     `yaml:"enabled,omitempty"`
	Items    []itemDoc `yaml:"items"`
}

type itemDoc struct {
	Type       string  `yaml:"type"`
	Label      string  `yaml:"label"`
	Percentage float64 `yaml:"percentage"`
	Value      int     `yaml:"value,omitempty"`
}

type quizFile struct {
	Questions []questionDoc `yaml:"questions"`
}

type questionDoc struct {
	ID       string `yaml:"id,omitempty"`
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

// toTemplate converts a document entry. Templates are enabled unless stated otherwise.
func (d templateDoc) toTemplate() roulette.Template {
	t := roulette.Template{
		ID:       d.ID,
		Name:     d.Name,
		Mode:     roulette.Mode(d.Mode),
		Division: d.Division,
		AutoRun:  d.AutoRun,
		Enabled:  d.Enabled == nil || *d.Enabled,
	}
	for _, it := range d.Items {
		t.Items = append(t.Items, roulette.Item{
			Type:       roulette.ItemType(it.Type),
			Label:      it.Label,
			Percentage: it.Percentage,
			Value:      it.Value,
		})
	}
	return t
}

// decodeYAML reads path strictly; unknown keys are rejected to catch typos.
func decodeYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func newImportTemplatesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import-templates <file.yaml>",
		Short: "Create or replace roulette templates from a YAML file",
		Long: `Each entry under "templates" is validated and saved. Entries with an id
replace the stored template with the same id, the rest are created.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc templateFile
			if err := decodeYAML(args[0], &doc); err != nil {
				return err
			}
			if len(doc.Templates) == 0 {
				return fmt.Errorf("%s has no templates", args[0])
			}
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				for i, d := range doc.Templates {
					t, err := a.wheel.SaveTemplate(ctx, d.toTemplate())
					if err != nil {
						return fmt.Errorf("template %d (%s): %w", i, d.Name, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "saved %s %s\n", t.ID, t.Name)
				}
				return nil
			})
		},
	}
}

func newImportQuizCommand(opts *rootOptions) *cobra.Command {
	var appendMode bool
	cmd := &cobra.Command{
		Use:   "import-quiz <file.yaml>",
		Short: "Replace the quiz question pool from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc quizFile
			if err := decodeYAML(args[0], &doc); err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				var qs []quiz.Question
				if appendMode {
					existing, err := a.quiz.Questions(ctx)
					if err != nil {
						return err
					}
					qs = existing
				}
				for _, d := range doc.Questions {
					qs = append(qs, quiz.Question{ID: d.ID, Question: d.Question, Answer: d.Answer})
				}
				if err := a.quiz.SaveQuestions(ctx, qs); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %d questions\n", len(qs))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&appendMode, "append", false, "add to the existing pool instead of replacing it")
	return cmd
}
