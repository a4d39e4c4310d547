package main

import (
	"fmt"
	"strconv"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/hostfactory/aws-provider/pkg/application/commands"
	"github.com/hostfactory/aws-provider/pkg/application/queries"
	"github.com/hostfactory/aws-provider/pkg/application/services"
	"github.com/hostfactory/aws-provider/pkg/domain/template"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/config"
)

var cmdTemplates = &cobra.Command{
	Use:   "templates",
	Short: "inspect and reload template configuration",
}

var cmdTemplatesList = &cobra.Command{
	Use:   "list",
	Short: "list every resolved template",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listTemplates(cmd, globalOpts)
	},
}

var cmdTemplatesReload = &cobra.Command{
	Use:   "reload",
	Short: "drop the cached template set so the next read re-merges disk state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return reloadTemplates(cmd, globalOpts)
	},
}

var cmdValidateConfig = &cobra.Command{
	Use:   "validate-config",
	Short: "validate every configured provider instance against its templates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return validateConfig(cmd, globalOpts)
	},
}

func init() {
	rootCmd.AddCommand(cmdTemplates)
	rootCmd.AddCommand(cmdValidateConfig)
	cmdTemplates.AddCommand(cmdTemplatesList)
	cmdTemplates.AddCommand(cmdTemplatesReload)
}

// TemplateUI is the table-printable projection of a resolved template.
type TemplateUI struct {
	TemplateID   string `table:"Template"`
	ProviderAPI  string `table:"API"`
	InstanceType string `table:"Instance-Type"`
	ImageID      string `table:"Image"`
	MaxInstances string `table:"Max"`
}

func templateToUI(t *template.Template) TemplateUI {
	return TemplateUI{
		TemplateID:   t.TemplateID,
		ProviderAPI:  string(t.ProviderAPI),
		InstanceType: t.InstanceType,
		ImageID:      t.ImageID,
		MaxInstances: strconv.Itoa(t.MaxInstances),
	}
}

func listTemplates(cmd *cobra.Command, globalOpts GlobalOptions) error {
	cfg, err := loadConfig(globalOpts)
	if err != nil {
		return err
	}
	app, err := buildApp(cmd.Context(), cfg, defaultLogger(globalOpts))
	if err != nil {
		return err
	}
	result, err := app.Queries.Execute(cmd.Context(), queries.ListTemplates{})
	if err != nil {
		return err
	}
	templates, _ := result.([]*template.Template)
	ui := lo.Map(templates, func(t *template.Template, _ int) TemplateUI { return templateToUI(t) })
	printResult(globalOpts, ui)
	return nil
}

func reloadTemplates(cmd *cobra.Command, globalOpts GlobalOptions) error {
	cfg, err := loadConfig(globalOpts)
	if err != nil {
		return err
	}
	app, err := buildApp(cmd.Context(), cfg, defaultLogger(globalOpts))
	if err != nil {
		return err
	}
	if _, err := app.Commands.Execute(cmd.Context(), commands.ReloadTemplates{}); err != nil {
		return err
	}
	fmt.Println("templates reloaded")
	return nil
}

// validateConfig runs the capability service over every (template,
// provider instance) pair this process would actually route to,
// reporting findings the same way spec.md §4.3's validation levels
// describe. There is no bus-routed query for this: capability
// validation reads configuration, not domain state, so it doesn't need
// a handler registered with the query bus.
func validateConfig(cmd *cobra.Command, globalOpts GlobalOptions) error {
	cfg, err := loadConfig(globalOpts)
	if err != nil {
		return err
	}
	app, err := buildApp(cmd.Context(), cfg, defaultLogger(globalOpts))
	if err != nil {
		return err
	}
	result, err := app.Queries.Execute(cmd.Context(), queries.ListTemplates{})
	if err != nil {
		return err
	}
	templates, _ := result.([]*template.Template)

	capabilityService := app.Capability
	level := services.LevelStrict
	failed := false
	for _, t := range templates {
		for _, pc := range lo.Filter(cfg.Providers, func(pc config.ProviderConfig, _ int) bool { return pc.Enabled }) {
			res := capabilityService.Validate(t, pc, level)
			if !res.Valid {
				failed = true
			}
			for _, f := range res.Errors {
				fmt.Printf("ERROR  template=%s instance=%s %s: %s\n", t.TemplateID, pc.Name, f.Code, f.Message)
			}
			for _, f := range res.Warnings {
				fmt.Printf("WARN   template=%s instance=%s %s: %s\n", t.TemplateID, pc.Name, f.Code, f.Message)
			}
		}
	}
	if failed {
		return fmt.Errorf("validate-config: one or more templates failed validation")
	}
	fmt.Println("all templates valid")
	return nil
}
