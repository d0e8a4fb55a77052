// cmd/tools/template-check/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"compliance-engine/internal/dispatch"
	"compliance-engine/internal/models"
	"compliance-engine/pkg/registry"
)

const defaultPath = "configs/templates.json"

func main() {
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)

	validatePath := validateCmd.String("path", defaultPath, "Path to template registry")
	listPath := listCmd.String("path", defaultPath, "Path to template registry")

	addPath := addCmd.String("path", defaultPath, "Path to template registry")
	tplType := addCmd.String("type", "", "Notification type (reminder, alert, submission, deadline)")
	subject := addCmd.String("subject", "", "Subject template")
	bodyFile := addCmd.String("body-file", "", "File holding the HTML body template")
	description := addCmd.String("description", "", "Description")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validate(*validatePath); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Template registry is valid.")

	case "list":
		listCmd.Parse(os.Args[2:])
		reg, err := registry.LoadRegistry(*listPath)
		if err != nil {
			fmt.Printf("Error loading registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry version %s (updated %s)\n", reg.Version, reg.LastUpdated)
		for _, tpl := range reg.Templates {
			fmt.Printf("  %-12s %s\n", tpl.Type, tpl.Description)
		}

	case "add":
		addCmd.Parse(os.Args[2:])
		if *tplType == "" || *subject == "" || *bodyFile == "" {
			fmt.Println("Error: type, subject, and body-file are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		body, err := os.ReadFile(*bodyFile)
		if err != nil {
			fmt.Printf("Error reading body: %v\n", err)
			os.Exit(1)
		}
		tpl := registry.Template{Type: *tplType, Description: *description, Subject: *subject, Body: string(body)}
		if err := add(*addPath, tpl); err != nil {
			fmt.Printf("Error adding template: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved template: %s\n", *tplType)

	default:
		help()
		os.Exit(1)
	}
}

// validate loads the registry and renders every notification type against a
// sample so template errors surface before deploy.
func validate(path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return err
	}
	renderer, err := dispatch.NewRenderer(reg)
	if err != nil {
		return err
	}
	for _, t := range []models.NotificationType{models.TypeReminder, models.TypeAlert, models.TypeSubmission, models.TypeDeadline} {
		subject, _, err := renderer.Render(sample(t))
		if err != nil {
			return fmt.Errorf("%s: %w", t, err)
		}
		fmt.Printf("  %-12s %s\n", t, subject)
	}
	return nil
}

func add(path string, tpl registry.Template) error {
	reg, err := registry.LoadRegistry(path)
	if os.IsNotExist(err) {
		reg = &registry.TemplateRegistry{Version: "1.0.0"}
	} else if err != nil {
		return err
	}
	reg.Upsert(tpl)
	if _, err := dispatch.NewRenderer(reg); err != nil {
		return err
	}
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return registry.SaveRegistry(path, reg)
}

func sample(t models.NotificationType) *models.Notification {
	return &models.Notification{
		ID:            "sample",
		RecipientID:   "sample-recipient",
		RecipientType: models.RecipientFacilitator,
		Type:          t,
		Title:         "Week 5 activity report",
		Message:       "Sample notification body.",
		Related:       &models.EntityRef{ID: "alloc-sample", Type: models.EntityAllocation},
		Metadata: map[string]interface{}{
			models.MetaWeekNumber:      5,
			models.MetaAllocationID:    "alloc-sample",
			models.MetaFacilitatorName: "Ada Lovelace",
			models.MetaManagerName:     "Alan Turing",
			models.MetaModuleName:      "Distributed Systems",
			models.MetaCohortName:      "2025 Cohort",
			models.MetaClassName:       "Class A",
		},
		CreatedAt: time.Now().UTC(),
	}
}

func help() {
	fmt.Println("Usage: template-check <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  validate   Check that every template parses and renders")
	fmt.Println("  list       Show the templates in the registry")
	fmt.Println("  add        Add or replace the template for a notification type")
}
