// ABOUTME: Loads user-defined composite skills from a TOML catalog.
// ABOUTME: Catalog skills are read-only recipes; publishing stays built in.

package skill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// catalogFile is the top-level TOML document.
type catalogFile struct {
	Skills []catalogSkill `toml:"skill"`
}

type catalogSkill struct {
	ID          string        `toml:"id"`
	Description string        `toml:"description"`
	Steps       []catalogStep `toml:"step"`
}

type catalogStep struct {
	Tool string         `toml:"tool"`
	Args map[string]any `toml:"args"`
}

// LoadCatalog registers composite skills from a TOML file. Catalog skills
// may only call read tools: create_article is reserved for the built-in
// publish skill so the dedupe guard and ledger cannot be bypassed.
func (r *Router) LoadCatalog(path string) error {
	var file catalogFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return fmt.Errorf("loading skill catalog: %w", err)
	}

	for _, cs := range file.Skills {
		if err := validateCatalogSkill(cs, r.recipes); err != nil {
			return fmt.Errorf("skill catalog: %w", err)
		}
		steps := cs.Steps
		r.register(recipe{
			descriptor: Descriptor{ID: cs.ID, Description: cs.Description},
			run: func(ctx context.Context, r *Router, args map[string]any) *Reply {
				return runCatalogSteps(ctx, r, steps, args)
			},
		})
		r.logger.Info("catalog skill loaded", "skill_id", cs.ID, "steps", len(cs.Steps))
	}
	return nil
}

func validateCatalogSkill(cs catalogSkill, existing map[string]recipe) error {
	if cs.ID == "" {
		return fmt.Errorf("skill with empty id")
	}
	if _, taken := existing[cs.ID]; taken {
		return fmt.Errorf("skill %s collides with an existing skill", cs.ID)
	}
	if len(cs.Steps) == 0 {
		return fmt.Errorf("skill %s has no steps", cs.ID)
	}
	for _, step := range cs.Steps {
		if step.Tool == "" {
			return fmt.Errorf("skill %s has a step without a tool", cs.ID)
		}
		if step.Tool == "create_article" {
			return fmt.Errorf("skill %s: create_article is not allowed in catalog skills", cs.ID)
		}
	}
	return nil
}

// runCatalogSteps executes each step in order, merging caller arguments
// over the step's static ones. Failure short-circuits the sequence.
func runCatalogSteps(ctx context.Context, r *Router, steps []catalogStep, callerArgs map[string]any) *Reply {
	reply := &Reply{}
	var sb strings.Builder

	for _, step := range steps {
		args := make(map[string]any, len(step.Args)+len(callerArgs))
		for k, v := range step.Args {
			args[k] = v
		}
		for k, v := range callerArgs {
			args[k] = v
		}

		result := r.invokeRead(ctx, step.Tool, args)
		if !reply.addStep(step.Tool, result) {
			return reply
		}

		fmt.Fprintf(&sb, "## %s\n", step.Tool)
		sb.Write(indentJSON(result.Payload))
		sb.WriteString("\n")
	}

	reply.Text = sb.String()
	return reply
}

func indentJSON(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return raw
	}
	return buf.Bytes()
}
