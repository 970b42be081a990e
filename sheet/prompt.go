package sheet

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
)

// ConflictChoice is an operator decision taken outside the editor UI.
type ConflictChoice string

const (
	ChoiceAcceptPortal ConflictChoice = "accept"
	ChoiceKeepEdit     ConflictChoice = "reject"
	ChoiceSkip         ConflictChoice = "skip"
)

// ApplyConflictChoices applies decisions keyed by item. Skipped or unknown
// keys are left in conflict.
func (e *Editor) ApplyConflictChoices(choices map[ItemKey]ConflictChoice) error {
	for key, choice := range choices {
		switch choice {
		case ChoiceAcceptPortal:
			info, ok := e.GetItemChangeInfo(key)
			if !ok {
				continue
			}
			current := info.Change.Current()
			if err := e.AcceptPortalChange(key, current.String(), current.Quantity, current.Unit); err != nil {
				return err
			}
		case ChoiceKeepEdit:
			if err := e.RejectPortalChange(key, e.DisplayValue(key)); err != nil {
				return err
			}
		case ChoiceSkip:
			log.Debug("Conflict left open", "key", key)
		default:
			return fmt.Errorf("unexpected choice %q for %s", choice, key)
		}
	}
	return nil
}

// PromptConflictResolution asks the operator, one form per conflict, whether
// to take the portal value or keep the manual edit.
func (e *Editor) PromptConflictResolution() error {
	conflicts := e.Conflicts()
	if len(conflicts) == 0 {
		return nil
	}

	log.Infof("Found %d conflicts that require your attention", len(conflicts))

	choices := make(map[ItemKey]ConflictChoice, len(conflicts))
	for i, conflict := range conflicts {
		parts, err := ParseKey(conflict.Key)
		if err != nil {
			parts = KeyParts{ItemName: string(conflict.Key)}
		}
		description := fmt.Sprintf("Portal changed %s -> %s, sheet shows %s",
			conflict.Change.Previous(), conflict.Change.Current(), e.DisplayValue(conflict.Key))
		log.Infof("Conflict %d/%d: %s (%s)", i+1, len(conflicts), parts.ItemName, description)

		var choice string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title(fmt.Sprintf("How should %s for %s be resolved?", parts.ItemName, parts.CustomerName)).
					Description(description).
					Options(
						huh.NewOption("Take the portal value", string(ChoiceAcceptPortal)),
						huh.NewOption("Keep the manual edit", string(ChoiceKeepEdit)),
						huh.NewOption("Decide later", string(ChoiceSkip)),
					).
					Value(&choice),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("failed to get conflict resolution input: %w", err)
		}
		choices[conflict.Key] = ConflictChoice(choice)
	}

	return e.ApplyConflictChoices(choices)
}
