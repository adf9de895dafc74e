package quarantine

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/reglet-dev/finguard/host"
)

// Decision is the user's verdict on a quarantined extension.
type Decision int

const (
	// DecisionSkip leaves the extension pending.
	DecisionSkip Decision = iota
	// DecisionKeep keeps the extension disabled.
	DecisionKeep
	// DecisionRelease re-enables the extension.
	DecisionRelease
)

func (d Decision) String() string {
	switch d {
	case DecisionKeep:
		return "keep"
	case DecisionRelease:
		return "release"
	default:
		return "skip"
	}
}

// Prompter asks the user to review quarantined extensions.
type Prompter interface {
	IsInteractive() bool
	PromptForDecision(info host.ExtensionInfo) (Decision, error)
	FormatNonInteractiveError(pending []string) error
}

var _ Prompter = (*TerminalPrompter)(nil)

// TerminalPrompter reviews quarantined extensions in an interactive
// terminal.
type TerminalPrompter struct{}

// NewTerminalPrompter creates a new TerminalPrompter.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{}
}

// IsInteractive checks if we're running in an interactive terminal.
func (p *TerminalPrompter) IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// PromptForDecision asks whether to keep info disabled.
func (p *TerminalPrompter) PromptForDecision(info host.ExtensionInfo) (Decision, error) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "\033[1;33mQuarantined Extension\033[0m\n\n")
	fmt.Fprintf(os.Stderr, "  %s\n", describe(info))
	fmt.Fprintf(os.Stderr, "  It matched a known-dangerous signature and was disabled on install.\n")
	fmt.Fprintf(os.Stderr, "\n")

	const (
		OptionKeep    = "Keep it disabled"
		OptionRelease = "I trust it, re-enable"
		OptionSkip    = "Decide later"
	)

	var selection string

	err := huh.NewSelect[string]().
		Title("Keep this extension disabled?").
		Description(describe(info)).
		Options(
			huh.NewOption(OptionKeep, OptionKeep),
			huh.NewOption(OptionRelease, OptionRelease),
			huh.NewOption(OptionSkip, OptionSkip),
		).
		Value(&selection).
		Run()
	if err != nil {
		return DecisionSkip, err
	}

	switch selection {
	case OptionKeep:
		return DecisionKeep, nil
	case OptionRelease:
		return DecisionRelease, nil
	default:
		return DecisionSkip, nil
	}
}

// FormatNonInteractiveError creates a helpful error message for non-interactive mode.
func (p *TerminalPrompter) FormatNonInteractiveError(pending []string) error {
	var msg strings.Builder
	msg.WriteString("Extensions are awaiting quarantine review (running in non-interactive mode)\n\n")
	msg.WriteString("Pending:\n")
	for _, id := range pending {
		msg.WriteString(fmt.Sprintf("  - %s\n", id))
	}
	msg.WriteString("\nTo review them:\n")
	msg.WriteString("  1. Run finguard review in a terminal\n")
	msg.WriteString("  2. Or answer the popup the browser opened on install\n")
	return fmt.Errorf("%s", msg.String())
}

func describe(info host.ExtensionInfo) string {
	if info.Name == "" {
		return info.ID
	}
	if info.Version != "" {
		return fmt.Sprintf("%s %s (%s)", info.Name, info.Version, info.ID)
	}
	return fmt.Sprintf("%s (%s)", info.Name, info.ID)
}
