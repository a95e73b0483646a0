package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"netpromote/internal/environment"
)

// UI represents the main UI interface
type UI struct {
	Verbose bool
	Quiet   bool
	// AssumeYes answers every confirmation with yes without prompting
	AssumeYes bool
	spinner   *Spinner
}

// NewUI creates a new UI instance
func NewUI(verbose, quiet bool) *UI {
	return &UI{
		Verbose: verbose,
		Quiet:   quiet,
	}
}

// Printf prints formatted output if not in quiet mode
func (u *UI) Printf(format string, args ...interface{}) {
	if !u.Quiet {
		fmt.Printf(format, args...)
	}
}

// Println prints a line if not in quiet mode
func (u *UI) Println(args ...interface{}) {
	if !u.Quiet {
		fmt.Println(args...)
	}
}

// VerbosePrintf prints formatted output only in verbose mode
func (u *UI) VerbosePrintf(format string, args ...interface{}) {
	if u.Verbose && !u.Quiet {
		fmt.Printf(format, args...)
	}
}

// StartProgress starts a progress indicator with a message
func (u *UI) StartProgress(message string) {
	if !u.Quiet && supportsColor {
		u.spinner = NewSpinner(message)
		u.spinner.Start()
	}
}

// StopProgress stops the progress indicator
func (u *UI) StopProgress(success bool, message string) {
	if u.spinner != nil {
		u.spinner.Stop(success, message)
		u.spinner = nil
	}
}

// Warning prints a warning message
func (u *UI) Warning(message string) {
	if !u.Quiet {
		ShowWarning(message)
	}
}

// Error prints an error message
func (u *UI) Error(message string) {
	if !u.Quiet {
		fmt.Printf("%s %s\n", ColorError("✗"), message)
	}
}

// Info prints an information message
func (u *UI) Info(message string) {
	if !u.Quiet {
		ShowInfo(message)
	}
}

// Success prints a success message
func (u *UI) Success(message string) {
	if !u.Quiet {
		ShowSuccess(message)
	}
}

// Confirm asks a yes/no question
func (u *UI) Confirm(message string, defaultValue bool) (bool, error) {
	if u.AssumeYes {
		return true, nil
	}
	result := defaultValue
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	err := survey.AskOne(prompt, &result)
	return result, err
}

// Input displays a text input prompt
func Input(message, defaultValue, help string) (string, error) {
	var result string
	prompt := &survey.Input{
		Message: message,
		Default: defaultValue,
		Help:    help,
	}

	err := survey.AskOne(prompt, &result)
	return result, err
}

// Select displays a selection prompt
func Select(message string, options []string) (string, error) {
	var result string
	prompt := &survey.Select{
		Message:  message,
		Options:  options,
		PageSize: 10,
	}

	err := survey.AskOne(prompt, &result)
	return result, err
}

// PromotionOptions builds the prompt labels for reqs, newest first, and
// maps each label back to its request id
func PromotionOptions(reqs []environment.PromotionRequest) ([]string, map[string]string) {
	sorted := append([]environment.PromotionRequest(nil), reqs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	options := make([]string, len(sorted))
	ids := make(map[string]string, len(sorted))
	for i, req := range sorted {
		message := req.Message
		if idx := strings.Index(message, "\n"); idx > 0 {
			message = message[:idx]
		}
		if len(message) > 50 {
			message = message[:47] + "..."
		}
		option := fmt.Sprintf("%s  %s -> %s  [%s] %s (%s)",
			req.ID, req.Source, req.Target, req.Status, message,
			formatRelativeTime(req.CreatedAt))
		options[i] = option
		ids[option] = req.ID
	}
	return options, ids
}

// SelectPromotion lets the user pick one of reqs and returns its id
func SelectPromotion(message string, reqs []environment.PromotionRequest) (string, error) {
	if len(reqs) == 0 {
		return "", fmt.Errorf("no promotions available")
	}

	options, ids := PromotionOptions(reqs)
	selected, err := Select(message, options)
	if err != nil {
		return "", err
	}
	return ids[selected], nil
}

// ShowPromotion prints the details of one promotion request
func ShowPromotion(req environment.PromotionRequest) {
	ShowHeader("Promotion " + req.Source + " -> " + req.Target)
	PrintKeyValue("ID", req.ID)
	PrintKeyValue("Status", StatusLabel(req.Status))
	PrintKeyValue("Branches", req.SourceBranch+" -> "+req.TargetBranch)
	PrintKeyValue("Source commit", shortHash(req.SourceCommit))
	if req.TargetCommit != "" {
		PrintKeyValue("Target commit", shortHash(req.TargetCommit))
	}
	PrintKeyValue("Requested by", req.RequestedBy)
	if req.ApprovedBy != "" {
		PrintKeyValue("Approved by", req.ApprovedBy)
	}
	if req.RejectedBy != "" {
		PrintKeyValue("Rejected by", req.RejectedBy)
	}
	if req.Message != "" {
		PrintKeyValue("Message", req.Message)
	}
	if req.CancelReason != "" {
		PrintKeyValue("Cancel reason", req.CancelReason)
	}
	if req.Error != "" {
		PrintKeyValue("Error", ColorError(req.Error))
	}
	PrintKeyValue("Created", req.CreatedAt.Format("2006-01-02 15:04:05")+" ("+formatRelativeTime(req.CreatedAt)+")")
	if req.CompletedAt != nil {
		PrintKeyValue("Finished", req.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if len(req.Conflicts) > 0 {
		PrintSection(fmt.Sprintf("Conflicts (%d)", len(req.Conflicts)))
		PrintList(req.Conflicts)
	}
	fmt.Println()
}

// ShowPromotionResult summarizes an executed promotion
func ShowPromotionResult(result *environment.PromotionResult) {
	if result.Success {
		ShowSuccess(fmt.Sprintf("Promotion %s completed in %s", result.RequestID, FormatDuration(result.Duration())))
		PrintKeyValue("Target commit", shortHash(result.TargetCommit))
		if len(result.ChangedFiles) > 0 {
			PrintSection(fmt.Sprintf("Changed files (%d)", len(result.ChangedFiles)))
			PrintList(result.ChangedFiles)
		}
		return
	}

	if len(result.Conflicts) > 0 {
		ShowWarning(fmt.Sprintf("Promotion %s stopped on %d merge conflict(s)", result.RequestID, len(result.Conflicts)))
		PrintList(result.Conflicts)
		return
	}
	fmt.Printf("%s Promotion %s failed: %s\n", ColorError("✗"), result.RequestID, result.Error)
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
