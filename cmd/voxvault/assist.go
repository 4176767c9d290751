package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voxvault/voxvault/pkg/crypto"
	"github.com/voxvault/voxvault/pkg/resolve"
	"github.com/voxvault/voxvault/pkg/session"
)

func init() {
	rootCmd.AddCommand(assistCmd)
}

// assistCmd runs the full voice-command path against the vault
var assistCmd = &cobra.Command{
	Use:   "assist <transcript...>",
	Short: "Run a voice-style command transcript end to end",
	Long: `Handle a transcript the way the voice front-end does: parse the
intent, resolve the spoken site against the catalog, ask for confirmation
when the match is uncertain, then perform the vault operation.

Examples:
  voxvault assist save password for gmail the password is hunter2
  voxvault assist what is my facebook password
  voxvault assist delete the netflix password
  voxvault assist list my passwords

A save transcript without an inline password prompts for one instead of
making you speak it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAssist,
}

func runAssist(cmd *cobra.Command, args []string) error {
	transcript := strings.Join(args, " ")

	resolver, err := buildResolver()
	if err != nil {
		return err
	}
	if err := ensureUnlocked(); err != nil {
		return err
	}
	defer v.Lock()

	sess := session.New(resolver, v, session.ConfirmerFunc(confirmSite), v.AuditLogger())

	outcome, err := sess.HandleTranscript(cmd.Context(), transcript)
	if errors.Is(err, session.ErrNoSecret) {
		// A save with no dictated password: collect it from the terminal
		// and run the save directly.
		intent := session.ParseIntent(transcript)
		password, perr := promptNewPassphrase(fmt.Sprintf("password for '%s'", intent.SitePhrase))
		if perr != nil {
			return perr
		}
		outcome, err = sess.Save(cmd.Context(), intent.SitePhrase, string(password), "", "")
		crypto.SecureWipe(password)
	}
	if err != nil {
		return err
	}

	reportOutcome(outcome)
	return nil
}

// confirmSite asks on the terminal whether an uncertain resolution should
// proceed. Anything but an explicit yes declines.
func confirmSite(site string, confidence float64) bool {
	fmt.Printf("Did you mean '%s'? (confidence %.2f) [y/N]: ", site, confidence)
	answer, err := readLine()
	if err != nil {
		return false
	}
	return isAffirmative(answer)
}

// isAffirmative reports whether a confirmation answer means yes.
func isAffirmative(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes", "yeah", "yep":
		return true
	}
	return false
}

// reportOutcome prints what a handled command did.
func reportOutcome(out *session.Outcome) {
	// Surface non-obvious resolutions so the user sees what the phrase
	// landed on before reading the result.
	res := out.Resolution
	if res.Matched() && res.Method != resolve.MethodExact {
		fmt.Printf("Resolved to '%s' (%s, confidence %.2f)\n", res.Site, res.Method, res.Confidence)
	}

	switch out.Action {
	case session.ActionSave:
		if out.Created {
			fmt.Printf("Credential for '%s' saved\n", res.Site)
		} else {
			fmt.Printf("Credential for '%s' updated\n", res.Site)
		}
	case session.ActionRetrieve:
		e := out.Entry
		if e.Username != "" {
			fmt.Printf("%s (username %s): %s\n", e.Site, e.Username, e.Password)
		} else {
			fmt.Printf("%s: %s\n", e.Site, e.Password)
		}
	case session.ActionDelete:
		if out.Deleted {
			fmt.Printf("Credential for '%s' deleted\n", res.Site)
		} else {
			fmt.Printf("No credential stored for '%s'\n", res.Site)
		}
	case session.ActionList:
		if len(out.Entries) == 0 {
			fmt.Println("No credentials stored")
			return
		}
		for _, e := range out.Entries {
			printEntryLine(e)
		}
	}
}
