package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voxvault/voxvault/pkg/catalog"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script for your shell",
	Long: `To load completions:

Bash:
  $ source <(voxvault completion bash)

  # To load for each session (Linux):
  $ voxvault completion bash > ~/.local/share/bash-completion/completions/voxvault

  # To load for each session (macOS with Homebrew):
  $ voxvault completion bash > $(brew --prefix)/etc/bash_completion.d/voxvault

Zsh:
  # Ensure completion is enabled:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # Generate completion:
  $ voxvault completion zsh > ~/.zsh/completions/_voxvault
  # (create ~/.zsh/completions if needed, add to fpath in .zshrc)

Fish:
  $ voxvault completion fish > ~/.config/fish/completions/voxvault.fish

PowerShell:
  PS> voxvault completion powershell >> $PROFILE

Site arguments complete from the site catalog, which holds public names
only, so completion never opens the vault or prompts for a passphrase.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return nil
	},
}

// completeSiteNames completes the site argument from the catalog. The
// catalog stores public names only, never credentials, so this reads no
// vault state and never prompts.
func completeSiteNames(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 || cfg == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var names []string
	prefix := strings.ToLower(toComplete)
	for _, name := range cat.Canonicals() {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}

	return names, cobra.ShellCompDirectiveNoFileComp
}

// registerCompletionFunctions wires dynamic site completion into the
// commands that take a site argument.
func registerCompletionFunctions() {
	getCmd.ValidArgsFunction = completeSiteNames
	deleteCmd.ValidArgsFunction = completeSiteNames
	saveCmd.ValidArgsFunction = completeSiteNames
}

func init() {
	rootCmd.AddCommand(completionCmd)

	registerCompletionFunctions()
}
