package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/yolodolo42/chatchain/internal/auth"
	"github.com/yolodolo42/chatchain/internal/intent"
	"github.com/yolodolo42/chatchain/internal/llm"
	"github.com/yolodolo42/chatchain/internal/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage LLM provider API keys",
	Long: `Store, list and remove API keys for the hosted models used to parse
requests. Without a key, requests are parsed by the built-in rules.

Keys are looked up in the environment first, then in the config file under
llm.providers.<id>.api_key, then in ~/.chatchain/auth.json.`,
}

var authConnectCmd = &cobra.Command{
	Use:   "connect [provider]",
	Short: "Store an API key for a provider",
	Long: `Store an API key for a provider.

Supported providers:
  anthropic   - Anthropic Claude
  openai      - OpenAI GPT
  openrouter  - OpenRouter
  gemini      - Google Gemini`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthConnect,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected providers",
	RunE:  runAuthList,
}

var authDisconnectCmd = &cobra.Command{
	Use:   "disconnect <provider>",
	Short: "Remove a stored key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthDisconnect,
}

var authDefaultCmd = &cobra.Command{
	Use:   "default [provider]",
	Short: "Get or set the default provider",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuthDefault,
}

var authTestCmd = &cobra.Command{
	Use:   "test <provider>",
	Short: "Parse a sample request with a provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthTest,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authConnectCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(authDisconnectCmd)
	authCmd.AddCommand(authDefaultCmd)
	authCmd.AddCommand(authTestCmd)

	authConnectCmd.Flags().String("key", "", "API key (will prompt if not provided)")
}

func authManager() (*auth.Manager, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}
	return auth.NewManager(dir, viper.GetViper())
}

// pickProvider shows a selector over all providers. It returns "" when the
// user cancels.
func pickProvider(title string, current llm.ProviderID) (llm.ProviderID, error) {
	var items []ui.SelectorItem
	for _, id := range llm.AllProviderIDs() {
		items = append(items, ui.SelectorItem{
			ID:          string(id),
			Description: llm.EnvVarForProvider(id),
			Current:     id == current,
		})
	}
	final, err := tea.NewProgram(selectorModel{selector: ui.NewSelector(title, items)}).Run()
	if err != nil {
		return "", err
	}
	sel := final.(selectorModel).selector
	return llm.ProviderID(sel.Selected()), nil
}

// selectorModel runs a ui.Selector as a standalone program.
type selectorModel struct {
	selector ui.Selector
}

func (m selectorModel) Init() tea.Cmd { return nil }

func (m selectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.Type == tea.KeyCtrlC {
		m.selector.Cancel()
		return m, tea.Quit
	}
	m.selector.Update(msg)
	if !m.selector.Active() {
		return m, tea.Quit
	}
	return m, nil
}

func (m selectorModel) View() string { return m.selector.View() }

func runAuthConnect(cmd *cobra.Command, args []string) error {
	var providerID llm.ProviderID
	if len(args) == 0 {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("provider is required when not running in a terminal")
		}
		picked, err := pickProvider("Select a provider to connect", "")
		if err != nil {
			return err
		}
		if picked == "" {
			return nil
		}
		providerID = picked
	} else {
		id, err := llm.ParseProviderID(args[0])
		if err != nil {
			return err
		}
		providerID = id
	}

	manager, err := authManager()
	if err != nil {
		return err
	}

	apiKey, _ := cmd.Flags().GetString("key")
	if apiKey == "" {
		if envVar := llm.EnvVarForProvider(providerID); envVar != "" {
			fmt.Printf("Tip: You can also set %s environment variable\n\n", envVar)
		}

		fmt.Printf("Enter API key for %s: ", providerID)
		keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		apiKey = string(keyBytes)
	}
	if apiKey == "" {
		return fmt.Errorf("API key is required")
	}

	if err := manager.SetAPIKey(providerID, apiKey); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	fmt.Printf("%s Connected %s\n", ui.SymbolCheck, providerID)
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := authManager()
	if err != nil {
		return err
	}

	connected := manager.ListConnected()
	if len(connected) == 0 {
		fmt.Println("No providers connected; requests use the built-in rules.")
		fmt.Println("\nUse 'chatchain auth connect <provider>' or set one of:")
		for _, id := range llm.AllProviderIDs() {
			fmt.Printf("  %s\n", llm.EnvVarForProvider(id))
		}
		return nil
	}

	def := manager.GetDefaultProvider()
	fmt.Println("Connected providers:")
	for _, id := range connected {
		marker := "  "
		if id == def {
			marker = "* "
		}
		fmt.Printf("%s%s\n", marker, id)
	}
	if def != "" {
		fmt.Printf("\n* = default provider\n")
	}
	return nil
}

func runAuthDisconnect(cmd *cobra.Command, args []string) error {
	providerID, err := llm.ParseProviderID(args[0])
	if err != nil {
		return err
	}
	manager, err := authManager()
	if err != nil {
		return err
	}
	if err := manager.RemoveCredential(providerID); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}

	fmt.Printf("Removed stored key for %s\n", providerID)
	if manager.HasCredential(providerID) {
		fmt.Printf("Note: %s is still set in the environment or config file\n", llm.EnvVarForProvider(providerID))
	}
	return nil
}

func runAuthDefault(cmd *cobra.Command, args []string) error {
	manager, err := authManager()
	if err != nil {
		return err
	}

	var providerID llm.ProviderID
	switch {
	case len(args) == 1:
		id, err := llm.ParseProviderID(args[0])
		if err != nil {
			return err
		}
		providerID = id
	case term.IsTerminal(int(os.Stdin.Fd())):
		picked, err := pickProvider("Default provider", manager.GetDefaultProvider())
		if err != nil {
			return err
		}
		if picked == "" {
			return nil
		}
		providerID = picked
	default:
		def := manager.GetDefaultProvider()
		if def == "" {
			fmt.Println("No default provider set")
		} else {
			fmt.Printf("Default provider: %s\n", def)
		}
		return nil
	}

	if !manager.HasCredential(providerID) {
		return fmt.Errorf("provider %s is not connected. Connect it first with 'chatchain auth connect %s'", providerID, providerID)
	}
	if err := manager.SetDefaultProvider(providerID); err != nil {
		return fmt.Errorf("failed to set default provider: %w", err)
	}
	fmt.Printf("Default provider set to: %s\n", providerID)
	return nil
}

const authTestPrompt = "swap 1 USDC for ETH"

func runAuthTest(cmd *cobra.Command, args []string) error {
	providerID, err := llm.ParseProviderID(args[0])
	if err != nil {
		return err
	}
	manager, err := authManager()
	if err != nil {
		return err
	}
	apiKey, err := manager.GetAPIKey(providerID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	provider, err := llm.NewProvider(ctx, providerID, apiKey, "")
	if err != nil {
		return err
	}
	fmt.Printf("Parsing %q with %s/%s...\n", authTestPrompt, providerID, provider.DefaultModel())

	res := intent.NewLLMParser(provider).Parse(ctx, authTestPrompt)
	if res.Degraded {
		return fmt.Errorf("%s did not answer; the request fell back to the built-in rules", providerID)
	}
	fmt.Printf("%s %s understood: %s\n", ui.SymbolCheck, providerID, res.Explanation)
	return nil
}
