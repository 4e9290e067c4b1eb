package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yolodolo42/chatchain/internal/agent"
	"github.com/yolodolo42/chatchain/internal/chain"
	"github.com/yolodolo42/chatchain/internal/store"
	"github.com/yolodolo42/chatchain/internal/ui"
)

const turnTimeout = 60 * time.Second

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive terminal chat over the transaction pipeline",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("wallet", "", "address the prepared transactions are for")
	chatCmd.Flags().String("session", "", "resume a chat session id")
}

// chatService is the part of the agent the chat client drives.
type chatService interface {
	Submit(ctx context.Context, req agent.SubmitRequest) (*agent.Turn, error)
	SendForIntent(ctx context.Context, req agent.SendRequest) (*agent.Submission, error)
	TxStatus(ctx context.Context, hash string) (*agent.TxStatusView, error)
	Chat(ctx context.Context, sessionID string) ([]store.ChatMessage, error)
	Intents(ctx context.Context, filter store.IntentLogFilter) ([]store.IntentLog, int, error)
	HasRelayer() bool
	Network() *chain.ChainConfig
}

var _ chatService = (*agent.Agent)(nil)

// chatLine is a rendered entry in the transcript.
type chatLine struct {
	role    string // "user", "assistant", "preview", "error", "system"
	content string
}

type model struct {
	svc       chatService
	sessionID string
	wallet    string
	prompt    ui.Prompt
	viewport  viewport.Model
	spinner   spinner.Model
	confirm   *ui.Selector
	lines     []chatLine
	last      *agent.Turn
	lastHash  string
	loading   bool
	width     int
	height    int
	ready     bool
	quitting  bool
}

type turnMsg struct {
	turn *agent.Turn
	err  error
}

type sentMsg struct {
	sub *agent.Submission
	err error
}

type statusMsg struct {
	view *agent.TxStatusView
	err  error
}

type historyMsg struct {
	logs []store.IntentLog
	err  error
}

func newModel(svc chatService, sessionID, wallet string) model {
	p := ui.NewPrompt("e.g. swap 10 USDC for ETH")
	p.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ui.ColorPrimary)

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	network := svc.Network()
	welcome := fmt.Sprintf("Connected to %s (chain %d). Session %s.\nDescribe a transaction below. Use /help for commands, /quit to exit.",
		network.Name, network.ChainIDInt, sessionID)
	return model{
		svc:       svc,
		sessionID: sessionID,
		wallet:    wallet,
		prompt:    p,
		spinner:   sp,
		lines:     []chatLine{{role: "system", content: welcome}},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadTranscript())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		pCmd  tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}
		if m.confirm != nil {
			return m.updateConfirm(msg)
		}
		if msg.Type == tea.KeyEnter {
			if m.loading {
				return m, nil
			}
			input := strings.TrimSpace(m.prompt.Value())
			if input == "" {
				return m, nil
			}
			m.prompt.Submit()
			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			m.add("user", input)
			m.loading = true
			return m, m.submit(input)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-6)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 6
		}
		m.prompt.SetWidth(msg.Width)
		m.updateViewport()

	case transcriptMsg:
		for _, line := range msg.lines {
			m.add(line.role, line.content)
		}

	case turnMsg:
		m.loading = false
		m.showTurn(msg.turn, msg.err)

	case sentMsg:
		m.loading = false
		if msg.err != nil {
			m.addError(msg.err)
			break
		}
		m.lastHash = msg.sub.TxHash.Hex()
		text := fmt.Sprintf("Submitted %s via %s. Tracking receipt; use /status to check.", m.lastHash, msg.sub.Method)
		if url := m.svc.Network().TxURL(m.lastHash); url != "" {
			text += "\n" + url
		}
		m.add("assistant", text)
		if msg.sub.Warning != "" {
			m.add("error", msg.sub.Warning)
		}

	case statusMsg:
		m.loading = false
		if msg.err != nil {
			m.addError(msg.err)
			break
		}
		m.add("system", formatStatus(msg.view))

	case historyMsg:
		m.loading = false
		if msg.err != nil {
			m.addError(msg.err)
			break
		}
		m.add("system", formatHistory(msg.logs))

	case spinner.TickMsg:
		m.spinner, spCmd = m.spinner.Update(msg)
		return m, spCmd
	}

	_, pCmd = m.prompt.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(pCmd, vpCmd)
}

func (m model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if !m.ready {
		return "Initializing...\n"
	}

	var b strings.Builder
	b.WriteString(ui.TitleStyle.Render("  chatchain") + ui.HelpStyle.Render(" · "+m.svc.Network().Name) + "\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	switch {
	case m.confirm != nil:
		b.WriteString(m.confirm.View())
	case m.loading:
		b.WriteString(fmt.Sprintf("\n  %s Working...\n", m.spinner.View()))
	default:
		b.WriteString("\n" + m.prompt.View() + "\n")
	}

	b.WriteString(ui.HelpStyle.Render("  /help • /send • /status • /history • /new • /quit"))
	return b.String()
}

func (m *model) add(role, content string) {
	m.lines = append(m.lines, chatLine{role: role, content: content})
	m.updateViewport()
}

func (m *model) addError(err error) {
	var chainErr *agent.ChainError
	if errors.As(err, &chainErr) && chainErr.Remediation != "" {
		m.add("error", fmt.Sprintf("%v\n%s", err, chainErr.Remediation))
		return
	}
	m.add("error", err.Error())
}

func (m *model) updateViewport() {
	var content strings.Builder
	for _, line := range m.lines {
		switch line.role {
		case "user":
			content.WriteString(ui.UserStyle.Render("You: "))
			content.WriteString(line.content)
		case "assistant":
			content.WriteString(ui.AssistantStyle.Render("chatchain: "))
			content.WriteString(line.content)
		case "preview":
			content.WriteString(line.content)
		case "error":
			content.WriteString(ui.ErrorStyle.Render("Error: "))
			content.WriteString(line.content)
		case "system":
			content.WriteString(ui.SystemStyle.Render(line.content))
		}
		content.WriteString("\n\n")
	}
	m.viewport.SetContent(content.String())
	m.viewport.GotoBottom()
}

// showTurn renders the assistant reply and the transaction preview.
func (m *model) showTurn(turn *agent.Turn, err error) {
	if err != nil {
		var turnErr *agent.TurnError
		if errors.As(err, &turnErr) {
			if reply, ok := lastReply(turnErr.Messages); ok {
				m.add("assistant", reply)
				return
			}
		}
		m.addError(err)
		return
	}

	m.last = turn
	if reply, ok := lastReply(turn.Messages); ok {
		m.add("assistant", reply)
	}
	m.add("preview", formatPreview(turn))
}

func lastReply(msgs []store.ChatMessage) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if !msgs[i].IsUser {
			return msgs[i].Content, true
		}
	}
	return "", false
}

func formatPreview(turn *agent.Turn) string {
	p := turn.Prepared
	sim := turn.Simulation

	var b strings.Builder
	row := func(branch, label, value string) {
		b.WriteString(fmt.Sprintf("  %s %s %s\n", ui.SystemStyle.Render(branch), ui.PreviewStyle.Render(fmt.Sprintf("%-6s", label)), value))
	}
	row(ui.SymbolTreeBranch, "call", fmt.Sprintf("%s.%s(%s)", p.Contract, p.FunctionName, strings.Join(p.Params, ", ")))
	row(ui.SymbolTreeBranch, "to", p.To.Hex())
	if p.Value != nil && p.Value.Sign() > 0 {
		row(ui.SymbolTreeBranch, "value", p.Value.String()+" wei")
	}
	risk := ui.RiskStyle(string(sim.RiskLevel)).Render(string(sim.RiskLevel))
	row(ui.SymbolTreeBranch, "gas", fmt.Sprintf("%d (risk %s)", sim.GasEstimate, risk))
	if sim.Error != "" {
		row(ui.SymbolTreeBranch, "error", sim.Error)
	}
	row(ui.SymbolTree, "advice", sim.Recommendation)
	b.WriteString(ui.SystemStyle.Render(fmt.Sprintf("  intent %s", turn.Log.ID)))
	return b.String()
}

func formatStatus(v *agent.TxStatusView) string {
	symbol := ui.SymbolArrow
	switch v.Status {
	case chain.TxSuccess:
		symbol = ui.SymbolCheck
	case chain.TxFailed:
		symbol = ui.SymbolCross
	}
	text := fmt.Sprintf("%s %s: %s", symbol, v.Hash, v.Status)
	if v.BlockNumber != nil {
		text += fmt.Sprintf(" in block %d", *v.BlockNumber)
	}
	if v.GasUsed != nil {
		text += fmt.Sprintf(", gas used %d", *v.GasUsed)
	}
	return text
}

func formatHistory(logs []store.IntentLog) string {
	if len(logs) == 0 {
		return "No intents recorded in this session yet."
	}
	var b strings.Builder
	b.WriteString("Intents in this session:")
	for _, l := range logs {
		hash := l.TxHash
		if hash == "" {
			hash = "-"
		}
		b.WriteString(fmt.Sprintf("\n  %s %-9s %-10s %s  %s", ui.SymbolArrow, l.Status, l.Intent.Action, hash, l.Prompt))
	}
	return b.String()
}

const chatHelp = `Available commands:
  /help, /?        - Show this help
  /send            - Send the last prepared transaction with the relayer
  /status [hash]   - Check a transaction (defaults to the last one sent)
  /history         - List intents recorded in this session
  /new             - Start a new session
  /clear           - Clear the screen
  /quit, /exit     - Exit

Example requests:
  "swap 10 USDC for ETH"
  "stake 5 BDAG"
  "send 2 USDC to 0x..."
  "mint an NFT"`

func (m model) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch cmd {
	case "/quit", "/exit", "/q":
		m.quitting = true
		return m, tea.Quit

	case "/help", "/?":
		m.add("system", chatHelp)
		return m, nil

	case "/clear":
		m.lines = nil
		m.add("system", "Screen cleared. Session "+m.sessionID)
		return m, nil

	case "/new":
		m.sessionID = uuid.NewString()
		m.last = nil
		m.lastHash = ""
		m.lines = nil
		m.add("system", "New session "+m.sessionID)
		return m, nil

	case "/send":
		if m.last == nil {
			m.add("error", "Nothing to send yet. Describe a transaction first.")
			return m, nil
		}
		if !m.svc.HasRelayer() {
			m.add("error", "No relayer is configured. Sign the prepared call with your wallet and report the hash through the API.")
			return m, nil
		}
		sel := ui.NewSelector("Send "+m.last.Prepared.Description+"?", []ui.SelectorItem{
			{ID: "send", Label: "Send with relayer"},
			{ID: "cancel", Label: "Cancel"},
		})
		m.confirm = &sel
		return m, nil

	case "/status":
		hash := arg
		if hash == "" {
			hash = m.lastHash
		}
		if hash == "" {
			m.add("error", "Usage: /status <tx hash>")
			return m, nil
		}
		m.loading = true
		return m, m.status(hash)

	case "/history":
		m.loading = true
		return m, m.history()

	default:
		m.add("error", fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd))
		return m, nil
	}
}

func (m model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.confirm.Update(msg)
	if m.confirm.Active() {
		return m, nil
	}
	choice := m.confirm.Selected()
	m.confirm = nil
	if choice != "send" {
		m.add("system", "Not sent.")
		return m, nil
	}
	m.loading = true
	return m, m.send(m.last.Log.ID)
}

func (m model) submit(input string) tea.Cmd {
	req := agent.SubmitRequest{Prompt: input, SessionID: m.sessionID, UserAddress: m.wallet}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
		defer cancel()
		turn, err := m.svc.Submit(ctx, req)
		return turnMsg{turn: turn, err: err}
	}
}

func (m model) send(intentID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
		defer cancel()
		sub, err := m.svc.SendForIntent(ctx, agent.SendRequest{IntentID: intentID})
		return sentMsg{sub: sub, err: err}
	}
}

func (m model) status(hash string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
		defer cancel()
		view, err := m.svc.TxStatus(ctx, hash)
		return statusMsg{view: view, err: err}
	}
}

func (m model) history() tea.Cmd {
	sessionID := m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
		defer cancel()
		logs, _, err := m.svc.Intents(ctx, store.IntentLogFilter{SessionID: sessionID})
		return historyMsg{logs: logs, err: err}
	}
}

type transcriptMsg struct {
	lines []chatLine
}

// loadTranscript replays an existing session when resuming.
func (m model) loadTranscript() tea.Cmd {
	sessionID := m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
		defer cancel()
		msgs, err := m.svc.Chat(ctx, sessionID)
		if err != nil || len(msgs) == 0 {
			return nil
		}
		lines := make([]chatLine, 0, len(msgs))
		for _, msg := range msgs {
			role := "assistant"
			if msg.IsUser {
				role = "user"
			}
			lines = append(lines, chatLine{role: role, content: msg.Content})
		}
		return transcriptMsg{lines: lines}
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	// The alt screen owns the terminal, so logs go to a file.
	logger, closeLog := fileLogger(cfg, "chat.log")
	defer closeLog()

	keys, err := authManager()
	if err != nil {
		return err
	}
	rt, err := buildRuntime(cmd.Context(), cfg, keys, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer rt.Close()

	wallet, _ := cmd.Flags().GetString("wallet")
	session, _ := cmd.Flags().GetString("session")

	p := tea.NewProgram(newModel(rt.agent, session, wallet), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
