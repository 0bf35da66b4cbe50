// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-oriented chat.
//
// Command: chat
//
// Examples:
//
//	localtalk chat
//	localtalk chat --model gemma3:4b
//	localtalk chat --backend openai
//
// Interactive commands:
//
//	/help, /h        Show available commands
//	/reset, /clear   Start a new conversation
//	/status, /s      Show model status and what the assistant knows
//	/check           Re-run the availability check
//	/download        Start the model download
//	/detail [n]      Show the full response and thinking of answer n
//	/log             Show the conversation history
//	/quit, /q        Exit
//	Ctrl+C           Cancel the current answer
//	Ctrl+D           Exit
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"

	"github.com/jeranaias/localtalk/internal/model"
	"github.com/jeranaias/localtalk/internal/orchestrator"
)

// replPrompt is plain text: liner measures the prompt and cannot skip
// escape sequences.
const replPrompt = "you> "

// Repl is an interactive line-oriented chat over one App.
type Repl struct {
	app   *App
	out   io.Writer
	quiet bool

	renderer *glamour.TermRenderer

	// printed holds the IDs of messages already written to out.
	printed map[string]bool
	// answers are the structured AI messages in print order, for /detail.
	answers []*model.Message

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewRepl creates a Repl writing to out. Markdown rendering is used only
// when out is a terminal.
func NewRepl(app *App, out io.Writer, markdown, quiet bool) *Repl {
	r := &Repl{
		app:     app,
		out:     out,
		quiet:   quiet,
		printed: make(map[string]bool),
	}
	if markdown {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(GetTerminalWidth()-4),
		)
		if err == nil {
			r.renderer = renderer
		}
	}
	return r
}

// HandleChat handles the "chat" command.
func HandleChat(args Args) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}

	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	// Voice is not offered here: transcripts could arrive while liner owns
	// the terminal.
	cfg.Speech.Enabled = false
	cfg.Speech.TranscriptFile = ""

	app, err := NewApp(cfg, appOptions{logToFile: !args.Verbose})
	if err != nil {
		return err
	}
	defer app.Close()

	repl := NewRepl(app, os.Stdout, IsStdoutTTY(), args.Quiet)
	return repl.Run(context.Background())
}

// Run checks availability, then reads lines until /quit, Ctrl+C at the
// prompt or EOF.
func (r *Repl) Run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeSlash)

	if !r.quiet {
		r.printWelcome()
	}
	r.app.Start(ctx)
	r.printStatus(r.app.Conv.Snapshot())

	// Ctrl+C outside the prompt cancels the answer being generated.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if r.cancelTurn() {
				fmt.Fprintln(r.out, "\n"+WarningStyle.Render("[Cancelled]"))
			}
		}
	}()

	for {
		input, err := line.Prompt(replPrompt)
		if err != nil {
			// liner.ErrPromptAborted (Ctrl+C) or io.EOF (Ctrl+D)
			fmt.Fprintln(r.out)
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") && input != orchestrator.LogCommand {
			if !r.handleSlash(ctx, input) {
				return nil
			}
			continue
		}
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		r.submit(ctx, input)
	}
}

// submit runs one turn and prints what it added.
func (r *Repl) submit(ctx context.Context, text string) {
	turnCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		cancel()
	}()

	if !r.quiet {
		fmt.Fprintln(r.out, DimStyle.Render("..."))
	}
	err := r.app.Conv.SubmitTurn(turnCtx, text)
	switch {
	case err == nil:
	case errors.Is(err, orchestrator.ErrUnavailable):
		fmt.Fprintln(r.out, ErrorStyle.Render("[X]")+" AI機能が利用できません。/check で再確認できます。")
		return
	case errors.Is(err, orchestrator.ErrTurnInFlight):
		fmt.Fprintln(r.out, WarningStyle.Render("[!]")+" 応答を待っています。")
		return
	default:
		fmt.Fprintf(r.out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		return
	}
	r.printNew(r.app.Conv.Snapshot())
}

func (r *Repl) cancelTurn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	r.cancel = nil
	return true
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

var slashCommands = []string{"/help", "/reset", "/status", "/check", "/download", "/detail", "/log", "/quit"}

func completeSlash(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}
	var out []string
	for _, c := range slashCommands {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}
	return out
}

// handleSlash runs a slash command. It returns false to end the session.
func (r *Repl) handleSlash(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])

	switch cmd {
	case "/quit", "/q", "/exit":
		return false

	case "/help", "/h", "/?":
		r.printHelp()

	case "/reset", "/clear", "/c":
		r.app.Conv.ResetConversation()
		r.printed = make(map[string]bool)
		r.answers = nil
		fmt.Fprintln(r.out, SuccessStyle.Render("[OK]")+" 新しい会話を始めます。")

	case "/status", "/s":
		r.printStatus(r.app.Conv.Snapshot())
		r.printContext(r.app.Conv.Snapshot())

	case "/check":
		st := r.app.Conv.CheckAvailability(ctx)
		fmt.Fprintln(r.out, RenderModelStatus(st))

	case "/download":
		st := r.app.Conv.Snapshot().ModelStatus
		if st.Status != model.StatusDownloadable {
			fmt.Fprintln(r.out, WarningStyle.Render("[!]")+" ダウンロードできる状態ではありません: "+st.Status.String())
			return true
		}
		res := r.app.Conv.BeginModelDownload(ctx)
		if !res.Started {
			fmt.Fprintf(r.out, "%s %v\n", ErrorStyle.Render("[X]"), res.Err)
			return true
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("[OK]")+" ダウンロードを開始しました。/status で進捗を確認できます。")

	case "/detail", "/d":
		r.printDetail(fields[1:])

	default:
		fmt.Fprintf(r.out, "%s unknown command %s (try /help)\n", WarningStyle.Render("[!]"), cmd)
	}
	return true
}

// =============================================================================
// OUTPUT
// =============================================================================

// printNew prints messages not yet shown. User messages were typed by the
// user and are only recorded.
func (r *Repl) printNew(st orchestrator.State) {
	for _, m := range st.Messages {
		if m.Streaming || r.printed[m.ID] {
			continue
		}
		r.printed[m.ID] = true

		switch m.Sender {
		case model.SenderUser:
			continue
		case model.SenderSystem:
			fmt.Fprintln(r.out, DimStyle.Render(m.Text()))
		case model.SenderAI:
			r.printAnswer(m)
		}
	}
}

func (r *Repl) printAnswer(m *model.Message) {
	sp, structured := m.Structured()
	label := PromptStyle.Render("ai>")
	if structured && sp.IsJSON {
		r.answers = append(r.answers, m)
		label = PromptStyle.Render(fmt.Sprintf("ai[%d]>", len(r.answers)))
	}

	fmt.Fprintln(r.out, label)
	fmt.Fprintln(r.out, r.render(m.Text()))

	if structured && len(sp.Topics) > 0 {
		tags := make([]string, len(sp.Topics))
		for i, t := range sp.Topics {
			tags[i] = "#" + t
		}
		fmt.Fprintln(r.out, TopicStyle.Render(strings.Join(tags, " ")))
	}
}

// render returns text as terminal markdown, or unchanged when rendering is
// off or fails.
func (r *Repl) render(text string) string {
	if r.renderer == nil {
		return text
	}
	out, err := r.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// printDetail shows the full response and thinking trace of answer n
// (default: the latest).
func (r *Repl) printDetail(args []string) {
	if len(r.answers) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("詳細を表示できる応答はまだありません。"))
		return
	}
	n := len(r.answers)
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 || v > len(r.answers) {
			fmt.Fprintf(r.out, "%s /detail 1-%d\n", WarningStyle.Render("[!]"), len(r.answers))
			return
		}
		n = v
	}

	m := r.answers[n-1]
	r.app.Conv.ToggleMessageExpansion(m.ID)
	sp, _ := m.Structured()

	fmt.Fprintln(r.out, TitleStyle.Render(fmt.Sprintf("応答 %d の詳細", n)))
	if len(sp.Thinking) > 0 {
		fmt.Fprintln(r.out, LabelStyle.Render("思考"))
		for _, t := range sp.Thinking {
			fmt.Fprintf(r.out, "  %s: %s\n", t.Key, t.Value)
		}
	}
	fmt.Fprintln(r.out, LabelStyle.Render("全文"))
	fmt.Fprintln(r.out, r.render(sp.FullResponse))
}

func (r *Repl) printWelcome() {
	cfg := r.app.Config
	fmt.Fprintln(r.out, TitleStyle.Render("localtalk "+Version))
	fmt.Fprintf(r.out, "%s %s (%s)\n", RenderLabel("Model"), ValueStyle.Render(cfg.Engine.Model), cfg.Engine.Backend)
	fmt.Fprintln(r.out, DimStyle.Render("/help でコマンド一覧、Ctrl+D で終了します。"))
	fmt.Fprintln(r.out, RenderSeparator(0))
}

func (r *Repl) printStatus(st orchestrator.State) {
	fmt.Fprintln(r.out, RenderModelStatus(st.ModelStatus))
}

func (r *Repl) printContext(st orchestrator.State) {
	name := st.Context.UserName
	if name == "" {
		name = "-"
	}
	fmt.Fprintf(r.out, "%s %s\n", RenderLabel("Name"), name)
	topics := st.Context.Topics.List()
	if len(topics) == 0 {
		topics = []string{"-"}
	}
	fmt.Fprintf(r.out, "%s %s\n", RenderLabel("Topics"), strings.Join(topics, ", "))
	fmt.Fprintf(r.out, "%s %d\n", RenderLabel("History"), st.HistoryLen)
	if st.Summary != "" {
		fmt.Fprintf(r.out, "%s %s\n", RenderLabel("Summary"), st.Summary)
	}
}

func (r *Repl) printHelp() {
	lines := [][2]string{
		{"/help", "このヘルプ"},
		{"/reset", "新しい会話を始める"},
		{"/status", "モデルの状態と会話の文脈"},
		{"/check", "AI機能を再確認"},
		{"/download", "モデルのダウンロードを開始"},
		{"/detail [n]", "応答 n の全文と思考"},
		{"/log", "会話履歴を表示"},
		{"/quit", "終了"},
	}
	for _, l := range lines {
		fmt.Fprintf(r.out, "  %s %s\n", RenderLabel(l[0]), DimStyle.Render(l[1]))
	}
}
