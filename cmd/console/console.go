package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/harrylevesque/scanfulfill/internal/config"
	"github.com/harrylevesque/scanfulfill/internal/confirm"
	"github.com/harrylevesque/scanfulfill/internal/models"
)

type stationControl interface {
	Scan(ctx context.Context, ev models.ScanEvent) models.Decision
	Reset()
}

type resolver interface {
	Resolve(id string, v models.Verdict) error
}

type settingsStore interface {
	Settings() config.Settings
	Save(s config.Settings) error
}

var settingLabels = map[string]string{
	config.KeyEndpointURL:   "API URL",
	config.KeyCredential:    "API key",
	config.KeyCategory:      "Category",
	config.KeyVolunteerCode: "Volunteer code",
}

type styles struct {
	title   lipgloss.Style
	faint   lipgloss.Style
	failure lipgloss.Style
	box     lipgloss.Style
	r       *lipgloss.Renderer
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		title:   r.NewStyle().Bold(true),
		faint:   r.NewStyle().Faint(true),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color(models.StatusError.IndicatorColor())),
		box:     r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		r:       r,
	}
}

func (s styles) indicator(st models.Status) string {
	dot := s.r.NewStyle().Foreground(lipgloss.Color(st.IndicatorColor())).Render("●")
	return dot + " " + string(st)
}

// Console is the interactive operator surface. Input lines are scans
// unless a confirmation or a settings question is open, or the line is
// a ":" command.
type Console struct {
	station  stationControl
	queue    resolver
	settings settingsStore
	st       styles

	// mu guards out; failures arrive from transaction goroutines.
	mu  sync.Mutex
	out io.Writer

	prompt  *confirm.Prompt
	editing []string
	draft   config.Settings
}

// NewConsole returns a Console writing to out. It is the station's
// notifier, so it exists before the station; Bind connects the two.
func NewConsole(out io.Writer) *Console {
	return &Console{st: newStyles(out), out: out}
}

func (c *Console) Bind(station stationControl, queue resolver, settings settingsStore) {
	c.station = station
	c.queue = queue
	c.settings = settings
}

// Run handles input, status changes and confirmation prompts until
// lines closes, ctx is done or the operator types :quit.
func (c *Console) Run(ctx context.Context, lines <-chan models.ScanEvent, statuses <-chan models.Status, prompts <-chan confirm.Prompt) error {
	c.printf("%s\n", c.st.faint.Render("Scan a code, or type :settings, :reset or :quit."))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.handleLine(ctx, ev); quit {
				return nil
			}
		case st, ok := <-statuses:
			if ok {
				c.printf("%s\n", c.st.indicator(st))
			}
		case p, ok := <-prompts:
			if ok {
				c.showPrompt(p)
			}
		}
	}
}

func (c *Console) handleLine(ctx context.Context, ev models.ScanEvent) bool {
	text := strings.TrimSpace(ev.Text)
	switch {
	case len(c.editing) > 0:
		c.answerSetting(text)
	case c.prompt != nil:
		c.answerPrompt(text)
	case strings.HasPrefix(text, ":"):
		return c.command(text)
	default:
		c.station.Scan(ctx, models.ScanEvent{Text: text, ObservedAt: ev.ObservedAt})
	}
	return false
}

func (c *Console) command(cmd string) bool {
	switch cmd {
	case ":quit", ":q":
		return true
	case ":reset":
		c.station.Reset()
	case ":settings":
		c.startEditing(config.Keys)
	default:
		c.printf("%s\n", c.st.faint.Render("unknown command "+cmd))
	}
	return false
}

func (c *Console) showPrompt(p confirm.Prompt) {
	c.prompt = &p
	body := fmt.Sprintf("%s\nOrder:       %s\nSize:        %s\nParticipant: %s",
		c.st.title.Render("Confirm delivery"), p.Order.ID, p.Order.Size, p.Order.ParticipantEmail)
	c.printf("%s\nDeliver? [y/n] ", c.st.box.Render(body))
}

func (c *Console) answerPrompt(text string) {
	v, ok := models.ParseVerdict(strings.ToLower(text))
	if !ok {
		c.printf("Deliver? [y/n] ")
		return
	}
	id := c.prompt.ID
	c.prompt = nil
	if err := c.queue.Resolve(id, v); err != nil {
		c.printf("%s\n", c.st.faint.Render("confirmation expired"))
	}
}

func (c *Console) startEditing(keys []string) {
	c.editing = append([]string(nil), keys...)
	c.draft = c.settings.Settings()
	c.askSetting()
}

func (c *Console) askSetting() {
	key := c.editing[0]
	current := c.draft.Value(key)
	if key == config.KeyCredential && current != "" {
		current = "set"
	}
	hint := ""
	if current != "" {
		hint = c.st.faint.Render(" [" + current + ", enter to keep]")
	}
	c.printf("%s%s: ", settingLabels[key], hint)
}

// answerSetting stores text for the key being asked; an empty answer
// keeps the current value.
func (c *Console) answerSetting(text string) {
	key := c.editing[0]
	c.editing = c.editing[1:]
	if text != "" {
		c.draft, _ = c.draft.With(key, text)
	}
	if len(c.editing) > 0 {
		c.askSetting()
		return
	}
	if err := c.settings.Save(c.draft); err != nil {
		c.failure("Settings not saved", err.Error())
		return
	}
	c.printf("%s\n", c.st.title.Render("Settings saved."))
}

func (c *Console) failure(title, message string) {
	c.printf("%s\n%s\n", c.st.failure.Render(title), message)
}

// Failure implements fulfill.Notifier.
func (c *Console) Failure(title, message string) { c.failure(title, message) }

// SettingsRequired implements fulfill.Notifier. It is called from Scan
// on the Run goroutine, so the next input lines answer the questions.
func (c *Console) SettingsRequired(missing []string) {
	c.printf("%s\n", c.st.failure.Render("Settings incomplete"))
	c.startEditing(missing)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
