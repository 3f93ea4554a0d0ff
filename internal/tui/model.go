package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"clarity/internal/scheduler"
	"clarity/internal/study"
)

// RaterPort is the TUI-facing subset of the study service.
type RaterPort interface {
	Rate(cardID string, r scheduler.Rating) (*study.CardView, error)
}

// RaterFunc adapts a function to RaterPort.
type RaterFunc func(cardID string, r scheduler.Rating) (*study.CardView, error)

func (f RaterFunc) Rate(cardID string, r scheduler.Rating) (*study.CardView, error) { return f(cardID, r) }

var ratingKeys = map[string]scheduler.Rating{
	"1": scheduler.Again,
	"2": scheduler.Hard,
	"3": scheduler.Good,
	"4": scheduler.Easy,
}

// Model is the Bubble Tea model for one study session over a queue of cards.
type Model struct {
	rater    RaterPort
	deck     string
	cards    []study.CardView
	index    int
	revealed bool
	counts   map[scheduler.Rating]int
	status   string
	viewport viewport.Model
	ready    bool
	now      func() time.Time
}

// New creates a study session for the given queue.
func New(rater RaterPort, deck string, cards []study.CardView) Model {
	m := Model{
		rater:    rater,
		deck:     deck,
		cards:    cards,
		counts:   map[scheduler.Rating]int{},
		viewport: viewport.New(0, 0),
		now:      time.Now,
		status:   "Space to reveal, 1-4 to rate, q to quit.",
	}
	if len(cards) == 0 {
		m.status = "Nothing due. Come back later or study in practice mode."
	}
	m.viewport.SetContent(m.renderCard())
	return m
}

func (m Model) Init() tea.Cmd { return nil }

// Done reports whether every card in the queue has been rated.
func (m Model) Done() bool { return m.index >= len(m.cards) }

// Reviewed returns how many cards were rated with each button.
func (m Model) Reviewed() map[scheduler.Rating]int { return m.counts }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := cardStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width-4)
		m.viewport.Height = max(3, msg.Height-6-fh)
		m.viewport.SetContent(m.renderCard())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch key := msg.String(); key {
		case "q", "esc":
			return m, tea.Quit
		case " ", "enter":
			if !m.Done() && !m.revealed {
				m.revealed = true
				m.viewport.SetContent(m.renderCard())
				return m, nil
			}
			if m.Done() {
				return m, tea.Quit
			}
		case "1", "2", "3", "4":
			if m.Done() || !m.revealed {
				return m, nil
			}
			return m.rate(ratingKeys[key])
		}
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) rate(r scheduler.Rating) (tea.Model, tea.Cmd) {
	card := m.cards[m.index]
	view, err := m.rater.Rate(card.ID, r)
	if err != nil {
		m.status = "Error: " + err.Error()
		return m, nil
	}
	m.counts[r]++
	m.status = fmt.Sprintf("%s: next review in %s", capitalize(r.String()), days(view.Interval))
	if view.IsMastered {
		m.status += " (mastered)"
	}
	m.index++
	m.revealed = false
	m.viewport.SetContent(m.renderCard())
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("Clarity study: " + m.deck)
	progress := mutedStyle.Render(fmt.Sprintf("Card %d/%d", min(m.index+1, len(m.cards)), len(m.cards)))
	body := cardStyle.Render(m.viewport.View())
	status := statusStyle.Render(m.status)
	return header + "  " + progress + "\n" + body + "\n" + m.renderHints() + "\n" + status
}

func (m Model) renderCard() string {
	if m.Done() {
		return m.renderSummary()
	}
	c := m.cards[m.index]
	var b strings.Builder
	b.WriteString(frontStyle.Render(c.Front))
	if c.IsNew {
		b.WriteString("  " + mutedStyle.Render("new"))
	}
	if m.revealed {
		b.WriteString("\n\n" + backStyle.Render(c.Back))
	}
	return b.String()
}

func (m Model) renderSummary() string {
	if len(m.cards) == 0 {
		return "No cards to study."
	}
	parts := make([]string, 0, len(scheduler.Ratings))
	for _, r := range scheduler.Ratings {
		parts = append(parts, fmt.Sprintf("%s %d", r, m.counts[r]))
	}
	return fmt.Sprintf("Session complete: %d cards reviewed.\n\n%s", len(m.cards), strings.Join(parts, "  "))
}

// renderHints shows the interval each button would give the current card.
func (m Model) renderHints() string {
	if m.Done() {
		return mutedStyle.Render("Press q to quit.")
	}
	if !m.revealed {
		return mutedStyle.Render("[space] show answer")
	}
	preview := scheduler.Preview(m.cards[m.index].State(), m.now())
	hints := make([]string, 0, len(scheduler.Ratings))
	for i, r := range scheduler.Ratings {
		hints = append(hints, fmt.Sprintf("[%d] %s (%s)", i+1, r, days(preview[r].Interval)))
	}
	return hintStyle.Render(strings.Join(hints, "  "))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	cardStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	frontStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	backStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)
