// Package tui provides the Bubble Tea race interface.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ferrovax/keyrace/internal/coordinator"
	"github.com/ferrovax/keyrace/internal/model"
)

var (
	correctStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	incorrectStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	pendingStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	currentWordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	opponentMark     = lipgloss.Color("#2E4A6B")
	footerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	bannerStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A"))
	winStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#52C41A"))
	lossStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF4D4F"))
)

const progressBarWidth = 30

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Duration(coordinator.DefaultBotTickMs)*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model implements the Bubble Tea race UI on top of a coordinator.
type Model struct {
	coord *coordinator.Coordinator

	width  int
	height int

	localBar  progress.Model
	remoteBar progress.Model
}

// NewModel constructs a race TUI model.
func NewModel(coord *coordinator.Coordinator) *Model {
	localBar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	localBar.Width = progressBarWidth
	remoteBar := progress.New(progress.WithSolidFill("#8C8C8C"), progress.WithoutPercentage())
	remoteBar.Width = progressBarWidth
	return &Model{
		coord:     coord,
		localBar:  localBar,
		remoteBar: remoteBar,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		m.coord.Advance()
		st := m.coord.State()
		if st.Status == model.StatusWaiting && st.Opponent != nil && m.coord.LocalID() == st.HostID {
			// Opponent is in; the host kicks off the countdown.
			if err := m.coord.StartCountdown(); err != nil {
				return m, tick()
			}
		}
		return m, tick()
	case tea.KeyMsg:
		return m.updateKey(msg)
	default:
		return m, nil
	}
}

func (m *Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	st := m.coord.State()
	if st.Status.Terminal() {
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEnter, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyRunes:
			if string(msg.Runes) == "q" {
				return m, tea.Quit
			}
		}
		return m, nil
	}
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.coord.Cancel()
		return m, tea.Quit
	case tea.KeyBackspace, tea.KeyDelete:
		m.coord.HandleBackspace()
		return m, nil
	case tea.KeySpace:
		m.coord.HandleKeystroke(' ')
		return m, nil
	case tea.KeyRunes:
		for _, r := range msg.Runes {
			m.coord.HandleKeystroke(r)
		}
		return m, nil
	default:
		return m, nil
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	st := m.coord.State()
	switch st.Status {
	case model.StatusWaiting:
		return m.viewWaiting(st)
	case model.StatusCountdown:
		return m.viewCountdown()
	case model.StatusActive:
		return m.viewRace(st)
	default:
		return m.viewResult(st)
	}
}

func (m *Model) viewWaiting(st model.RaceState) string {
	content := fmt.Sprintf("Room %s\n\nWaiting for an opponent to join...", st.RoomCode)
	return m.center(content)
}

func (m *Model) viewCountdown() string {
	remaining := m.coord.CountdownRemainingMs()
	secs := (remaining + 999) / 1000
	banner := bannerStyle.Render(fmt.Sprintf("Race starts in %d", secs))
	return m.center(banner)
}

func (m *Model) viewRace(st model.RaceState) string {
	target := []rune(st.ExpectedText)
	input := []rune(m.coord.TypedText())
	cursorIndex := -1
	if len(input) < len(target) {
		cursorIndex = len(input)
	}
	_, remote := m.splitPlayers(st)
	styledRunes := buildStyledRunes(target, input, cursorIndex, opponentCursor(remote, len(target)))
	if m.width == 0 || m.height == 0 {
		return renderStyledRunes(styledRunes)
	}
	contentWidth := int(float64(m.width) * 0.70)
	if contentWidth < 1 {
		contentWidth = 1
	}
	wrapped := wrapStyledRunes(styledRunes, contentWidth)
	content := lipgloss.NewStyle().Width(contentWidth).Render(wrapped)
	footer := m.renderPlayers(st)
	if footer == "" || m.height < 5 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	footerHeight := lipgloss.Height(footer)
	bodyHeight := m.height - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	body := lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center, content)
	footerBlock := lipgloss.Place(m.width, footerHeight, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerBlock
}

func (m *Model) renderPlayers(st model.RaceState) string {
	local, remote := m.splitPlayers(st)
	lines := []string{playerLine("you", local, m.localBar)}
	if remote != nil {
		lines = append(lines, playerLine(opponentName(*remote), *remote, m.remoteBar))
	}
	return footerStyle.Render(strings.Join(lines, "\n"))
}

func playerLine(name string, p model.PlayerState, bar progress.Model) string {
	return fmt.Sprintf("%-8s %s %5.1f%%  %5.1f WPM", name, bar.ViewAs(p.Progress/100), p.Progress, p.WPM)
}

func (m *Model) viewResult(st model.RaceState) string {
	if st.Status == model.StatusCancelled {
		return m.center("Race cancelled.\n\nPress enter to exit.")
	}
	local, remote := m.splitPlayers(st)

	var headline string
	switch {
	case st.IsTie:
		headline = bannerStyle.Render("It's a tie!")
	case st.WinnerID == m.coord.LocalID():
		headline = winStyle.Render("You win!")
	case st.WinnerID != "":
		headline = lossStyle.Render("You lose.")
	default:
		headline = bannerStyle.Render("Race over.")
	}

	lines := []string{headline, ""}
	lines = append(lines, resultLine("you", local))
	if remote != nil {
		lines = append(lines, resultLine(opponentName(*remote), *remote))
	}
	lines = append(lines, "", "Press enter to exit.")
	return m.center(strings.Join(lines, "\n"))
}

func resultLine(name string, p model.PlayerState) string {
	return fmt.Sprintf("%-8s %5.1f WPM  %6.2f%% accuracy  %5.1f%% done", name, p.WPM, p.Accuracy, p.Progress)
}

func (m *Model) splitPlayers(st model.RaceState) (model.PlayerState, *model.PlayerState) {
	if m.coord.LocalID() == st.Host.ID {
		return st.Host, st.Opponent
	}
	if st.Opponent != nil {
		return *st.Opponent, &st.Host
	}
	return st.Host, nil
}

func opponentName(p model.PlayerState) string {
	if p.IsBot {
		return fmt.Sprintf("bot L%d", p.BotLevel)
	}
	if p.ID == "" {
		return "peer"
	}
	name := p.ID
	if len(name) > 8 {
		name = name[:8]
	}
	return name
}

func (m *Model) center(content string) string {
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}
