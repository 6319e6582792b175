package shell

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Backend is the shell-facing subset of Client.
type Backend interface {
	SignUp(ctx context.Context, form SignUpForm) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Append(ctx context.Context, about, documentPath string) (*AppendResult, error)
	Ask(ctx context.Context, question string) (*Answer, error)
	Logout()
}

type viewState int

const (
	viewWelcome viewState = iota
	viewSignUp
	viewLogin
	viewMenu
	viewAddInfo
	viewRetrieve
)

var (
	welcomeChoices = []string{"Sign up", "Log in"}
	menuChoices    = []string{"Add Info", "Retrieve Info", "Log out"}
)

// turn is one exchange shown in the history. It lives only in memory.
type turn struct {
	question string
	answer   string
}

type authDoneMsg struct {
	res *AuthResult
	err error
}

type appendDoneMsg struct {
	res *AppendResult
	err error
}

type answerMsg struct {
	res *Answer
	err error
}

type Model struct {
	ctx     context.Context
	backend Backend

	state   viewState
	cursor  int
	form    form
	history []turn
	pending bool
	status  string
	err     error
	email   string

	viewport viewport.Model
	width    int
	height   int
}

func New(ctx context.Context, backend Backend) *Model {
	return &Model{
		ctx:      ctx,
		backend:  backend,
		state:    viewWelcome,
		viewport: viewport.New(80, 12),
	}
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = max(20, msg.Width-4)
		m.viewport.Height = max(3, msg.Height-12)
		m.viewport.SetContent(m.renderHistory())
		return m, nil

	case authDoneMsg:
		m.pending = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = msg.res.Message
		m.email = m.form.value("email")
		m.enter(viewMenu)
		return m, nil

	case appendDoneMsg:
		m.pending = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("%s (%d chunks)", msg.res.Message, msg.res.Chunks)
		m.enter(viewMenu)
		return m, nil

	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = ""
		m.history = append(m.history, turn{question: msg.res.Question, answer: msg.res.Response})
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		m.form.reset()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.pending {
			return m, nil
		}
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.state {
	case viewWelcome, viewMenu:
		return m.handleChoice(msg)
	}

	switch msg.Type {
	case tea.KeyEsc:
		m.err = nil
		if m.state == viewSignUp || m.state == viewLogin {
			m.enter(viewWelcome)
		} else {
			m.enter(viewMenu)
		}
		return m, nil
	case tea.KeyTab, tea.KeyDown:
		m.form.next()
		return m, nil
	case tea.KeyShiftTab, tea.KeyUp:
		m.form.prev()
		return m, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case tea.KeyEnter:
		if !m.form.last() {
			m.form.next()
			return m, nil
		}
		return m.submit()
	}

	return m, m.form.update(msg)
}

func (m *Model) handleChoice(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	choices := m.choices()
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		m.cursor = (m.cursor - 1 + len(choices)) % len(choices)
	case "down", "j":
		m.cursor = (m.cursor + 1) % len(choices)
	case "enter":
		m.err = nil
		m.status = ""
		switch choices[m.cursor] {
		case "Sign up":
			m.enter(viewSignUp)
		case "Log in":
			m.enter(viewLogin)
		case "Add Info":
			m.enter(viewAddInfo)
		case "Retrieve Info":
			m.enter(viewRetrieve)
		case "Log out":
			m.backend.Logout()
			m.history = nil
			m.email = ""
			m.viewport.SetContent("")
			m.status = "Logged out"
			m.enter(viewWelcome)
		}
	}
	return m, nil
}

func (m *Model) choices() []string {
	if m.state == viewWelcome {
		return welcomeChoices
	}
	return menuChoices
}

func (m *Model) enter(state viewState) {
	m.state = state
	m.cursor = 0
	switch state {
	case viewSignUp:
		m.form = newForm(
			field{key: "first_name", label: "First name"},
			field{key: "last_name", label: "Last name"},
			field{key: "email", label: "Email"},
			field{key: "password", label: "Password", secret: true},
			field{key: "about", label: "About you"},
			field{key: "document", label: "Document path (.txt, .md, .pdf, .docx)"},
		)
	case viewLogin:
		m.form = newForm(
			field{key: "email", label: "Email"},
			field{key: "password", label: "Password", secret: true},
		)
	case viewAddInfo:
		m.form = newForm(
			field{key: "about", label: "About"},
			field{key: "document", label: "Document path (.txt, .md, .pdf, .docx)"},
		)
	case viewRetrieve:
		m.form = newForm(field{key: "query", label: "Ask a question"})
		m.viewport.SetContent(m.renderHistory())
	default:
		m.form = form{}
	}
}

func (m *Model) submit() (tea.Model, tea.Cmd) {
	if missing := m.form.missing(); missing != "" {
		m.err = fmt.Errorf("%s is required", missing)
		return m, nil
	}
	m.err = nil
	m.pending = true

	ctx, backend, f := m.ctx, m.backend, m.form
	switch m.state {
	case viewSignUp:
		m.status = "Signing up..."
		return m, func() tea.Msg {
			res, err := backend.SignUp(ctx, SignUpForm{
				FirstName:    f.value("first_name"),
				LastName:     f.value("last_name"),
				Email:        f.value("email"),
				Password:     f.value("password"),
				About:        f.value("about"),
				DocumentPath: f.value("document"),
			})
			return authDoneMsg{res: res, err: err}
		}
	case viewLogin:
		m.status = "Logging in..."
		return m, func() tea.Msg {
			res, err := backend.Login(ctx, f.value("email"), f.value("password"))
			return authDoneMsg{res: res, err: err}
		}
	case viewAddInfo:
		m.status = "Uploading..."
		return m, func() tea.Msg {
			res, err := backend.Append(ctx, f.value("about"), f.value("document"))
			return appendDoneMsg{res: res, err: err}
		}
	case viewRetrieve:
		m.status = "Thinking..."
		return m, func() tea.Msg {
			res, err := backend.Ask(ctx, f.value("query"))
			return answerMsg{res: res, err: err}
		}
	}
	m.pending = false
	return m, nil
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Personal Assistant"))
	if m.email != "" {
		b.WriteString(dimStyle.Render("  " + m.email))
	}
	b.WriteString("\n\n")

	switch m.state {
	case viewWelcome, viewMenu:
		for i, c := range m.choices() {
			if i == m.cursor {
				b.WriteString(selectedStyle.Render("> " + c))
			} else {
				b.WriteString("  " + c)
			}
			b.WriteString("\n")
		}
		b.WriteString(dimStyle.Render("\nup/down to move, enter to select, q to quit"))
	case viewRetrieve:
		b.WriteString(boxStyle.Render(m.viewport.View()))
		b.WriteString("\n")
		b.WriteString(m.form.view())
		b.WriteString(dimStyle.Render("\nenter to ask, pgup/pgdown to scroll, esc for menu"))
	default:
		b.WriteString(m.form.view())
		b.WriteString(dimStyle.Render("\ntab to move, enter to submit, esc to go back"))
	}

	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
	} else if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
	}
	return b.String()
}

func (m *Model) renderHistory() string {
	if len(m.history) == 0 {
		return dimStyle.Render("No questions yet this session.")
	}
	var b strings.Builder
	for i, t := range m.history {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(questionStyle.Render("You: "+t.question) + "\n")
		b.WriteString("Assistant: " + t.answer + "\n")
	}
	return b.String()
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	questionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type field struct {
	key    string
	label  string
	secret bool
}

// form is a vertical list of labelled text inputs with one focused.
type form struct {
	fields []field
	inputs []textinput.Model
	focus  int
}

func newForm(fields ...field) form {
	f := form{fields: fields, inputs: make([]textinput.Model, len(fields))}
	for i, fd := range fields {
		ti := textinput.New()
		ti.Prompt = "> "
		ti.CharLimit = 0
		if fd.secret {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '*'
		}
		f.inputs[i] = ti
	}
	if len(f.inputs) > 0 {
		f.inputs[0].Focus()
	}
	return f
}

func (f *form) setFocus(i int) {
	if len(f.inputs) == 0 {
		return
	}
	f.inputs[f.focus].Blur()
	f.focus = (i + len(f.inputs)) % len(f.inputs)
	f.inputs[f.focus].Focus()
}

func (f *form) next() { f.setFocus(f.focus + 1) }
func (f *form) prev() { f.setFocus(f.focus - 1) }

func (f *form) last() bool { return f.focus == len(f.inputs)-1 }

func (f *form) update(msg tea.Msg) tea.Cmd {
	if len(f.inputs) == 0 {
		return nil
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f *form) value(key string) string {
	for i, fd := range f.fields {
		if fd.key != key {
			continue
		}
		if fd.secret {
			return f.inputs[i].Value()
		}
		return strings.TrimSpace(f.inputs[i].Value())
	}
	return ""
}

// missing returns the label of the first empty field. "about" is optional.
func (f *form) missing() string {
	for i, fd := range f.fields {
		if fd.key == "about" {
			continue
		}
		if strings.TrimSpace(f.inputs[i].Value()) == "" {
			return fd.label
		}
	}
	return ""
}

func (f *form) reset() {
	for i := range f.inputs {
		f.inputs[i].Reset()
	}
	f.setFocus(0)
}

func (f *form) view() string {
	var b strings.Builder
	for i, fd := range f.fields {
		label := fd.label
		if i == f.focus {
			label = selectedStyle.Render(label)
		}
		b.WriteString(label + "\n" + f.inputs[i].View() + "\n")
	}
	return b.String()
}
