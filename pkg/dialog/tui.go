package dialog

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/pkg/errors"
	"github.com/rivo/tview"
	"github.com/sirupsen/logrus"
)

const fieldWidth = 60

// TUI implements Dialogs as full screen terminal dialogs, one application per prompt
type TUI struct {
	log logrus.FieldLogger
}

// newScreen opens the terminal screen
var newScreen = tcell.NewScreen

// NewTUI checks that a terminal screen can be opened, e.g. fails when stdin is piped
func NewTUI(log logrus.FieldLogger) (*TUI, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	screen, err := newScreen()
	if err != nil {
		return nil, errors.Wrap(err, "no terminal screen")
	}
	if err := screen.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to open the terminal")
	}
	screen.Fini()
	return &TUI{log: log}, nil
}

// run shows root until one of its handlers stops the application.
// Ctrl-C dismisses the dialog through onCancel.
func (u *TUI) run(root, focus tview.Primitive, bind func(app *tview.Application), onCancel func()) {
	app := tview.NewApplication()
	bind(app)
	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			onCancel()
			app.Stop()
			return nil
		}
		return event
	})
	if err := app.SetRoot(root, true).SetFocus(focus).EnableMouse(true).Run(); err != nil {
		u.log.WithError(err).Error("Terminal dialog failed")
		onCancel()
	}
}

// message shows a modal with a single OK button
func (u *TUI) message(title, text string, color tcell.Color) {
	modal := tview.NewModal().SetText(text).AddButtons([]string{"OK"})
	modal.SetTitle(" " + title + " ").SetBorderColor(color)
	u.run(modal, modal, func(app *tview.Application) {
		modal.SetDoneFunc(func(int, string) { app.Stop() })
	}, func() {})
}

// ShowInfo implements Dialogs
func (u *TUI) ShowInfo(title, message string) {
	u.message(title, message, tcell.ColorGreen)
}

// ShowError implements Dialogs
func (u *TUI) ShowError(title, message string) {
	u.message(title, message, tcell.ColorRed)
}

// AskYesNo implements Dialogs
func (u *TUI) AskYesNo(title, question string) bool {
	answer := false
	modal := tview.NewModal().SetText(question).AddButtons([]string{"Yes", "No"})
	modal.SetTitle(" " + title + " ")
	u.run(modal, modal, func(app *tview.Application) {
		modal.SetDoneFunc(func(_ int, label string) {
			answer = label == "Yes"
			app.Stop()
		})
	}, func() { answer = false })
	return answer
}

// pathForm asks for a path; validate returns the accepted path or an error text
func (u *TUI) pathForm(title, button string, validate func(string) (string, string)) (string, bool) {
	var (
		result string
		ok     bool
	)

	field := tview.NewInputField().
		SetLabel("Path: ").
		SetFieldWidth(fieldWidth).
		SetAutocompleteFunc(completePath)
	if wd, err := os.Getwd(); err == nil {
		field.SetText(wd + string(filepath.Separator))
	}

	form := tview.NewForm().AddFormItem(field)
	form.SetBorder(true).SetTitle(" " + title + " ")

	u.run(form, form, func(app *tview.Application) {
		form.AddButton(button, func() {
			path, problem := validate(strings.TrimSpace(field.GetText()))
			if problem != "" {
				form.SetTitle(" " + title + ": " + problem + " ").SetTitleColor(tcell.ColorRed)
				return
			}
			result, ok = path, true
			app.Stop()
		})
		form.AddButton("Cancel", func() { app.Stop() })
		form.SetCancelFunc(func() { app.Stop() })
	}, func() { ok = false })
	return result, ok
}

// SelectInputFile implements Dialogs
func (u *TUI) SelectInputFile(title string) (string, bool) {
	return u.pathForm(title, "Open", func(path string) (string, string) {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return "", "file not found"
		}
		return path, ""
	})
}

// SelectOutputFile implements Dialogs
func (u *TUI) SelectOutputFile(title, defaultExt string) (string, bool) {
	return u.pathForm(title+" (*"+defaultExt+")", "Save", func(path string) (string, string) {
		if path == "" || strings.HasSuffix(path, string(filepath.Separator)) {
			return "", "enter a file name"
		}
		return withDefaultExt(path, defaultExt), ""
	})
}

// AskFloat implements Dialogs
func (u *TUI) AskFloat(title, prompt string, initial float64) (float64, bool) {
	var (
		value float64
		ok    bool
	)

	field := tview.NewInputField().
		SetLabel(prompt + ": ").
		SetText(strconv.FormatFloat(initial, 'g', -1, 64)).
		SetFieldWidth(20).
		SetAcceptanceFunc(tview.InputFieldFloat)

	form := tview.NewForm().AddFormItem(field)
	form.SetBorder(true).SetTitle(" " + title + " ")

	u.run(form, form, func(app *tview.Application) {
		form.AddButton("OK", func() {
			v, err := strconv.ParseFloat(field.GetText(), 64)
			if err != nil || !(v > 0) {
				form.SetTitle(" " + title + ": must be a positive number ").SetTitleColor(tcell.ColorRed)
				return
			}
			value, ok = v, true
			app.Stop()
		})
		form.AddButton("Cancel", func() { app.Stop() })
		form.SetCancelFunc(func() { app.Stop() })
	}, func() { ok = false })
	return value, ok
}

// completePath offers directory entries starting with the typed prefix
func completePath(current string) []string {
	if current == "" {
		return nil
	}
	matches, err := filepath.Glob(current + "*")
	if err != nil {
		return nil
	}
	if len(matches) > 20 {
		matches = matches[:20]
	}
	for i, m := range matches {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			matches[i] = m + string(filepath.Separator)
		}
	}
	return matches
}
