package dialog

// Answers pre-fills prompts, e.g. from command line flags. Empty fields fall
// through to the wrapped dialogs.
type Answers struct {
	InputFile  string
	OutputFile string

	// YesNo answers questions by title
	YesNo map[string]bool

	// Floats answer AskFloat prompts in order
	Floats []float64
}

// Preset answers prompts from Answers before asking the wrapped Dialogs
type Preset struct {
	Dialogs
	answers Answers
}

// WithAnswers wraps d so that prompts covered by a are answered without asking
func WithAnswers(d Dialogs, a Answers) *Preset {
	return &Preset{Dialogs: d, answers: a}
}

// SelectInputFile implements Dialogs
func (p *Preset) SelectInputFile(title string) (string, bool) {
	if p.answers.InputFile != "" {
		path := p.answers.InputFile
		p.answers.InputFile = ""
		return path, true
	}
	return p.Dialogs.SelectInputFile(title)
}

// AskYesNo implements Dialogs
func (p *Preset) AskYesNo(title, question string) bool {
	if v, ok := p.answers.YesNo[title]; ok {
		return v
	}
	return p.Dialogs.AskYesNo(title, question)
}

// Answer reports the preset answer to the yes/no question titled title, if any
func (p *Preset) Answer(title string) (yes bool, ok bool) {
	yes, ok = p.answers.YesNo[title]
	return yes, ok
}

// SelectOutputFile implements Dialogs
func (p *Preset) SelectOutputFile(title, defaultExt string) (string, bool) {
	if p.answers.OutputFile != "" {
		path := withDefaultExt(p.answers.OutputFile, defaultExt)
		p.answers.OutputFile = ""
		return path, true
	}
	return p.Dialogs.SelectOutputFile(title, defaultExt)
}

// AskFloat implements Dialogs
func (p *Preset) AskFloat(title, prompt string, initial float64) (float64, bool) {
	if len(p.answers.Floats) > 0 {
		v := p.answers.Floats[0]
		p.answers.Floats = p.answers.Floats[1:]
		return v, true
	}
	return p.Dialogs.AskFloat(title, prompt, initial)
}
