package tui

// Keybinding constants
const (
	KeyTab      = "tab"
	KeyShiftTab = "shift+tab"
	KeyQuit     = "q"
	KeyCtrlC    = "ctrl+c"
	KeyPane1    = "1"
	KeyPane2    = "2"
	KeyUp       = "up"
	KeyDown     = "down"
	KeyJ        = "j"
	KeyK        = "k"
	KeySettings = "s"
	KeyStart    = "x"
	KeyComplete = "c"
	KeyPause    = "p"
	KeyUnblock  = "u"
	KeyFail     = "f"
	KeyRefresh  = "r"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView() string {
	return StyleHelp.Render("Tab: cycle focus | j/k: select | x: start | c: complete | p: pause | u: unblock | f: fail | r: refresh | s: settings | q: quit")
}
