package tui

// Key bindings. Chip and playback keys apply while the input is not focused.
const (
	KeyQuit      = "q"
	KeyCtrlC     = "ctrl+c"
	KeyEnter     = "enter"
	KeyTab       = "tab"
	KeyEsc       = "esc"
	KeyInput     = "i"
	KeyMic       = "m"
	KeyPlayPause = "p"
	KeyRestart   = "r"
	KeyUp        = "up"
	KeyDown      = "down"
	KeyPgUp      = "pgup"
	KeyPgDown    = "pgdown"
)

// chipKeys maps "1".."5" to the quick symptom at that position.
var chipKeys = []string{"1", "2", "3", "4", "5"}
