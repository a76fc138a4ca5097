package keyboard

import "fmt"

// KeyCode identifies a physical key in scancode set 1. Keys behind the 0xE0
// prefix carry ExtendedFlag.
type KeyCode uint16

// ExtendedFlag marks keys sent with the 0xE0 prefix.
const ExtendedFlag KeyCode = 0xE000

const (
	extendedPrefix = 0xE0
	releaseBit     = 0x80
)

const (
	KeyEscape      KeyCode = 0x01
	KeyBackspace   KeyCode = 0x0E
	KeyTab         KeyCode = 0x0F
	KeyEnter       KeyCode = 0x1C
	KeyLeftCtrl    KeyCode = 0x1D
	KeyLeftShift   KeyCode = 0x2A
	KeyRightShift  KeyCode = 0x36
	KeyLeftAlt     KeyCode = 0x38
	KeySpace       KeyCode = 0x39
	KeyCapsLock    KeyCode = 0x3A
	KeyF1          KeyCode = 0x3B
	KeyF10         KeyCode = 0x44
	KeyNumLock     KeyCode = 0x45
	KeyScrollLock  KeyCode = 0x46
	KeyF11         KeyCode = 0x57
	KeyF12         KeyCode = 0x58
	KeyRightCtrl   KeyCode = ExtendedFlag | 0x1D
	KeyRightAlt    KeyCode = ExtendedFlag | 0x38
	KeyHome        KeyCode = ExtendedFlag | 0x47
	KeyArrowUp     KeyCode = ExtendedFlag | 0x48
	KeyPageUp      KeyCode = ExtendedFlag | 0x49
	KeyArrowLeft   KeyCode = ExtendedFlag | 0x4B
	KeyArrowRight  KeyCode = ExtendedFlag | 0x4D
	KeyEnd         KeyCode = ExtendedFlag | 0x4F
	KeyArrowDown   KeyCode = ExtendedFlag | 0x50
	KeyPageDown    KeyCode = ExtendedFlag | 0x51
	KeyInsert      KeyCode = ExtendedFlag | 0x52
	KeyDelete      KeyCode = ExtendedFlag | 0x53
	KeyLeftWin     KeyCode = ExtendedFlag | 0x5B
	KeyRightWin    KeyCode = ExtendedFlag | 0x5C
	KeyNumpadEnter KeyCode = ExtendedFlag | 0x1C
	KeyNumpadSlash KeyCode = ExtendedFlag | 0x35
)

var keyNames = map[KeyCode]string{
	KeyEscape: "Escape", KeyBackspace: "Backspace", KeyTab: "Tab", KeyEnter: "Return",
	KeyLeftCtrl: "LControl", KeyRightCtrl: "RControl", KeyLeftShift: "LShift",
	KeyRightShift: "RShift", KeyLeftAlt: "LAlt", KeyRightAlt: "RAltGr", KeySpace: "Spacebar",
	KeyCapsLock: "CapsLock", KeyNumLock: "NumpadLock", KeyScrollLock: "ScrollLock",
	KeyF11: "F11", KeyF12: "F12", KeyHome: "Home", KeyArrowUp: "ArrowUp",
	KeyPageUp: "PageUp", KeyArrowLeft: "ArrowLeft", KeyArrowRight: "ArrowRight",
	KeyEnd: "End", KeyArrowDown: "ArrowDown", KeyPageDown: "PageDown", KeyInsert: "Insert",
	KeyDelete: "Delete", KeyLeftWin: "LWin", KeyRightWin: "RWin",
	KeyNumpadEnter: "NumpadEnter", KeyNumpadSlash: "NumpadDivide",
}

func (k KeyCode) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	if k >= KeyF1 && k <= KeyF10 {
		return fmt.Sprintf("F%d", k-KeyF1+1)
	}
	return fmt.Sprintf("Key(%#x)", uint16(k))
}

// KeyState is the direction of a key transition.
type KeyState int

const (
	KeyDown KeyState = iota
	KeyUp
)

// KeyEvent is one decoded make or break code.
type KeyEvent struct {
	Code  KeyCode
	State KeyState
}

// DecodedKey is either a Unicode character or a key with no character.
type DecodedKey struct {
	Rune   rune
	Raw    KeyCode
	IsRune bool
}

func (k DecodedKey) String() string {
	if k.IsRune {
		return string(k.Rune)
	}
	return k.Raw.String()
}

// US QWERTY keyboard layout
var qwertyMap = [128]rune{
	0, 0x1B, '1', '2', '3', '4', '5', '6', '7', '8', '9', '0', '-', '=', '\b',
	'\t', 'q', 'w', 'e', 'r', 't', 'y', 'u', 'i', 'o', 'p', '[', ']', '\n',
	0, 'a', 's', 'd', 'f', 'g', 'h', 'j', 'k', 'l', ';', '\'', '`',
	0, '\\', 'z', 'x', 'c', 'v', 'b', 'n', 'm', ',', '.', '/', 0,
	'*', 0, ' ',
}

var qwertyShiftMap = [128]rune{
	0, 0x1B, '!', '@', '#', '$', '%', '^', '&', '*', '(', ')', '_', '+', '\b',
	'\t', 'Q', 'W', 'E', 'R', 'T', 'Y', 'U', 'I', 'O', 'P', '{', '}', '\n',
	0, 'A', 'S', 'D', 'F', 'G', 'H', 'J', 'K', 'L', ':', '"', '~',
	0, '|', 'Z', 'X', 'C', 'V', 'B', 'N', 'M', '<', '>', '?', 0,
	'*', 0, ' ',
}

// keypad with num lock on, scancodes 0x47-0x53
var numpadMap = [...]rune{'7', '8', '9', '-', '4', '5', '6', '+', '1', '2', '3', '0', '.'}

// Decoder turns set 1 scancodes into keys, tracking modifier state.
type Decoder struct {
	extended   bool
	leftShift  bool
	rightShift bool
	ctrl       bool
	alt        bool
	capsLock   bool
	numLock    bool
}

// NewDecoder returns a decoder with num lock on and every other modifier
// released.
func NewDecoder() *Decoder {
	return &Decoder{numLock: true}
}

// AddByte consumes one scancode byte. It returns false while a multi-byte
// sequence is incomplete.
func (d *Decoder) AddByte(b byte) (KeyEvent, bool) {
	if b == extendedPrefix {
		d.extended = true
		return KeyEvent{}, false
	}
	code := KeyCode(b &^ releaseBit)
	if d.extended {
		code |= ExtendedFlag
		d.extended = false
	}
	state := KeyDown
	if b&releaseBit != 0 {
		state = KeyUp
	}
	return KeyEvent{Code: code, State: state}, true
}

// ProcessKeyEvent updates modifier state and returns the key a press
// produces. Releases and modifier keys produce nothing.
func (d *Decoder) ProcessKeyEvent(ev KeyEvent) (DecodedKey, bool) {
	down := ev.State == KeyDown
	switch ev.Code {
	case KeyLeftShift:
		d.leftShift = down
		return DecodedKey{}, false
	case KeyRightShift:
		d.rightShift = down
		return DecodedKey{}, false
	case KeyLeftCtrl, KeyRightCtrl:
		d.ctrl = down
		return DecodedKey{}, false
	case KeyLeftAlt, KeyRightAlt:
		d.alt = down
		return DecodedKey{}, false
	case KeyCapsLock:
		if down {
			d.capsLock = !d.capsLock
		}
		return DecodedKey{}, false
	case KeyNumLock:
		if down {
			d.numLock = !d.numLock
		}
		return DecodedKey{}, false
	}
	if !down {
		return DecodedKey{}, false
	}

	switch ev.Code {
	case KeyNumpadEnter:
		return DecodedKey{Rune: '\n', IsRune: true}, true
	case KeyNumpadSlash:
		return DecodedKey{Rune: '/', IsRune: true}, true
	case KeyDelete:
		return DecodedKey{Rune: 0x7F, IsRune: true}, true
	}
	if ev.Code&ExtendedFlag != 0 {
		return DecodedKey{Raw: ev.Code}, true
	}
	if ev.Code >= 0x47 && ev.Code <= 0x53 && d.numLock {
		return DecodedKey{Rune: numpadMap[ev.Code-0x47], IsRune: true}, true
	}
	if int(ev.Code) < len(qwertyMap) && qwertyMap[ev.Code] != 0 {
		r := qwertyMap[ev.Code]
		shifted := d.leftShift || d.rightShift
		if isLetter(r) && d.capsLock {
			shifted = !shifted
		}
		if shifted {
			r = qwertyShiftMap[ev.Code]
		}
		return DecodedKey{Rune: r, IsRune: true}, true
	}
	return DecodedKey{Raw: ev.Code}, true
}

// Feed is AddByte followed by ProcessKeyEvent.
func (d *Decoder) Feed(b byte) (DecodedKey, bool) {
	ev, ok := d.AddByte(b)
	if !ok {
		return DecodedKey{}, false
	}
	return d.ProcessKeyEvent(ev)
}

// Modifiers reports the shift, ctrl and alt state.
func (d *Decoder) Modifiers() (shift, ctrl, alt bool) {
	return d.leftShift || d.rightShift, d.ctrl, d.alt
}

func isLetter(r rune) bool { return r >= 'a' && r <= 'z' }

var (
	plainCodes = map[rune]byte{}
	shiftCodes = map[rune]byte{}
)

func init() {
	for code, r := range qwertyMap {
		if r != 0 {
			if _, dup := plainCodes[r]; !dup {
				plainCodes[r] = byte(code)
			}
		}
	}
	for code, r := range qwertyShiftMap {
		if r == 0 {
			continue
		}
		if _, plain := plainCodes[r]; plain {
			continue
		}
		if _, dup := shiftCodes[r]; !dup {
			shiftCodes[r] = byte(code)
		}
	}
}

// ScancodesFor returns the make and break codes that type r on a US
// layout, wrapping shifted characters in left shift. Terminal carriage
// return and DEL map to Enter and Backspace. It returns nil for runes the
// layout cannot produce.
func ScancodesFor(r rune) []byte {
	switch r {
	case '\r':
		r = '\n'
	case 0x7F:
		r = '\b'
	}
	if c, ok := plainCodes[r]; ok {
		return []byte{c, c | releaseBit}
	}
	if c, ok := shiftCodes[r]; ok {
		return []byte{byte(KeyLeftShift), c, c | releaseBit, byte(KeyLeftShift) | releaseBit}
	}
	return nil
}
