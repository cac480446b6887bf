package tv

import "strings"

// Remote key codes understood by the vendor control protocol.
const (
	KeyPower = "KEY_POWER"
	KeyTV    = "KEY_TV"
	KeyHDMI  = "KEY_HDMI"
	KeyHDMI1 = "KEY_HDMI1"
	KeyHDMI2 = "KEY_HDMI2"
	KeyHDMI3 = "KEY_HDMI3"
	KeyHDMI4 = "KEY_HDMI4"
)

// Hold duration, in milliseconds, for the long power press that turns
// an art-mode set fully off. A tap only toggles art mode.
const artModeOffHoldMs = 3000

// sourceKeys maps physical-input names to their dedicated key
// commands. The local app-launch call cannot switch physical inputs,
// so these bypass the app-id cache entirely.
var sourceKeys = map[string]string{
	"TV":    KeyTV,
	"HDMI":  KeyHDMI,
	"HDMI1": KeyHDMI1,
	"HDMI2": KeyHDMI2,
	"HDMI3": KeyHDMI3,
	"HDMI4": KeyHDMI4,
}

// baselineSources is always present in the source list, even when the
// device cannot currently report its installed apps.
var baselineSources = []string{"TV", "HDMI", "HDMI1", "HDMI2", "HDMI3", "HDMI4"}

// sourceKey resolves a human-entered source name to its key command.
func sourceKey(name string) (string, bool) {
	key, ok := sourceKeys[strings.ToUpper(strings.TrimSpace(name))]
	return key, ok
}

// ValidKey reports whether a key code is well-formed. The set of codes
// a given model accepts is not discoverable, so this checks shape, not
// membership: KEY_ prefix followed by uppercase letters, digits, or
// underscores.
func ValidKey(key string) bool {
	const prefix = "KEY_"
	if len(key) <= len(prefix) || !strings.HasPrefix(key, prefix) {
		return false
	}
	for _, r := range key[len(prefix):] {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}
