package bootstrap

import (
	"fmt"
	"os"
	"strings"
)

var defaultBanner = ` _     _             ______      _     _
| |   (_)            | ___ \    (_)   | |
| |    _ _ __   __ _ | |_/ /_ __ _  __| | __ _  ___
| |   | | '_ \ / _' || ___ \ '__| |/ _' |/ _' |/ _ \
| |___| | | | | (_| || |_/ / |  | | (_| | (_| |  __/
\_____/_|_| |_|\__, |\____/|_|  |_|\__,_|\__, |\___|
                __/ |                     __/ |
               |___/                     |___/`

// PrintBannerFromFile prints a banner file, falling back to the built-in
// banner when the file is missing.
func PrintBannerFromFile(filename string) error {
	banner := defaultBanner
	if data, err := os.ReadFile(filename); err == nil {
		banner = string(data)
	}

	lines := strings.Split(banner, "\n")

	colors := []string{
		"\x1b[38;5;165m",
		"\x1b[38;5;189m",
		"\x1b[38;5;207m",
		"\x1b[38;5;219m",
		"\x1b[38;5;225m",
		"\x1b[38;5;231m",
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		color := colors[i%len(colors)]
		fmt.Println(color + line + "\x1b[0m")
	}
	return nil
}
