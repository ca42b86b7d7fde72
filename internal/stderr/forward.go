package stderr

import (
	"bufio"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// forward logs every non-blank line read from r.
func forward(r io.Reader, logger zerolog.Logger) {
	logger = logger.With().Str("component", "stderr").Logger()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			logger.Warn().Msg(line)
		}
	}
}
