package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoInput is returned when the prompt reaches end of input without an
// answer.
var ErrNoInput = errors.New("no answer on input")

// Confirm asks a yes/no question and reads one line from r. Only "y" and
// "yes" (any case) confirm; anything else, including an empty line, is no.
func Confirm(w io.Writer, r io.Reader, question string) (bool, error) {
	_, _ = fmt.Fprintf(w, "%s [y/N]: ", question)

	reader := bufio.NewReader(r)
	input, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		_, _ = fmt.Fprintln(w)
		if errors.Is(err, io.EOF) {
			return false, ErrNoInput
		}
		return false, fmt.Errorf("failed to read input: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
