// Package auth collects the credentials dlrelay needs from an operator.
package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Secret names a credential and where the operator can find it.
type Secret struct {
	Name   string
	Source string
}

var (
	DirectLineSecret = Secret{Name: "Direct Line secret", Source: "copilotstudio.microsoft.com"}
	TwilioAccountSID = Secret{Name: "Twilio Account SID", Source: "console.twilio.com"}
	TwilioAuthToken  = Secret{Name: "Twilio Auth Token", Source: "console.twilio.com"}
	TwilioFrom       = Secret{Name: "Twilio WhatsApp sender (e.g. whatsapp:+14155238886)", Source: "console.twilio.com"}
)

// Prompter reads pasted credentials, one per line.
type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func NewPrompter(r io.Reader, w io.Writer) *Prompter {
	return &Prompter{scanner: bufio.NewScanner(r), out: w}
}

// Paste asks for s and returns the trimmed value. An empty line keeps
// current; if current is also empty the paste is rejected.
func (p *Prompter) Paste(s Secret, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(p.out, "Paste your %s from %s (enter keeps %s):\n", s.Name, s.Source, mask(current))
	} else {
		fmt.Fprintf(p.out, "Paste your %s from %s:\n", s.Name, s.Source)
	}
	fmt.Fprint(p.out, "> ")

	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", fmt.Errorf("reading %s: %w", s.Name, err)
		}
		return "", errors.New("no input received")
	}

	value := strings.TrimSpace(p.scanner.Text())
	if value == "" {
		if current == "" {
			return "", fmt.Errorf("%s cannot be empty", s.Name)
		}
		return current, nil
	}
	return value, nil
}

func mask(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}
