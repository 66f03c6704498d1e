package checkout

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// ConsoleAlerter prints alerts in bold yellow.
type ConsoleAlerter struct {
	mu  sync.Mutex
	out io.Writer
	c   *color.Color
}

// NewConsoleAlerter writes alerts to out.
func NewConsoleAlerter(out io.Writer) *ConsoleAlerter {
	return &ConsoleAlerter{out: out, c: color.New(color.FgYellow, color.Bold)}
}

func (a *ConsoleAlerter) Alert(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = a.c.Fprintln(a.out, "! "+msg)
}

// PrintOpener prints the URL for the user to follow.
type PrintOpener struct {
	out io.Writer
}

// NewPrintOpener writes URLs to out.
func NewPrintOpener(out io.Writer) *PrintOpener {
	return &PrintOpener{out: out}
}

func (p *PrintOpener) Open(url string) error {
	_, err := fmt.Fprintf(p.out, "Open this link to complete checkout: %s\n", color.CyanString(url))
	return err
}
