// Package prompt collects task input and confirmations from a line-oriented
// terminal or pipe.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/amirbrooks/jora/internal/store"
)

// ErrAborted is returned when input ends before every answer was read.
var ErrAborted = errors.New("input aborted")

type Input struct {
	Title       string
	Priority    int
	Description string
}

type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

func (p *Prompter) ask(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrAborted
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// TaskInput asks for title, priority and description. The priority question
// repeats until the answer is a number in range.
func (p *Prompter) TaskInput() (Input, error) {
	var in Input
	title, err := p.ask("Title: ")
	if err != nil {
		return Input{}, err
	}
	in.Title = strings.TrimSpace(title)

	for {
		raw, err := p.ask(fmt.Sprintf("Priority %d-%d: ", store.MinPriority, store.MaxPriority))
		if err != nil {
			return Input{}, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && store.ValidPriority(n) {
			in.Priority = n
			break
		}
		fmt.Fprintf(p.out, "Please enter a number from %d to %d.\n", store.MinPriority, store.MaxPriority)
	}

	desc, err := p.ask("Description: ")
	if err != nil {
		return Input{}, err
	}
	in.Description = strings.TrimSpace(desc)
	return in, nil
}

// Confirm asks a yes/no question; only y and yes count as yes.
func (p *Prompter) Confirm(question string) (bool, error) {
	answer, err := p.ask(question + " y/n\n")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Reopen is a store.ReopenFunc backed by Confirm.
func (p *Prompter) Reopen(t store.Task) (bool, error) {
	fmt.Fprintf(p.out, "Task ID %d is closed\n", t.ID)
	return p.Confirm("Re-open task?")
}
