package listener

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

// ErrInterrupted is returned when the operator presses Ctrl-C at a prompt.
var ErrInterrupted = errors.New("input interrupted")

// blankLinesToFinish ends multi-line input.
const blankLinesToFinish = 3

// Console reads operator input from the terminal.
type Console struct {
	mu sync.Mutex
	rl *readline.Instance
}

func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "",
	})
	if err != nil {
		return nil, err
	}
	return &Console{rl: rl}, nil
}

func (c *Console) Close() {
	if c.rl != nil {
		_ = c.rl.Close()
	}
}

// Println prints above the prompt line.
func (c *Console) Println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rl == nil {
		fmt.Println(s)
		return
	}
	_, _ = c.rl.Write([]byte(s + "\n"))
}

// ReadMultiline collects lines until three consecutive empty lines or EOF.
func (c *Console) ReadMultiline(title string) (string, error) {
	c.Println(fmt.Sprintf("%s (finish with %d empty lines):", title, blankLinesToFinish))
	return collect(c.readLine)
}

// Ask reads one answer line after printing question.
func (c *Console) Ask(question string) (string, error) {
	c.Println(question)
	line, err := c.readLine()
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *Console) AskYesNo(question string) (bool, error) {
	for {
		ans, err := c.Ask(question + " [y/n]")
		if err != nil {
			return false, err
		}
		switch strings.ToLower(ans) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		c.Println("Please answer y/n.")
	}
}

func (c *Console) readLine() (string, error) {
	line, err := c.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrInterrupted
	}
	return line, err
}

func collect(next func() (string, error)) (string, error) {
	var lines []string
	blanks := 0
	for {
		line, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(line) == "" {
			blanks++
			if blanks >= blankLinesToFinish {
				break
			}
		} else {
			blanks = 0
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
