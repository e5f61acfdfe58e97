package wallet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Approver stands in for the wallet's permission popup.
type Approver interface {
	Approve(ctx context.Context, prompt string) (bool, error)
}

// StaticApprover answers every prompt the same way. Used by the server with
// AUTO_APPROVE.
type StaticApprover bool

func (a StaticApprover) Approve(_ context.Context, prompt string) (bool, error) {
	fmt.Printf("[WALLET] %s -> %v (auto)\n", prompt, bool(a))
	return bool(a), nil
}

// PromptApprover asks on a terminal and accepts "y" or "yes".
type PromptApprover struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func NewPromptApprover(in io.Reader, out io.Writer) *PromptApprover {
	return &PromptApprover{in: bufio.NewReader(in), out: out}
}

func (p *PromptApprover) Approve(ctx context.Context, prompt string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s [y/N]: ", prompt)

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.err != io.EOF {
			return false, fmt.Errorf("read answer: %w", a.err)
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
