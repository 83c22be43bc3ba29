// Package tui implements the interactive runtime console: a scrolling view
// of the runtime's merged output above an input line whose submissions are
// written into the runtime's stdin.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const (
	outputTitle = "Runtime Output"

	defaultDrainInterval  = 100 * time.Millisecond
	defaultStatusInterval = 500 * time.Millisecond

	// maxChunksPerDrain caps how much backlog one drain tick consumes so a
	// chatty runtime cannot starve the event loop.
	maxChunksPerDrain = 16
)

// Supervisor is the slice of the process supervisor the console drives.
type Supervisor interface {
	Start(executablePath, homeDirectory, bootExpression string) (int, error)
	Stop()
	ReadAvailable() ([]byte, error)
	WriteLine(text string) error
	IsAlive() bool
	Pid() int
}

// Launch carries the parameters the console starts the runtime with.
type Launch struct {
	Name       string
	Executable string
	Home       string
	Boot       string
}

// Option configures console behaviour.
type Option func(*Console)

// WithDrainInterval sets how often the console polls the runtime for output.
func WithDrainInterval(d time.Duration) Option {
	return func(c *Console) {
		if d > 0 {
			c.drainEvery = d
		}
	}
}

// WithAutoStart controls whether Run launches the runtime immediately.
func WithAutoStart(enabled bool) Option {
	return func(c *Console) {
		c.autoStart = enabled
	}
}

// Console coordinates the interactive runtime console backed by tview.
type Console struct {
	app    *tview.Application
	output *tview.TextView
	status *tview.TextView
	input  *tview.InputField

	sup    Supervisor
	launch Launch

	drainEvery time.Duration
	autoStart  bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a console bound to the supplied supervisor and launch
// parameters.
func New(sup Supervisor, launch Launch, opts ...Option) *Console {
	app := tview.NewApplication()

	output := tview.NewTextView().SetScrollable(true).SetWrap(true)
	output.SetBorder(true).SetTitle(outputTitle)
	output.SetChangedFunc(func() {
		app.Draw()
	})

	status := tview.NewTextView()

	input := tview.NewInputField().SetLabel("> ")

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(output, 0, 1, false).
		AddItem(status, 1, 0, false).
		AddItem(input, 1, 0, true)

	c := &Console{
		app:        app,
		output:     output,
		status:     status,
		input:      input,
		sup:        sup,
		launch:     launch,
		drainEvery: defaultDrainInterval,
		autoStart:  true,
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			c.submitInput()
		}
	})

	app.SetRoot(flex, true)
	app.SetFocus(input)
	app.SetInputCapture(c.handleKey)

	c.renderStatus()
	return c
}

// Done returns a channel that is closed when the console stops.
func (c *Console) Done() <-chan struct{} {
	return c.done
}

// Run starts the tview application, draining runtime output and refreshing
// the status line until Stop is invoked or the context is cancelled.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	c.cancelMu.Lock()
	c.cancel = cancel
	c.cancelMu.Unlock()

	if c.autoStart && !c.sup.IsAlive() {
		c.startRuntime()
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.drainLoop(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.statusLoop(ctx)
	}()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	err := c.app.Run()

	c.cancelMu.Lock()
	cancel = c.cancel
	c.cancel = nil
	c.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}

	c.wg.Wait()
	c.Stop()

	return err
}

// Stop terminates the application loop. The supervised runtime is left to
// the caller: quitting the console does not kill the runtime unless the
// caller chooses to.
func (c *Console) Stop() {
	c.stopOnce.Do(func() {
		c.cancelMu.Lock()
		cancel := c.cancel
		c.cancel = nil
		c.cancelMu.Unlock()
		if cancel != nil {
			cancel()
		}
		c.app.Stop()
		close(c.done)
	})
}

func (c *Console) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyCtrlS:
		c.startRuntime()
		return nil
	case tcell.KeyCtrlT:
		c.stopRuntime()
		return nil
	case tcell.KeyCtrlQ:
		go c.Stop()
		return nil
	}
	return event
}

func (c *Console) submitInput() {
	line := strings.TrimSpace(c.input.GetText())
	c.input.SetText("")
	if line == "" {
		return
	}
	fmt.Fprintf(c.output, "> %s\n", line)
	if err := c.sup.WriteLine(line); err != nil {
		fmt.Fprintf(c.output, "[console] write failed: %v\n", err)
	}
}

func (c *Console) startRuntime() {
	pid, err := c.sup.Start(c.launch.Executable, c.launch.Home, c.launch.Boot)
	if err != nil {
		fmt.Fprintf(c.output, "[console] start failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.output, "[console] runtime %s running with pid %d\n", c.launch.Name, pid)
	c.renderStatus()
}

func (c *Console) stopRuntime() {
	c.sup.Stop()
	fmt.Fprintf(c.output, "[console] runtime %s stopped\n", c.launch.Name)
	c.renderStatus()
}

func (c *Console) drainLoop(ctx context.Context) {
	ticker := time.NewTicker(c.drainEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.drainOnce()
		}
	}
}

// drainOnce moves pending runtime output into the view. It reports whether
// any bytes arrived.
func (c *Console) drainOnce() bool {
	drained := false
	for i := 0; i < maxChunksPerDrain; i++ {
		chunk, err := c.sup.ReadAvailable()
		if err != nil {
			fmt.Fprintf(c.output, "[console] read failed: %v\n", err)
			return drained
		}
		if len(chunk) == 0 {
			return drained
		}
		drained = true
		c.output.Write(chunk)
	}
	return drained
}

func (c *Console) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(defaultStatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.renderStatus()
			c.app.Draw()
		}
	}
}

func (c *Console) renderStatus() {
	state := "stopped"
	if c.sup.IsAlive() {
		state = fmt.Sprintf("running (pid %d)", c.sup.Pid())
	}
	c.status.SetText(fmt.Sprintf(" %s: %s · Ctrl+S start · Ctrl+T stop · Ctrl+Q quit", c.launch.Name, state))
}
