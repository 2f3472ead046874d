package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"catalog/api/internal/collection"
	"catalog/api/internal/loader"
	"catalog/api/internal/sorting"
	"catalog/api/internal/trigger"
)

var (
	statusStyle = lipgloss.NewStyle().Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

const helpText = `commands:
  more              load the next page
  scroll <rows>     move the viewport, loading more near the bottom
  sort <field>      sort by field, toggling direction on repeat
  filter k=v ...    replace the filter (empty clears it) and reload
  reload            reload from the first page
  quit              exit`

// session drives one controller from line commands and renders every
// transition as a table of the visible rows.
type session struct {
	ctrl    *loader.Controller
	trig    *trigger.Trigger
	handle  *trigger.Handle
	out     io.Writer
	sub     *loader.Subscription
	updates chan loader.State
	settle  time.Duration

	mu   sync.Mutex
	view trigger.Viewport
}

type sessionOptions struct {
	VisibleRows int
	Threshold   float64
	Wait        time.Duration
	Settle      time.Duration
}

func newSession(ctrl *loader.Controller, out io.Writer, opts sessionOptions) *session {
	if opts.VisibleRows <= 0 {
		opts.VisibleRows = 10
	}
	if opts.Settle <= 0 {
		opts.Settle = 15 * time.Second
	}
	s := &session{
		ctrl:    ctrl,
		out:     &lockedWriter{w: out},
		updates: make(chan loader.State, 64),
		settle:  opts.Settle,
		view:    trigger.Viewport{ViewportHeight: float64(opts.VisibleRows)},
	}
	s.trig = trigger.New(trigger.Config{Threshold: opts.Threshold, Wait: opts.Wait}, ctrl)
	s.handle = s.trig.Attach()
	s.sub = ctrl.Subscribe(s.render)
	return s
}

func (s *session) close() {
	s.handle.Detach()
	s.trig.Stop()
	s.sub.Unsubscribe()
	s.ctrl.Close()
}

func (s *session) start() {
	s.drain()
	if s.ctrl.Start() {
		s.await()
	}
}

// run reads commands until quit or EOF.
func (s *session) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if !s.exec(fields[0], fields[1:]) {
			return nil
		}
	}
	return scanner.Err()
}

func (s *session) exec(cmd string, args []string) bool {
	s.drain()
	switch cmd {
	case "quit", "exit":
		return false
	case "more":
		if s.ctrl.RequestMore() {
			s.await()
		} else {
			fmt.Fprintf(s.out, "nothing to load (%s)\n", s.ctrl.State())
		}
	case "scroll":
		s.scroll(args)
	case "sort":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: sort <field>")
			return true
		}
		if err := s.ctrl.ChangeSort(args[0]); err != nil {
			fmt.Fprintln(s.out, errorStyle.Render(err.Error()))
			return true
		}
		s.setScroll(0)
		s.await()
	case "filter":
		filter := map[string]string{}
		for _, arg := range args {
			key, value, ok := strings.Cut(arg, "=")
			if !ok || key == "" {
				fmt.Fprintf(s.out, "bad filter %q, want key=value\n", arg)
				return true
			}
			filter[key] = value
		}
		s.setScroll(0)
		s.ctrl.SetFilter(filter)
		if s.ctrl.State() != loader.Idle {
			s.await()
		}
	case "reload":
		s.setScroll(0)
		if s.ctrl.Reload() {
			s.await()
		}
	default:
		fmt.Fprintln(s.out, helpText)
	}
	return true
}

func (s *session) scroll(args []string) {
	delta := s.view.ViewportHeight
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(s.out, "bad row count %q\n", args[0])
			return
		}
		delta = float64(n)
	}

	s.mu.Lock()
	s.view.ScrollTop += delta
	maxTop := s.view.ContentHeight - s.view.ViewportHeight
	if s.view.ScrollTop > maxTop {
		s.view.ScrollTop = maxTop
	}
	if s.view.ScrollTop < 0 {
		s.view.ScrollTop = 0
	}
	view := s.view
	s.mu.Unlock()

	if s.ctrl.State() != loader.Ready || !s.trig.Observe(view) {
		s.print(s.ctrl.State(), s.ctrl.Snapshot())
		return
	}
	s.await()
}

func (s *session) setScroll(top float64) {
	s.mu.Lock()
	s.view.ScrollTop = top
	s.mu.Unlock()
}

// drain discards updates left over from earlier commands so the next await
// only sees transitions the new command caused.
func (s *session) drain() {
	for {
		select {
		case <-s.updates:
		default:
			return
		}
	}
}

// await blocks until the controller leaves Loading.
func (s *session) await() {
	timer := time.NewTimer(s.settle)
	defer timer.Stop()
	for {
		select {
		case state := <-s.updates:
			if state != loader.Loading {
				return
			}
		case <-timer.C:
			fmt.Fprintln(s.out, errorStyle.Render("timed out waiting for the catalog"))
			return
		}
	}
}

func (s *session) render(state loader.State, items []collection.Item) {
	s.mu.Lock()
	s.view.ContentHeight = float64(len(items))
	s.mu.Unlock()

	if state != loader.Loading {
		s.print(state, items)
	}
	select {
	case s.updates <- state:
	default:
	}
}

func (s *session) print(state loader.State, items []collection.Item) {
	spec := s.ctrl.Sort()
	fmt.Fprintln(s.out, statusStyle.Render(fmt.Sprintf("%s  rows=%d  sort=%s", state, len(items), spec)))
	if state == loader.Failed {
		if err := s.ctrl.Err(); err != nil {
			fmt.Fprintln(s.out, errorStyle.Render(err.Error()))
		}
	}
	if len(items) == 0 {
		return
	}

	s.mu.Lock()
	view := s.view
	s.mu.Unlock()
	from := int(view.ScrollTop)
	to := from + int(view.ViewportHeight)
	if to > len(items) {
		to = len(items)
	}
	if from > to {
		from = to
	}
	fmt.Fprintln(s.out, renderTable(s.ctrl.Fields(), spec, items[from:to]))
}

func renderTable(fields []sorting.Field, spec sorting.Spec, items []collection.Item) string {
	headers := make([]string, 0, len(fields)+1)
	headers = append(headers, "id")
	for _, f := range fields {
		name := f.Name
		if f.Name == spec.Field {
			if spec.Direction == sorting.Ascending {
				name += " ▲"
			} else {
				name += " ▼"
			}
		}
		headers = append(headers, name)
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		row := make([]string, 0, len(fields)+1)
		row = append(row, item.ID)
		for _, f := range fields {
			row = append(row, formatCell(item, f))
		}
		rows = append(rows, row)
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		String()
}

func formatCell(item collection.Item, f sorting.Field) string {
	switch f.Kind {
	case sorting.KindNumeric:
		if n, ok := item.Number(f.Name); ok {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
	case sorting.KindString:
		if v, ok := item.String(f.Name); ok {
			return v
		}
	}
	return ""
}

// lockedWriter serializes output from the command loop and the render
// callback.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
