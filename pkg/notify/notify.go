// Package notify shows status banners on the page: one transient outcome
// message and one persistent processing message, each in its own slot.
package notify

import (
	"strings"
	"time"

	"github.com/go-shiori/dom"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/japaniel/annotator/pkg/loop"
)

// Severity selects the banner colour.
type Severity string

const (
	Info       Severity = "info"
	Success    Severity = "success"
	Warning    Severity = "warning"
	Error      Severity = "error"
	Processing Severity = "processing"
)

const (
	TransientID  = "annotator-message"
	PersistentID = "annotator-processing-message"
)

// Config controls banner timing.
type Config struct {
	// Duration is how long a transient message stays before fading.
	Duration time.Duration
	// Fade is the length of the fade-out transition before removal.
	Fade time.Duration
}

// DefaultConfig returns the stock banner timings.
func DefaultConfig() Config {
	return Config{
		Duration: 3500 * time.Millisecond,
		Fade:     400 * time.Millisecond,
	}
}

// Surface owns both banner slots. Methods must be called on the loop goroutine.
type Surface struct {
	body   *html.Node
	sched  loop.Scheduler
	cfg    Config
	logger *zap.Logger

	transient  *html.Node
	dismiss    loop.Timer
	persistent *html.Node
	// fading is a persistent banner still running its fade-out.
	fading *html.Node
}

// New creates a surface that appends banners to body.
func New(body *html.Node, sched loop.Scheduler, cfg Config, logger *zap.Logger) *Surface {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Surface{body: body, sched: sched, cfg: cfg, logger: logger.Named("notify")}
}

// Transient returns the current transient banner, or nil.
func (s *Surface) Transient() *html.Node { return s.transient }

// Persistent returns the current persistent banner, or nil.
func (s *Surface) Persistent() *html.Node { return s.persistent }

// Notify shows a transient message that fades away after the configured
// duration. It immediately replaces any transient message already showing.
func (s *Surface) Notify(msg string, sev Severity) {
	if s.dismiss != nil {
		s.dismiss.Stop()
		s.dismiss = nil
	}
	if s.transient != nil {
		detach(s.transient)
	}
	el := s.banner(TransientID, msg, sev)
	s.transient = el
	s.dismiss = s.sched.AfterFunc(s.cfg.Duration, func() {
		s.dismiss = nil
		s.fadeOut(el, func() {
			if s.transient == el {
				s.transient = nil
			}
		})
	})
	s.logger.Debug("transient message", zap.String("severity", string(sev)), zap.String("message", msg))
}

// ShowPersistent shows a processing message that stays until ClearPersistent.
// A persistent message already showing is replaced.
func (s *Surface) ShowPersistent(msg string) {
	if s.fading != nil {
		detach(s.fading)
		s.fading = nil
	}
	if s.persistent != nil {
		detach(s.persistent)
		s.persistent = nil
	}
	s.persistent = s.banner(PersistentID, msg, Processing)
}

// ClearPersistent fades out the processing message. It is a no-op when none is showing.
func (s *Surface) ClearPersistent() {
	if s.persistent == nil {
		return
	}
	el := s.persistent
	s.persistent = nil
	s.fading = el
	s.fadeOut(el, func() {
		if s.fading == el {
			s.fading = nil
		}
	})
}

func (s *Surface) banner(id, msg string, sev Severity) *html.Node {
	el := dom.CreateElement("div")
	dom.SetAttribute(el, "id", id)
	dom.SetAttribute(el, "class", string(sev))
	dom.SetAttribute(el, "data-annotator-ui", "notification")
	el.AppendChild(dom.CreateTextNode(msg))
	if s.body != nil {
		s.body.AppendChild(el)
	}
	// Adding the class a frame later lets the opacity transition run.
	s.sched.Defer(func() {
		if el.Parent != nil {
			dom.SetAttribute(el, "class", string(sev)+" visible")
		}
	})
	return el
}

func (s *Surface) fadeOut(el *html.Node, done func()) {
	dom.SetAttribute(el, "class", strings.TrimSuffix(dom.GetAttribute(el, "class"), " visible"))
	s.sched.AfterFunc(s.cfg.Fade, func() {
		detach(el)
		if done != nil {
			done()
		}
	})
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}
