package daemon

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/justestif/go-music-agent/internal/apperr"
	"github.com/justestif/go-music-agent/internal/interpret"
	"github.com/justestif/go-music-agent/internal/ipc"
)

// Administrative opcodes, answered before interpretation.
const (
	OpPing   = "ping"
	OpStatus = "status"
	OpStop   = "stop"
)

// adminCategory labels opcode requests in metrics.
const adminCategory = "admin"

type handlerFunc func(d *Daemon, ctx context.Context, in interpret.Intent) (ipc.Response, error)

// handlers maps every intent category to its handler.
var handlers = map[interpret.Category]handlerFunc{
	interpret.CategoryPlayback:     (*Daemon).handlePlayback,
	interpret.CategorySearch:       (*Daemon).handleSearch,
	interpret.CategoryLyricSearch:  (*Daemon).handleLyricSearch,
	interpret.CategoryLyricAdd:     (*Daemon).handleLyricAdd,
	interpret.CategoryTagSet:       (*Daemon).handleTagSet,
	interpret.CategoryTagQuery:     (*Daemon).handleTagQuery,
	interpret.CategoryFavoriteAdd:  (*Daemon).handleFavoriteAdd,
	interpret.CategoryFavoriteList: (*Daemon).handleFavoriteList,
	interpret.CategoryPlaylist:     (*Daemon).handlePlaylist,
	interpret.CategoryStatus:       (*Daemon).handleNowPlaying,
	interpret.CategorySync:         (*Daemon).handleSync,
	interpret.CategoryHistory:      (*Daemon).handleHistory,
	interpret.CategoryMoodReport:   (*Daemon).handleMoodReport,
	interpret.CategoryLyrics:       (*Daemon).handleLyrics,
	interpret.CategoryPreference:   (*Daemon).handlePreference,
	interpret.CategoryBackfill:     (*Daemon).handleBackfill,
	interpret.CategoryHelp:         (*Daemon).handleHelp,
}

// Handle answers one IPC request. It never panics: handler panics become
// internal failures.
func (d *Daemon) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	return d.Execute(ctx, req.Command)
}

// Execute runs command, an opcode or free text, and returns the response.
func (d *Daemon) Execute(ctx context.Context, command string) (resp ipc.Response) {
	start := time.Now()
	command = strings.TrimSpace(command)
	category := adminCategory

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				"command", command,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			resp = ipc.Failure(apperr.New(apperr.KindInternal, "daemon.dispatch", fmt.Sprintf("internal error: %v", r)))
		}

		result := "ok"
		if !resp.OK {
			result = string(resp.Kind)
		}
		d.metrics.RecordRequest(category, result, time.Since(start))
		d.logger.Info("command handled",
			"command", command,
			"category", category,
			"result", result,
			"duration", time.Since(start).Round(time.Millisecond),
		)
		d.events.publish(Event{Kind: EventCommand, Outcome: result, Message: command})
	}()

	switch strings.ToLower(command) {
	case OpPing:
		return ipc.Success("pong", nil)
	case OpStatus:
		st := d.Status(ctx)
		return ipc.Success(statusLine(st), st)
	case OpStop:
		d.Stop()
		return ipc.Success("Daemon stopping.", nil)
	}

	intent, ok := interpret.Interpret(command)
	if !ok {
		return ipc.Failure(apperr.Invalid("daemon.dispatch", "Empty command."))
	}
	category = string(intent.Category)

	h, ok := handlers[intent.Category]
	if !ok {
		return ipc.Failure(apperr.Invalid("daemon.dispatch", "I don't know how to do %q yet.", command))
	}
	d.logger.Debug("command interpreted", "command", command, "intent", intent.String())

	resp, err := h(d, ctx, intent)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			d.logger.Error("handler failed", "intent", intent.String(), "error", err)
		}
		return ipc.Failure(err)
	}
	return resp
}

func statusLine(st Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daemon %s (pid %d)", st.State, st.PID)
	if st.Uptime != "" {
		fmt.Fprintf(&b, ", up %s", st.Uptime)
	}
	fmt.Fprintf(&b, ", player %s, %d plays recorded", st.Player, st.Plays)
	if st.Degraded {
		b.WriteString("\nDegraded: the music service rejected the cached credentials.")
	}
	if st.LastSeen != nil {
		fmt.Fprintf(&b, "\nLast seen: %s by %s", st.LastSeen.Title, st.LastSeen.Artist)
	}
	return b.String()
}
