package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	The 50 ms tick loop.
 *
 * Description: One self-clocked loop drives everything: pull at most
 *		one chunk from each source, run its conditioning and
 *		detection, arbitrate, render the two outputs, advance
 *		the PTT machine, and hand the results to the Mumble
 *		session and the transmit device.  Nothing in here may
 *		block - every collaborator call is non-blocking by
 *		contract, and an empty queue means silence this tick,
 *		never a wait.
 *
 *		Pacing is computed against the predicted next tick
 *		time, not "now plus period", so per-tick jitter does
 *		not accumulate into drift.  If a tick overruns by more
 *		than a full period the schedule resyncs to the present
 *		instead of firing a burst of catch-up ticks.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

func (e *Engine) run_loop(ctx context.Context) {
	var period = e.cfg.ChunkDuration()
	var next = time.Now().Add(period)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e.tick(time.Now())

		var now = time.Now()
		if now.After(next.Add(period)) {
			// More than one full period behind.  Resync rather
			// than ticking in a tight loop to catch up.
			log.Warn("tick loop fell behind, resyncing", "behind", now.Sub(next))
			next = now.Add(period)
		} else {
			next = next.Add(period)
		}

		var wait = time.Until(next)
		if wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}

/*-------------------------------------------------------------------
 *
 * Name:	Engine.tick
 *
 * Purpose:	One pass of the whole pipeline.
 *
 *--------------------------------------------------------------------*/

func (e *Engine) tick(now time.Time) {
	e.drain_commands()
	e.maybe_station_id(now)

	// Phase 1: one non-blocking pull per source, conditioning and
	// detection on whatever arrived.
	var pulled = make(map[*Source]*AudioChunk, len(e.reg.all()))
	for _, s := range e.reg.all() {
		if !s.Enabled() {
			continue
		}

		var chunk, ok = s.try_pull(e.cfg.ChunkSamples())
		if ok {
			if s.dsp != nil {
				chunk = s.dsp.Process(chunk)
			}
			pulled[s] = chunk
			s.lastLevel = chunk_dbfs(chunk.Data)
		} else {
			// Nothing this tick is silence as far as the
			// detector is concerned.
			s.lastLevel = SILENCE_FLOOR_DBFS
		}

		if !s.BypassDetection && s.det != nil {
			s.det.Advance(s.lastLevel, now)
		}
		if s.is_active() {
			s.lastActivity = now
		}
	}

	// Phase 2: arbitrate and render.
	var d = e.mix.decide()
	var mumbleOut, radioOut = e.mix.render(d, pulled, now)

	// Phase 3: PTT.  The roger beep fires on the falling edge of
	// radio activity, unless what just finished was the Morse
	// generator itself (the beep is Morse-generated, and beeping
	// after a beep never terminates).
	var radioActive = d.RadioFeed != nil
	if e.lastRadioActive && !radioActive &&
		e.cfg.Morse.RogerBeep && e.lastRadioFeed != e.morseSrc {
		e.morseGen.queue_beep()
	}
	e.lastRadioActive = radioActive
	if radioActive {
		e.lastRadioFeed = d.RadioFeed
	}

	var txAudio = e.ptt.Advance(radioActive, now)

	// Phase 4: dispatch.  Both sinks buffer or drop internally.
	if mumbleOut != nil && d.MumbleFeed != e.mumbleSrc {
		if err := e.mumble.SendVoiceChunk(mumbleOut); err != nil {
			log.Debug("mumble voice send failed", "error", err)
		}
	}
	if radioOut != nil {
		if txAudio {
			e.radioSink.write_chunk(radioOut)
		}
		// The peer bridge gets the radio path regardless of our
		// local PTT state, but never its own audio back.
		if e.link != nil && d.RadioFeed != e.linkSrc {
			e.link.send(radioOut)
		}
	}
}

/*-------------------------------------------------------------------
 *
 * Name:	Engine.drain_commands
 *
 * Purpose:	Handle text commands queued by the Mumble session.
 *
 * Description:	Runs on the tick thread so commands may touch source
 *		state without locks.  Unknown commands are ignored
 *		silently; this is a chat channel, not a shell.
 *
 *--------------------------------------------------------------------*/

func (e *Engine) drain_commands() {
	if e.inbound == nil {
		return
	}
	for {
		select {
		case msg := <-e.inbound.commands:
			e.handle_command(msg)
		default:
			return
		}
	}
}

func (e *Engine) handle_command(msg string) {
	var fields = strings.Fields(strings.ToLower(strings.TrimSpace(msg)))
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "status":
		e.send_status()

	case "stop":
		// Operator abort for queued playback.
		e.fileGen.clear()
		e.announceGen.clear()
		e.reply("playback cleared")

	case "enable", "disable":
		if len(fields) != 2 {
			return
		}
		var s = e.reg.get(fields[1])
		if s == nil {
			e.reply(fmt.Sprintf("no such source: %s", fields[1]))
			return
		}
		s.set_enabled(fields[0] == "enable")
		log.Info("source toggled by operator", "source", s.Name, "enabled", s.Enabled())
		e.reply(fmt.Sprintf("%s %sd", s.Name, fields[0]))
	}
}

func (e *Engine) send_status() {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("ptt=%s", e.ptt.State()))
	for _, s := range e.reg.all() {
		var state = "off"
		switch {
		case !s.Enabled():
		case s.BypassDetection:
			state = "idle"
			if s.is_active() {
				state = "active"
			}
		default:
			state = s.det.State().String()
		}
		b.WriteString(fmt.Sprintf(" %s=%s(%.0fdB)", s.Name, state, s.lastLevel))
		if s.queue != nil && s.queue.drop_count() > 0 {
			b.WriteString(fmt.Sprintf("[drops=%d]", s.queue.drop_count()))
		}
	}
	e.reply(b.String())
}

func (e *Engine) reply(text string) {
	if err := e.mumble.SendText(text); err != nil {
		log.Debug("mumble text send failed", "error", err)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:	Engine.maybe_station_id
 *
 * Purpose:	Queue the periodic Morse station identification.
 *
 *--------------------------------------------------------------------*/

func (e *Engine) maybe_station_id(now time.Time) {
	if e.cfg.Morse.IDText == "" || e.cfg.Morse.IDIntervalMin <= 0 {
		return
	}
	var interval = time.Duration(e.cfg.Morse.IDIntervalMin) * time.Minute

	if e.lastStationID.IsZero() {
		// First interval is measured from startup, not from epoch.
		e.lastStationID = now
		return
	}
	if now.Sub(e.lastStationID) < interval {
		return
	}

	e.lastStationID = now
	log.Info("queueing station identification", "text", e.cfg.Morse.IDText)
	e.morseGen.queue_text(e.cfg.Morse.IDText)
}
