package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	The Mumble collaborator boundary.
 *
 * Description: The wire protocol - TLS session, control channel,
 *		Opus - lives outside the engine.  What the engine
 *		consumes is narrow: send one chunk of voice, send one
 *		line of text, and an inbound stream of decoded voice
 *		chunks and text commands.  Inbound events arrive on
 *		whatever goroutine the session runs; the adapter here
 *		moves them onto the engine's queues so mixer state is
 *		only ever touched from the tick loop.
 *
 *---------------------------------------------------------------*/

import (
	"time"
)

// UserId identifies a Mumble user in inbound events.
type UserId uint32

// MumbleSession is the outbound half, implemented by the protocol
// layer.  Both calls are invoked only from the tick loop and must
// not block on the network; buffer or drop internally.
type MumbleSession interface {
	SendVoiceChunk(pcm []int16) error
	SendText(message string) error
}

// mumble_inbound adapts asynchronous session events onto the
// MumbleVoice source queue and the engine's command queue.
type mumble_inbound struct {
	src      *Source
	commands chan string
	seq      uint64
}

func new_mumble_inbound(src *Source) *mumble_inbound {
	return &mumble_inbound{
		src:      src,
		commands: make(chan string, 16),
	}
}

// HandleVoice delivers one decoded inbound voice chunk.  Safe to call
// from any goroutine; overflow drops the newest chunk, same policy as
// every other ingest path.
func (m *mumble_inbound) HandleVoice(pcm []int16, from UserId) {
	m.seq++
	m.src.queue.push(new_chunk(m.seq, time.Now(), pcm))
	m.src.health.note_good_read()
	m.src.ready.Store(true)
	_ = from
}

// HandleText delivers one inbound text message.  Commands queue up
// for the tick loop; when the queue is full the message is dropped
// rather than blocking the session.
func (m *mumble_inbound) HandleText(message string, from UserId) {
	_ = from
	select {
	case m.commands <- message:
	default:
	}
}

/*-------------------------------------------------------------------
 *
 * Name:	null_mumble_session
 *
 * Purpose:	Stand-in when no Mumble connection is configured.
 *		Bench use and tests.
 *
 *--------------------------------------------------------------------*/

type null_mumble_session struct{}

func (null_mumble_session) SendVoiceChunk(pcm []int16) error {
	return nil
}

func (null_mumble_session) SendText(message string) error {
	return nil
}
