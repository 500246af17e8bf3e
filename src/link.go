package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	Remote audio link: PCM frames over TCP to a peer
 *		bridge.
 *
 * Description: The analog-radio-style point to point link.  Wire
 *		format is a 4 byte big endian unsigned length followed
 *		by that many bytes of 16 bit little endian mono PCM at
 *		48 kHz, one chunk (2,400 samples, 4,800 bytes) per
 *		message.
 *
 *		Either end may be the listener (binds and accepts one
 *		peer at a time) or the dialer (connects, and
 *		reconnects at a fixed interval after any failure).
 *		Inbound frames land in the link source's queue like
 *		any other ingest; outbound chunks are handed over by
 *		the tick loop and written by a separate goroutine so a
 *		congested peer cannot slow the tick.  Audio in either
 *		direction is silently dropped while disconnected.
 *
 *		The listener announces itself over DNS-SD so the far
 *		end can be pointed at a name instead of an address.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

const (
	LINK_DNSSD_SERVICE = "_basenji-link._tcp"

	DEFAULT_LINK_RECONNECT = 5 * time.Second

	// A length prefix beyond this is protocol desync, not audio.
	LINK_MAX_FRAME_BYTES = 1 << 20
)

/*-------------------------------------------------------------------
 *
 * Name:	link_write_frame / link_read_frame
 *
 * Purpose:	The wire codec.
 *
 *--------------------------------------------------------------------*/

func link_write_frame(w io.Writer, pcm []int16) error {
	var payload = pcm_to_bytes(pcm)

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}

func link_read_frame(r io.Reader) ([]int16, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	var n = binary.BigEndian.Uint32(hdr[:])
	if n > LINK_MAX_FRAME_BYTES {
		return nil, fmt.Errorf("frame length %d exceeds limit, stream desynced", n)
	}
	if n%2 != 0 {
		return nil, fmt.Errorf("odd frame length %d", n)
	}

	var payload = make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	return bytes_to_pcm(payload), nil
}

/*-------------------------------------------------------------------
 *
 * Name:	audio_link
 *
 * Purpose:	Connection management for both roles.
 *
 *--------------------------------------------------------------------*/

type audio_link struct {
	src       *Source
	addr      string
	listen    bool
	reconnect time.Duration
	announce  bool
	chunkSize int

	mu   sync.Mutex
	conn net.Conn

	out chan []int16
	seq uint64
}

func new_audio_link(src *Source, addr string, listen bool, reconnect time.Duration, announce bool, chunkSize int) *audio_link {
	if reconnect <= 0 {
		reconnect = DEFAULT_LINK_RECONNECT
	}
	return &audio_link{
		src:       src,
		addr:      addr,
		listen:    listen,
		reconnect: reconnect,
		announce:  announce,
		chunkSize: chunkSize,
		out:       make(chan []int16, 8),
	}
}

// send hands one chunk to the link without blocking.  Dropped on the
// floor when there is no peer; a lossy radio link behaves exactly the
// same way.
func (l *audio_link) send(pcm []int16) {
	select {
	case l.out <- pcm:
	default:
	}
}

func (l *audio_link) run(ctx context.Context) error {
	if l.listen {
		return l.run_listener(ctx)
	}
	return l.run_dialer(ctx)
}

func (l *audio_link) run_listener(ctx context.Context) error {
	var lc net.ListenConfig
	var listener, err = lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("link listen on %s: %w", l.addr, err)
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	if l.announce {
		var port = listener.Addr().(*net.TCPAddr).Port
		go link_dnssd_announce(ctx, port)
	}

	log.Info("audio link listening", "addr", l.addr)

	for {
		var conn, acceptErr = listener.Accept()
		if acceptErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("link accept failed", "error", acceptErr)
			continue
		}

		log.Info("audio link peer connected", "peer", conn.RemoteAddr())
		l.serve_conn(ctx, conn)
		log.Info("audio link peer disconnected", "peer", conn.RemoteAddr())
	}
}

func (l *audio_link) run_dialer(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		var d net.Dialer
		var conn, err = d.DialContext(ctx, "tcp", l.addr)
		if err != nil {
			log.Debug("link dial failed, will retry", "addr", l.addr, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(l.reconnect):
			}
			continue
		}

		log.Info("audio link connected", "peer", l.addr)
		l.serve_conn(ctx, conn)
		log.Info("audio link lost", "peer", l.addr)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.reconnect):
		}
	}
}

// serve_conn pumps one established connection in both directions
// until it fails or the context is cancelled.
func (l *audio_link) serve_conn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Per-connection context so the writer goroutine is released
	// when the reader side fails, not only at shutdown.
	var connCtx, cancel = context.WithCancel(ctx)
	defer cancel()

	var done = make(chan struct{})

	// Writer side.
	go func() {
		defer close(done)
		for {
			select {
			case <-connCtx.Done():
				return
			case pcm := <-l.out:
				if err := link_write_frame(conn, pcm); err != nil {
					log.Debug("link write failed", "error", err)
					conn.Close()
					return
				}
			}
		}
	}()

	// Reader side, on this goroutine.
	for {
		var pcm, err = link_read_frame(conn)
		if err != nil {
			if ctx.Err() == nil && err != io.EOF {
				log.Debug("link read failed", "error", err)
			}
			break
		}

		if len(pcm) != l.chunkSize {
			log.Debug("link frame with unexpected sample count", "got", len(pcm), "want", l.chunkSize)
			continue
		}

		l.seq++
		l.src.queue.push(new_chunk(l.seq, time.Now(), pcm))
		l.src.health.note_good_read()
		l.src.ready.Store(true)
	}

	cancel()
	conn.Close()
	<-done
}

/*-------------------------------------------------------------------
 *
 * Name:	link_dnssd_announce
 *
 * Purpose:	Announce the listener over DNS-SD so peers can find
 *		it without typing addresses.
 *
 *--------------------------------------------------------------------*/

func link_dnssd_announce(ctx context.Context, port int) {
	var cfg = dnssd.Config{ //nolint:exhaustruct
		Name: "basenji",
		Type: LINK_DNSSD_SERVICE,
		Port: port,
	}

	var sv, svErr = dnssd.NewService(cfg)
	if svErr != nil {
		log.Warn("DNS-SD: failed to create service", "error", svErr)
		return
	}

	var rp, rpErr = dnssd.NewResponder()
	if rpErr != nil {
		log.Warn("DNS-SD: failed to create responder", "error", rpErr)
		return
	}

	if _, err := rp.Add(sv); err != nil {
		log.Warn("DNS-SD: failed to add service", "error", err)
		return
	}

	log.Info("DNS-SD: announcing audio link", "type", LINK_DNSSD_SERVICE, "port", port)

	if err := rp.Respond(ctx); err != nil && ctx.Err() == nil {
		log.Warn("DNS-SD: responder error", "error", err)
	}
}
