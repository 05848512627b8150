package handler

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"facestore/internal/facestore/session"
)

var errMessageTooBig = errors.New("inbound message exceeds limit")

// wsTransport writes server text frames to an upgraded connection.
type wsTransport struct {
	conn         net.Conn
	writeTimeout time.Duration
}

// WriteText writes one text frame. A failed write may have left part of the
// frame on the wire, so the connection is closed and the read loop ends the
// session.
func (t *wsTransport) WriteText(p []byte) error {
	t.armWriteDeadline()
	if err := wsutil.WriteServerMessage(t.conn, ws.OpText, p); err != nil {
		_ = t.conn.Close()
		return err
	}
	return nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (t *wsTransport) armWriteDeadline() {
	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
}

// HandleSocket handles GET /face-store. It upgrades the connection, registers
// a session and reads frames until the client goes away. Requests are
// dispatched on this goroutine, one at a time.
func (h *Handler) HandleSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetReqID(ctx)

	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.WarnContext(ctx, "websocket upgrade failed",
			"request_id", requestID,
			"remote_addr", r.RemoteAddr,
			"error", err.Error(),
		)
		return
	}

	t := &wsTransport{conn: conn, writeTimeout: h.cfg.WriteTimeout}
	sess := h.registry.Add(r.RemoteAddr, t)
	defer func() {
		h.registry.Remove(sess)
		_ = conn.Close()
	}()

	var src io.Reader = conn
	if rw != nil && rw.Reader != nil {
		src = rw.Reader
	}
	if err := h.serve(ctx, sess, t, src); err != nil && !isNormalClose(err) {
		h.logger.WarnContext(ctx, "session read loop ended",
			"request_id", requestID,
			"session_id", sess.ID,
			"remote_addr", sess.RemoteAddr,
			"error", err.Error(),
		)
	}
}

func (h *Handler) serve(ctx context.Context, sess *session.Session, t *wsTransport, src io.Reader) error {
	// Control replies (pong, close) share the session write lock with
	// broadcasts and request replies.
	control := func(hdr ws.Header, r io.Reader) error {
		return sess.Exclusive(func(session.Transport) error {
			t.armWriteDeadline()
			return wsutil.ControlFrameHandler(t.conn, ws.StateServerSide)(hdr, r)
		})
	}
	rd := &wsutil.Reader{
		Source:         src,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		OnIntermediate: control,
	}

	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return err
		}
		if hdr.OpCode.IsControl() {
			if err := control(hdr, rd); err != nil {
				return err
			}
			continue
		}
		if hdr.OpCode != ws.OpText {
			h.metrics.IncrementDropped("binary_frame")
			if err := rd.Discard(); err != nil {
				return err
			}
			continue
		}

		data, err := io.ReadAll(io.LimitReader(rd, h.cfg.MaxMessageBytes+1))
		if err != nil {
			return err
		}
		if int64(len(data)) > h.cfg.MaxMessageBytes {
			h.metrics.IncrementDropped("too_large")
			_ = sess.Exclusive(func(session.Transport) error {
				t.armWriteDeadline()
				return wsutil.WriteServerMessage(t.conn, ws.OpClose,
					ws.NewCloseFrameBody(ws.StatusMessageTooBig, "message too big"))
			})
			return errMessageTooBig
		}
		h.requests.Handle(ctx, sess, data)
	}
}

func isNormalClose(err error) bool {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return closed.Code == ws.StatusNormalClosure || closed.Code == ws.StatusGoingAway || closed.Code == ws.StatusNoStatusRcvd
	}
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF)
}
