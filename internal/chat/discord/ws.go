package discord

import (
	"bufio"
	"crypto/rand"
	"crypto/sha1"
	"crypto/tls"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"
)

// wsConn is a minimal RFC 6455 websocket client, just enough for the
// gateway's JSON text frames. Server close frames surface as io.EOF so the
// session loop treats them as a reconnect signal.
type wsConn struct {
	conn   net.Conn
	reader *bufio.Reader

	mu sync.Mutex // serializes writes
}

const (
	wsOpText  = 1
	wsOpClose = 8
	wsOpPing  = 9
	wsOpPong  = 10
)

// dialWS performs the TLS dial and websocket upgrade handshake.
func dialWS(rawURL string) (*wsConn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":443"
	}
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 10 * time.Second}, "tcp", host, &tls.Config{})
	if err != nil {
		return nil, fmt.Errorf("tls dial: %w", err)
	}

	keyBytes := make([]byte, 16)
	if _, err := rand.Read(keyBytes); err != nil {
		conn.Close()
		return nil, fmt.Errorf("websocket key: %w", err)
	}
	key := base64.StdEncoding.EncodeToString(keyBytes)

	upgrade := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: %s\r\nSec-WebSocket-Version: 13\r\n\r\n",
		u.RequestURI(), u.Host, key)
	if _, err := conn.Write([]byte(upgrade)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write upgrade: %w", err)
	}

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read upgrade status: %w", err)
	}
	if !strings.Contains(statusLine, "101") {
		conn.Close()
		return nil, fmt.Errorf("upgrade refused: %s", strings.TrimSpace(statusLine))
	}

	accepted := false
	wantAccept := wsAcceptKey(key)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("read upgrade headers: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(line), "sec-websocket-accept:") {
			value := strings.TrimSpace(line[len("sec-websocket-accept:"):])
			accepted = value == wantAccept
		}
	}
	if !accepted {
		conn.Close()
		return nil, fmt.Errorf("bad Sec-WebSocket-Accept")
	}

	return &wsConn{conn: conn, reader: reader}, nil
}

func wsAcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key + "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// ReadJSON reads one text message and decodes it.
func (ws *wsConn) ReadJSON(v any) error {
	data, err := ws.readMessage()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// WriteJSON encodes v and sends it as one text frame.
func (ws *wsConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.writeFrame(wsOpText, data)
}

// Close sends a close frame and tears the connection down.
func (ws *wsConn) Close() error {
	_ = ws.writeFrame(wsOpClose, nil)
	return ws.conn.Close()
}

// readMessage reassembles one message, answering pings along the way.
// The read deadline outlasts the gateway's heartbeat interval so an idle
// but healthy connection never trips it.
func (ws *wsConn) readMessage() ([]byte, error) {
	_ = ws.conn.SetReadDeadline(time.Now().Add(90 * time.Second))

	var message []byte
	for {
		header := make([]byte, 2)
		if _, err := io.ReadFull(ws.reader, header); err != nil {
			return nil, err
		}

		fin := header[0]&0x80 != 0
		opcode := header[0] & 0x0F
		masked := header[1]&0x80 != 0
		payloadLen := int64(header[1] & 0x7F)

		if opcode == wsOpClose {
			return nil, io.EOF
		}
		if opcode == wsOpPing {
			ping := make([]byte, payloadLen)
			if _, err := io.ReadFull(ws.reader, ping); err != nil {
				return nil, err
			}
			if err := ws.writeFrame(wsOpPong, ping); err != nil {
				return nil, err
			}
			continue
		}

		switch payloadLen {
		case 126:
			ext := make([]byte, 2)
			if _, err := io.ReadFull(ws.reader, ext); err != nil {
				return nil, err
			}
			payloadLen = int64(binary.BigEndian.Uint16(ext))
		case 127:
			ext := make([]byte, 8)
			if _, err := io.ReadFull(ws.reader, ext); err != nil {
				return nil, err
			}
			payloadLen = int64(binary.BigEndian.Uint64(ext))
		}

		var maskKey [4]byte
		if masked {
			if _, err := io.ReadFull(ws.reader, maskKey[:]); err != nil {
				return nil, err
			}
		}

		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(ws.reader, payload); err != nil {
			return nil, err
		}
		if masked {
			for i := range payload {
				payload[i] ^= maskKey[i%4]
			}
		}

		message = append(message, payload...)
		if fin {
			return message, nil
		}
	}
}

// writeFrame sends one frame. Client frames are always masked.
func (ws *wsConn) writeFrame(opcode byte, data []byte) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	frame := []byte{0x80 | opcode}
	length := len(data)
	switch {
	case length < 126:
		frame = append(frame, byte(length)|0x80)
	case length < 65536:
		frame = append(frame, 126|0x80, byte(length>>8), byte(length))
	default:
		frame = append(frame, 127|0x80)
		ext := make([]byte, 8)
		binary.BigEndian.PutUint64(ext, uint64(length))
		frame = append(frame, ext...)
	}

	maskKey := make([]byte, 4)
	if _, err := rand.Read(maskKey); err != nil {
		return fmt.Errorf("mask key: %w", err)
	}
	frame = append(frame, maskKey...)

	masked := make([]byte, length)
	for i := range data {
		masked[i] = data[i] ^ maskKey[i%4]
	}
	frame = append(frame, masked...)

	_ = ws.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_, err := ws.conn.Write(frame)
	return err
}
