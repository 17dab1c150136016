package mcunet

import "github.com/hlan/mcunet/tcp"

// HTTPHandler is the application-level callback for the one passive TCP
// listener this stack keeps open on the configured listening port. It
// receives the full accumulated request bytes (this engine has no
// reassembly queue, so a request spanning more than one segment is not
// supported) and returns the response body; every response closes the
// connection (ACK|PSH|FIN), matching the single-request-per-connection
// contract HTTP/1.0-style embedded servers use.
type HTTPHandler func(request []byte) (response []byte)

// SetHTTPHandler installs fn as the callback invoked for data arriving on
// the listening HTTP port. It must be called before the first Poll.
func (s *Stack) SetHTTPHandler(fn HTTPHandler) {
	s.httpHandler = fn
}

// onTCPData is wired as the tcp.Engine's OnData callback: it dispatches to
// httpHandler only for the configured listening port, closing the
// connection after every reply, and otherwise leaves the data
// unacknowledged-by-application (a bare ACK still goes out).
func (s *Stack) onTCPData(c *tcp.Conn, data []byte) ([]byte, bool) {
	if s.httpHandler == nil || c.LocalPort != s.httpPort {
		return nil, false
	}
	resp := s.httpHandler(data)
	if len(resp) == 0 {
		return nil, true
	}
	return resp, true
}
