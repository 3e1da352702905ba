// Package wire defines the agent control-channel protocol: a framed binary
// format carrying XDR-encoded payloads between a controller and its agents.
//
// Every frame is a fixed header followed by the payload:
//
//	[4]byte magic "SKDA" | uint8 version | uint8 type | uint32 length (BE) | payload
//
// Payloads are XDR (RFC 4506) encoded structs, one per message type.
package wire

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// Magic opens every frame.
var Magic = [4]byte{'S', 'K', 'D', 'A'}

// Version is the protocol revision. Mismatches reject the connection.
const Version = 1

// maxFrame caps a single payload. Catalogs move over HTTP, not the control
// channel, so frames stay small.
const maxFrame = 1 << 20

// Framing errors.
var (
	ErrBadMagic     = errors.New("wire: bad frame magic")
	ErrBadVersion   = errors.New("wire: protocol version mismatch")
	ErrFrameTooBig  = errors.New("wire: frame exceeds size limit")
	ErrUnknownType  = errors.New("wire: unknown message type")
	ErrShortPayload = errors.New("wire: truncated payload")
)

// Type identifies a message.
type Type uint8

const (
	// TypeHello opens a connection: the agent declares its name.
	TypeHello Type = iota + 1

	// TypeChallenge carries the controller's 32-byte auth challenge.
	TypeChallenge

	// TypeLogin answers a challenge with its keyed digest.
	TypeLogin

	// TypeLoginResult reports authentication outcome.
	TypeLoginResult

	// TypeRequestFileInfo asks the agent whether it holds a file.
	TypeRequestFileInfo

	// TypeReturnFileInfo answers a file info request.
	TypeReturnFileInfo

	// TypeRequestFileUpload asks the agent to open a data channel for a
	// file, presenting the one-shot token.
	TypeRequestFileUpload

	// TypeNotifyUploadFailed reports that the agent cannot satisfy a
	// requested upload.
	TypeNotifyUploadFailed

	// TypeBeginShareUpload asks the controller for a catalog upload slot.
	TypeBeginShareUpload

	// TypeShareUploadGranted carries the one-shot catalog upload token.
	TypeShareUploadGranted

	// TypePing and TypePong keep idle connections alive.
	TypePing
	TypePong
)

// String returns the message type name.
func (t Type) String() string {
	switch t {
	case TypeHello:
		return "hello"
	case TypeChallenge:
		return "challenge"
	case TypeLogin:
		return "login"
	case TypeLoginResult:
		return "login_result"
	case TypeRequestFileInfo:
		return "request_file_info"
	case TypeReturnFileInfo:
		return "return_file_info"
	case TypeRequestFileUpload:
		return "request_file_upload"
	case TypeNotifyUploadFailed:
		return "notify_upload_failed"
	case TypeBeginShareUpload:
		return "begin_share_upload"
	case TypeShareUploadGranted:
		return "share_upload_granted"
	case TypePing:
		return "ping"
	case TypePong:
		return "pong"
	default:
		return "unknown"
	}
}

// Hello declares the agent's name.
type Hello struct {
	Name string
}

// Challenge is the fresh random token the agent must sign.
type Challenge struct {
	Token []byte
}

// Login carries the agent's answer to the challenge.
type Login struct {
	Digest []byte
}

// LoginResult reports whether authentication succeeded.
type LoginResult struct {
	OK      bool
	Message string
}

// RequestFileInfo asks whether the agent holds Filename.
type RequestFileInfo struct {
	Filename string
	ID       string
}

// ReturnFileInfo answers a RequestFileInfo with the same ID.
type ReturnFileInfo struct {
	ID     string
	Exists bool
	Size   int64
}

// RequestFileUpload asks the agent to POST Filename's bytes using Token.
type RequestFileUpload struct {
	Filename string
	Token    string
}

// NotifyUploadFailed reports a failed upload for Token.
type NotifyUploadFailed struct {
	Token   string
	Message string
}

// BeginShareUpload requests a catalog upload token.
type BeginShareUpload struct {
	// Files is the catalog size, for logging on the controller.
	Files int32
}

// ShareUploadGranted carries the catalog upload token.
type ShareUploadGranted struct {
	Token string
}

// Ping and Pong are empty keepalives.
type Ping struct{}
type Pong struct{}

// WriteMessage encodes payload and writes one frame. Callers serialize
// writes per connection.
func WriteMessage(w io.Writer, t Type, payload any) error {
	var body bytes.Buffer
	if payload != nil {
		if _, err := xdr.Marshal(&body, payload); err != nil {
			return err
		}
	}
	if body.Len() > maxFrame {
		return ErrFrameTooBig
	}

	header := make([]byte, 10)
	copy(header[0:4], Magic[:])
	header[4] = Version
	header[5] = byte(t)
	binary.BigEndian.PutUint32(header[6:10], uint32(body.Len()))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

// ReadMessage reads one frame and returns its type and raw payload.
func ReadMessage(r io.Reader) (Type, []byte, error) {
	header := make([]byte, 10)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	if !bytes.Equal(header[0:4], Magic[:]) {
		return 0, nil, ErrBadMagic
	}
	if header[4] != Version {
		return 0, nil, ErrBadVersion
	}
	t := Type(header[5])
	length := binary.BigEndian.Uint32(header[6:10])
	if length > maxFrame {
		return 0, nil, ErrFrameTooBig
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, ErrShortPayload
	}
	return t, payload, nil
}

// Decode unmarshals a raw payload into v.
func Decode(payload []byte, v any) error {
	_, err := xdr.Unmarshal(bytes.NewReader(payload), v)
	return err
}

// Sign computes the keyed digest both sides use for challenges and
// one-shot tokens: HMAC-SHA256 under the SHA-256 of the shared secret.
func Sign(data []byte, secret string) []byte {
	key := sha256.Sum256([]byte(secret))
	mac := hmac.New(sha256.New, key[:])
	mac.Write(data)
	return mac.Sum(nil)
}

// Verify checks a digest in constant time.
func Verify(data, digest []byte, secret string) bool {
	return hmac.Equal(digest, Sign(data, secret))
}
