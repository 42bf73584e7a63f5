package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/nbstore/internal/registry"
	"github.com/roach88/nbstore/internal/space"
)

// Request is a line sent from a Client to the Daemon.
type Request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params Params `json:"params"`
}

// Params carries the arguments of every method; each method reads the
// fields it needs.
type Params struct {
	SpaceType   space.Type        `json:"spaceType,omitempty"`
	SpaceID     string            `json:"spaceId,omitempty"`
	DocID       string            `json:"docId,omitempty"`
	Update      *space.DocUpdate  `json:"update,omitempty"`
	After       time.Time         `json:"after,omitzero"`
	Blob        *space.BlobRecord `json:"blob,omitempty"`
	Key         string            `json:"key,omitempty"`
	Permanently bool              `json:"permanently,omitempty"`
	Peer        string            `json:"peer,omitempty"`
	Clock       *space.DocClock   `json:"clock,omitempty"`
}

// SpaceKey returns the space the params address.
func (p Params) SpaceKey() space.Key {
	return space.NewKey(p.SpaceType, p.SpaceID)
}

// Response is a line sent from the Daemon to a Client.
// Event is only set on lines of a subscription stream.
type Response struct {
	ID     string                `json:"id"`
	OK     bool                  `json:"ok"`
	Result json.RawMessage       `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
	Code   string                `json:"code,omitempty"`
	Event  *registry.StatusEvent `json:"event,omitempty"`
}

// Protocol method names.
const (
	MethodConnect             = "connect"
	MethodClose               = "close"
	MethodPushDocUpdate       = "pushDocUpdate"
	MethodGetDoc              = "getDoc"
	MethodDeleteDoc           = "deleteDoc"
	MethodGetDocTimestamps    = "getDocTimestamps"
	MethodSetBlob             = "setBlob"
	MethodGetBlob             = "getBlob"
	MethodDeleteBlob          = "deleteBlob"
	MethodListBlobs           = "listBlobs"
	MethodReleaseBlobs        = "releaseBlobs"
	MethodGetPeerClocks       = "getPeerClocks"
	MethodSetPeerClock        = "setPeerClock"
	MethodGetPeerPushedClocks = "getPeerPushedClocks"
	MethodSetPeerPushedClock  = "setPeerPushedClock"
	MethodClearClocks         = "clearClocks"
	MethodSubscribe           = "subscribe"
	MethodPing                = "ping"
)

// DefaultSocketPath returns the default Unix socket path of the daemon.
func DefaultSocketPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "nbstore.sock")
	}
	return filepath.Join(home, ".nbstore", "nbstore.sock")
}
