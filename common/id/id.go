package id

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new globally unique int64 ID using the Snowflake algorithm.
// IDs are time-ordered and unique across distributed instances.
func New() int64 {
	return node.Generate().Int64()
}

// NewSessionID generates an opaque session identifier.
func NewSessionID() string {
	return fmt.Sprintf("session_%s", node.Generate().Base36())
}

// NewConversationID generates an opaque conversation identifier.
func NewConversationID() string {
	return fmt.Sprintf("conv_%s", node.Generate().Base36())
}

// NewMessageID generates an opaque conversation message identifier.
func NewMessageID() string {
	return fmt.Sprintf("msg_%s", node.Generate().Base36())
}
