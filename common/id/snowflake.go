package id

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
	mu   sync.Mutex
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
// If Init was never called, node 0 is used so tests and tools do not have to.
func New() int64 {
	mu.Lock()
	if node == nil {
		_ = Init(0)
	}
	mu.Unlock()
	return node.Generate().Int64()
}

// NewString returns New() formatted with the given prefix, e.g. "unbound-1790...".
func NewString(prefix string) string {
	return prefix + strconv.FormatInt(New(), 10)
}
