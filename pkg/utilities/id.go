package utilities

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out account ids. A snowflake node keeps its own sequence,
// so it is created once and shared; two nodes with the same id would repeat
// values within the same millisecond.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator builds a generator for the given snowflake node id.
// If the node cannot be initialized, the generator falls back to KSUID strings.
func NewIDGenerator(nodeID int64) *IDGenerator {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return &IDGenerator{}
	}
	return &IDGenerator{node: node}
}

// NodeFromEnv reads SNOWFLAKE_NODE, defaulting to node 1.
func NodeFromEnv() int64 {
	nodeEnv := os.Getenv("SNOWFLAKE_NODE")
	if nodeEnv == "" {
		return 1
	}
	nodeID, err := strconv.ParseInt(nodeEnv, 10, 64)
	if err != nil {
		return 1
	}
	return nodeID
}

// Next returns a new unique id string. Safe for concurrent use.
func (g *IDGenerator) Next() string {
	if g == nil || g.node == nil {
		return NewKSUID()
	}
	return g.node.Generate().String()
}
