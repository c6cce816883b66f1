// Package idgen issues document numbers such as TXN-20260315-1767220800123456789.
package idgen

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SnowflakeNumbers formats a snowflake ID behind a prefix and UTC date. Numbers
// from one node are unique and sort by issue time.
type SnowflakeNumbers struct {
	node *snowflake.Node
}

// NewSnowflakeNumbers creates a generator for the given node (0-1023). Each
// running instance needs its own node ID.
func NewSnowflakeNumbers(nodeID int64) (*SnowflakeNumbers, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeNumbers{node: node}, nil
}

// Next returns PREFIX-YYYYMMDD-<id>
func (g *SnowflakeNumbers) Next(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format("20060102"), g.node.Generate().String())
}
