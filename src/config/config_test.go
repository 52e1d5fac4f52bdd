package config

import (
	"path/filepath"
	"testing"

	"github.com/cotinet/cotinode/src/data"
)

func TestValidate(t *testing.T) {
	c := NewDefaultConfig()
	if err := c.Validate(); err == nil {
		t.Fatal("a full node without node-manager address should not validate")
	}

	c.NodeManagerAddr = "127.0.0.1:7100"
	c.NodeManagerPropagationAddr = "127.0.0.1:7101"
	if err := c.Validate(); err != nil {
		t.Fatalf("err: %v", err)
	}

	c.Role = "Wallet"
	if err := c.Validate(); err == nil {
		t.Fatal("an unknown role should not validate")
	}

	m := NewDefaultConfig()
	m.Role = data.NodeManager.String()
	if err := m.Validate(); err != nil {
		t.Fatalf("a node manager needs no node-manager address: %v", err)
	}

	m.PropagationCheckPeriod = 0
	if err := m.Validate(); err == nil {
		t.Fatal("a zero check period should not validate")
	}
}

func TestSetDataDir(t *testing.T) {
	c := NewDefaultConfig()
	c.SetDataDir("/tmp/node0")

	if c.DatabaseDir != filepath.Join("/tmp/node0", DefaultBadgerFile) {
		t.Fatalf("default database dir should follow the data dir, got %s", c.DatabaseDir)
	}

	c.DatabaseDir = "/var/db"
	c.SetDataDir("/tmp/node1")
	if c.DatabaseDir != "/var/db" {
		t.Fatalf("explicit database dir should be kept, got %s", c.DatabaseDir)
	}
}
